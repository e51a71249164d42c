// Package correlator joins relay outcomes on a destination chain to the execution attempts that produced them.
//
// Relay outcome events carry only the message hash, while execution records only know the payload hash of the
// source-chain SentMessage log. The Resolver is the single place where those two streams are joined: it loads
// the message, recomputes its payload hash and matches it against the executing messages of the block.
//
// Callers must deliver events in causal order. A SentMessage must be processed before any relay outcome for the
// same message, and the ExecutingMessage of a block must be processed before the relay outcome in that block.
// When that precondition is violated the Resolver fails with ErrNotFound or ErrNoMatch instead of guessing.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/interop-labs/interop-indexer/pkg/db"
	"github.com/interop-labs/interop-indexer/pkg/interop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	// ErrNotFound means a relay outcome references a message that was never sent.
	ErrNotFound = errors.New("correlator: cross-chain message not found")
	// ErrNoMatch means no execution attempt in the block carries the recomputed payload hash.
	ErrNoMatch = errors.New("correlator: no executing message matches payload hash")
)

const (
	outcomeResolved  = "resolved"
	outcomeAmbiguous = "ambiguous"
	outcomeNotFound  = "not_found"
	outcomeNoMatch   = "no_match"
	outcomeError     = "error"
)

var (
	resolveOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interop_indexer_resolver_outcomes_total",
			Help: "Total number of correlation attempts, by outcome",
		}, []string{"outcome"})

	resolveLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "interop_indexer_resolver_latency_seconds",
			Help:    "Latency of resolving a relay outcome to its executing message",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		})
)

// DefaultPayloadHashCacheSize is used when NewResolver is given a non-positive cache size.
const DefaultPayloadHashCacheSize = 4096

// MessageReader is the read-only subset of db.Store the Resolver needs.
type MessageReader interface {
	GetMessage(ctx context.Context, messageHash common.Hash) (*db.CrossChainMessage, error)
	FindExecutingMessages(ctx context.Context, blockHash common.Hash, payloadHash common.Hash) ([]*db.ExecutingMessage, error)
}

// Resolver never writes to the store.
type Resolver struct {
	logger *zap.Logger
	store  MessageReader
	// payloadHashes caches messageHash -> payloadHash. Both are pure functions of the immutable message fields.
	payloadHashes *lru.Cache
}

func NewResolver(logger *zap.Logger, store MessageReader, cacheSize int) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultPayloadHashCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create payload hash cache: %w", err)
	}
	return &Resolver{
		logger:        logger.With(zap.String("component", "resolver")),
		store:         store,
		payloadHashes: cache,
	}, nil
}

// Resolve returns the id of the ExecutingMessage in blockHash that executed the message with the given hash.
// When the same payload was executed more than once in the block, the attempt with the greatest log index wins.
func (r *Resolver) Resolve(ctx context.Context, messageHash common.Hash, blockHash common.Hash) (string, error) {
	start := time.Now()
	defer func() { resolveLatency.Observe(time.Since(start).Seconds()) }()

	payloadHash, err := r.payloadHash(ctx, messageHash)
	if err != nil {
		r.countFailure(err)
		return "", err
	}

	candidates, err := r.store.FindExecutingMessages(ctx, blockHash, payloadHash)
	if err != nil {
		resolveOutcomes.WithLabelValues(outcomeError).Inc()
		return "", fmt.Errorf("failed to query executing messages: %w", err)
	}
	if len(candidates) == 0 {
		resolveOutcomes.WithLabelValues(outcomeNoMatch).Inc()
		return "", fmt.Errorf("%w: message %s payload %s block %s", ErrNoMatch, messageHash, payloadHash, blockHash)
	}

	latest := candidates[0]
	for _, c := range candidates[1:] {
		if c.LogIndex > latest.LogIndex {
			latest = c
		}
	}

	if len(candidates) > 1 {
		resolveOutcomes.WithLabelValues(outcomeAmbiguous).Inc()
		r.logger.Info("multiple execution attempts in block, using the latest",
			zap.Stringer("messageHash", messageHash),
			zap.Stringer("blockHash", blockHash),
			zap.Int("candidates", len(candidates)),
			zap.Uint64("logIndex", latest.LogIndex),
		)
	} else {
		resolveOutcomes.WithLabelValues(outcomeResolved).Inc()
	}

	return latest.ID, nil
}

func (r *Resolver) payloadHash(ctx context.Context, messageHash common.Hash) (common.Hash, error) {
	if cached, ok := r.payloadHashes.Get(messageHash); ok {
		return cached.(common.Hash), nil
	}

	m, err := r.store.GetMessage(ctx, messageHash)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return common.Hash{}, fmt.Errorf("%w: %s: %w", ErrNotFound, messageHash, err)
		}
		return common.Hash{}, fmt.Errorf("failed to load message %s: %w", messageHash, err)
	}

	payloadHash, err := interop.PayloadHash(MessageFields(m))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to compute payload hash of %s: %w", messageHash, err)
	}

	r.payloadHashes.Add(messageHash, payloadHash)
	return payloadHash, nil
}

func (r *Resolver) countFailure(err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		resolveOutcomes.WithLabelValues(outcomeNotFound).Inc()
	default:
		resolveOutcomes.WithLabelValues(outcomeError).Inc()
	}
}

// MessageFields extracts the hashed fields of a stored message.
func MessageFields(m *db.CrossChainMessage) interop.Message {
	return interop.Message{
		Source:      m.SourceChainID,
		Destination: m.DestinationChainID,
		Nonce:       m.Nonce,
		Sender:      m.Sender,
		Target:      m.Target,
		Payload:     m.Payload,
	}
}
