package correlator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/interop-labs/interop-indexer/pkg/db"
	"github.com/interop-labs/interop-indexer/pkg/interop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var messageTransitions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "interop_indexer_message_transitions_total",
		Help: "Total number of message status transitions, by source and target status",
	}, []string{"from", "to"})

var unexpectedTransitions = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "interop_indexer_unexpected_transitions_total",
		Help: "Total number of accepted transitions outside of the intended status graph",
	})

// transitions is the intended status graph. RELAYED has no outgoing edges.
var transitions = map[db.MessageStatus][]db.MessageStatus{
	db.StatusSent:          {db.StatusRelayed, db.StatusFailedRelayed},
	db.StatusFailedRelayed: {db.StatusRelayed, db.StatusFailedRelayed},
}

// CanTransition reports whether from -> to is part of the intended status graph.
// The Tracker does not enforce it.
func CanTransition(from, to db.MessageStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// LifecycleStore is the subset of db.Store the Tracker writes to.
type LifecycleStore interface {
	GetMessage(ctx context.Context, messageHash common.Hash) (*db.CrossChainMessage, error)
	CreateMessage(ctx context.Context, m *db.CrossChainMessage) error
	UpdateMessageStatus(ctx context.Context, messageHash common.Hash, status db.MessageStatus, updatedAt uint64) error
	CreateLink(ctx context.Context, l *db.MessageTransactionLink) error
}

// Tracker drives the status of CrossChainMessages and appends a MessageTransactionLink for every observed
// event. Links are never updated.
type Tracker struct {
	logger   *zap.Logger
	store    LifecycleStore
	resolver *Resolver
}

func NewTracker(logger *zap.Logger, store LifecycleStore, resolver *Resolver) *Tracker {
	return &Tracker{
		logger:   logger.With(zap.String("component", "lifecycle")),
		store:    store,
		resolver: resolver,
	}
}

// Sent creates the message in SENT together with its SentMessage link and returns the message hash.
func (t *Tracker) Sent(ctx context.Context, msg interop.Message, txHash common.Hash, timestamp uint64) (common.Hash, error) {
	messageHash, err := interop.MessageHash(msg)
	if err != nil {
		return common.Hash{}, err
	}
	m := &db.CrossChainMessage{
		MessageHash:        messageHash,
		SourceChainID:      msg.Source,
		DestinationChainID: msg.Destination,
		Target:             msg.Target,
		Nonce:              msg.Nonce,
		Sender:             msg.Sender,
		Payload:            msg.Payload,
		Status:             db.StatusSent,
		LastUpdatedAt:      timestamp,
	}
	if err := t.store.CreateMessage(ctx, m); err != nil {
		return common.Hash{}, fmt.Errorf("failed to create message %s: %w", messageHash, err)
	}

	link := &db.MessageTransactionLink{
		ID:            db.LinkID(messageHash, txHash),
		EventName:     db.EventSentMessage,
		MessageHash:   messageHash,
		TransactionID: txHash,
	}
	if err := t.store.CreateLink(ctx, link); err != nil {
		return common.Hash{}, fmt.Errorf("failed to create link %s: %w", link.ID, err)
	}

	t.logger.Debug("message sent",
		zap.Stringer("messageHash", messageHash),
		zap.Stringer("source", m.SourceChainID),
		zap.Stringer("destination", m.DestinationChainID),
		zap.Stringer("nonce", m.Nonce),
	)
	return messageHash, nil
}

// Relayed moves the message to RELAYED and links txHash to the execution attempt in blockHash.
func (t *Tracker) Relayed(ctx context.Context, messageHash common.Hash, blockHash common.Hash, txHash common.Hash, timestamp uint64) (*db.MessageTransactionLink, error) {
	return t.relayOutcome(ctx, db.StatusRelayed, db.EventRelayedMessage, messageHash, blockHash, txHash, timestamp)
}

// FailedRelayed moves the message to FAILED_RELAYED and links txHash to the execution attempt in blockHash.
func (t *Tracker) FailedRelayed(ctx context.Context, messageHash common.Hash, blockHash common.Hash, txHash common.Hash, timestamp uint64) (*db.MessageTransactionLink, error) {
	return t.relayOutcome(ctx, db.StatusFailedRelayed, db.EventFailedRelayedMessage, messageHash, blockHash, txHash, timestamp)
}

// relayOutcome resolves the execution attempt before writing anything, and appends the link before moving
// the status, so a failed correlation or a link collision leaves the message untouched.
func (t *Tracker) relayOutcome(
	ctx context.Context,
	status db.MessageStatus,
	event db.EventName,
	messageHash common.Hash,
	blockHash common.Hash,
	txHash common.Hash,
	timestamp uint64,
) (*db.MessageTransactionLink, error) {
	executingMessageID, err := t.resolver.Resolve(ctx, messageHash, blockHash)
	if err != nil {
		return nil, err
	}

	current, err := t.store.GetMessage(ctx, messageHash)
	if err != nil {
		return nil, fmt.Errorf("failed to load message %s: %w", messageHash, err)
	}
	if !CanTransition(current.Status, status) {
		unexpectedTransitions.Inc()
		t.logger.Warn("accepting transition outside of the intended status graph",
			zap.Stringer("messageHash", messageHash),
			zap.String("from", string(current.Status)),
			zap.String("to", string(status)),
			zap.Stringer("txHash", txHash),
		)
	}

	link := &db.MessageTransactionLink{
		ID:                 db.LinkID(messageHash, txHash),
		EventName:          event,
		MessageHash:        messageHash,
		TransactionID:      txHash,
		ExecutingMessageID: executingMessageID,
	}
	if err := t.store.CreateLink(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to create link %s: %w", link.ID, err)
	}

	if err := t.store.UpdateMessageStatus(ctx, messageHash, status, timestamp); err != nil {
		return nil, fmt.Errorf("failed to update message %s: %w", messageHash, err)
	}
	messageTransitions.WithLabelValues(string(current.Status), string(status)).Inc()

	t.logger.Debug("relay outcome recorded",
		zap.Stringer("messageHash", messageHash),
		zap.String("status", string(status)),
		zap.String("executingMessage", executingMessageID),
	)
	return link, nil
}
