package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	eventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interop_indexer_events_processed_total",
			Help: "Total number of events applied to the store, by kind",
		}, []string{"kind"})

	eventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interop_indexer_events_failed_total",
			Help: "Total number of events whose handler failed, by kind",
		}, []string{"kind"})

	handlerLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "interop_indexer_handler_latency_seconds",
			Help:    "Latency of applying a single event, by kind",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"kind"})

	positionRegressions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interop_indexer_position_regressions_total",
			Help: "Total number of events delivered at or before the last position seen on their chain",
		}, []string{"chain_id"})
)

// Processor applies events one at a time.
//
// The caller must deliver events in causal order: on every chain by (block number, log index), and across
// chains so that a SentMessage precedes every relay outcome of its message and an ExecutingMessage precedes
// the relay outcome it produced. The Processor does not reorder or buffer. It stops at the first event whose
// handler fails.
type Processor struct {
	logger   *zap.Logger
	handlers *Handlers
	// chains restricts the accepted chain ids. Empty accepts every chain.
	chains map[uint64]struct{}
	// last is the position of the last event applied per chain.
	last map[uint64]Envelope
}

func NewProcessor(logger *zap.Logger, handlers *Handlers, chainIDs ...uint64) *Processor {
	chains := make(map[uint64]struct{}, len(chainIDs))
	for _, id := range chainIDs {
		chains[id] = struct{}{}
	}
	return &Processor{
		logger:   logger.With(zap.String("component", "processor")),
		handlers: handlers,
		chains:   chains,
		last:     make(map[uint64]Envelope),
	}
}

// Run consumes events until the channel is closed, the context is canceled or a handler fails.
func (p *Processor) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				p.logger.Info("event stream closed")
				return nil
			}
			if err := p.Process(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// Replay applies a hand-ordered sequence of events.
func (p *Processor) Replay(ctx context.Context, events []Event) error {
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Process(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// Process applies a single event.
func (p *Processor) Process(ctx context.Context, ev Event) error {
	env := ev.Meta()
	kind := ev.Kind().String()

	if len(p.chains) > 0 {
		if _, ok := p.chains[env.ChainID]; !ok {
			eventsFailed.WithLabelValues(kind).Inc()
			return fmt.Errorf("%s at %s: chain %d is not configured", kind, env.LogID(), env.ChainID)
		}
	}

	if last, ok := p.last[env.ChainID]; ok && !last.before(env) {
		positionRegressions.WithLabelValues(fmt.Sprint(env.ChainID)).Inc()
		p.logger.Warn("event delivered out of order",
			zap.String("kind", kind),
			zap.Uint64("chainId", env.ChainID),
			zap.Uint64("blockNumber", env.Block.Number),
			zap.Uint64("logIndex", env.LogIndex),
			zap.Uint64("lastBlockNumber", last.Block.Number),
			zap.Uint64("lastLogIndex", last.LogIndex),
		)
	}

	start := time.Now()
	err := p.handlers.Handle(ctx, ev)
	handlerLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		eventsFailed.WithLabelValues(kind).Inc()
		p.logger.Error("failed to process event",
			zap.String("kind", kind),
			zap.Uint64("chainId", env.ChainID),
			zap.String("logId", env.LogID()),
			zap.Stringer("txHash", env.Tx.Hash),
			zap.Error(err),
		)
		return fmt.Errorf("%s at %s on chain %d: %w", kind, env.LogID(), env.ChainID, err)
	}

	p.last[env.ChainID] = *env
	eventsProcessed.WithLabelValues(kind).Inc()
	return nil
}
