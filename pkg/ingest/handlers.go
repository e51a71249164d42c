package ingest

import (
	"context"
	"fmt"
	"math/big"

	"github.com/interop-labs/interop-indexer/pkg/correlator"
	"github.com/interop-labs/interop-indexer/pkg/db"
	"github.com/interop-labs/interop-indexer/pkg/interop"
	"go.uber.org/zap"
)

// Handlers applies events to the store. Each handler runs at most once per log occurrence and completes all of
// its writes before returning.
type Handlers struct {
	logger  *zap.Logger
	store   db.Store
	tracker *correlator.Tracker
}

func NewHandlers(logger *zap.Logger, store db.Store, tracker *correlator.Tracker) *Handlers {
	return &Handlers{
		logger:  logger,
		store:   store,
		tracker: tracker,
	}
}

// Handle dispatches ev to the handler of its kind.
func (h *Handlers) Handle(ctx context.Context, ev Event) error {
	switch ev.Kind() {
	case KindExecutingMessage:
		return h.handleExecutingMessage(ctx, ev.(*ExecutingMessageEvent))
	case KindSentMessage:
		return h.handleSentMessage(ctx, ev.(*SentMessageEvent))
	case KindRelayedMessage:
		return h.handleRelayedMessage(ctx, ev.(*RelayedMessageEvent))
	case KindFailedRelayedMessage:
		return h.handleFailedRelayedMessage(ctx, ev.(*FailedRelayedMessageEvent))
	default:
		return fmt.Errorf("unknown event kind %v", ev.Kind())
	}
}

func (h *Handlers) storeTransaction(ctx context.Context, env *Envelope) error {
	tx := env.transaction()
	if err := h.store.UpsertTransaction(ctx, tx); err != nil {
		return fmt.Errorf("failed to store transaction %s: %w", tx.Hash, err)
	}
	return nil
}

func (h *Handlers) handleExecutingMessage(ctx context.Context, ev *ExecutingMessageEvent) error {
	if err := h.storeTransaction(ctx, &ev.Envelope); err != nil {
		return err
	}

	id := ev.Identifier
	ident := &db.Identifier{
		ID:          db.IdentifierID(id.ChainID, id.BlockNumber, id.LogIndex),
		ChainID:     id.ChainID,
		Origin:      id.Origin,
		BlockNumber: id.BlockNumber,
		LogIndex:    id.LogIndex,
		Timestamp:   id.Timestamp,
	}
	if err := h.store.UpsertIdentifier(ctx, ident); err != nil {
		return fmt.Errorf("failed to store identifier %s: %w", ident.ID, err)
	}

	m := &db.ExecutingMessage{
		ID:                 ev.LogID(),
		BlockHash:          ev.Block.Hash,
		BlockNumber:        ev.Block.Number,
		LogIndex:           ev.LogIndex,
		ChainID:            ev.ChainID,
		MessagePayloadHash: ev.PayloadHash,
		IdentifierID:       ident.ID,
		TransactionID:      ev.Tx.Hash,
	}
	if err := h.store.CreateExecutingMessage(ctx, m); err != nil {
		return fmt.Errorf("failed to store executing message %s: %w", m.ID, err)
	}

	h.logger.Debug("executing message observed",
		zap.Uint64("chainId", ev.ChainID),
		zap.String("id", m.ID),
		zap.Stringer("payloadHash", ev.PayloadHash),
		zap.String("identifier", ident.ID),
	)
	return nil
}

func (h *Handlers) handleSentMessage(ctx context.Context, ev *SentMessageEvent) error {
	if err := h.storeTransaction(ctx, &ev.Envelope); err != nil {
		return err
	}

	msg := interop.Message{
		Source:      new(big.Int).SetUint64(ev.ChainID),
		Destination: ev.Destination,
		Nonce:       ev.Nonce,
		Sender:      ev.Sender,
		Target:      ev.Target,
		Payload:     ev.Message,
	}
	if _, err := h.tracker.Sent(ctx, msg, ev.Tx.Hash, ev.Block.Timestamp); err != nil {
		return err
	}
	return nil
}

func (h *Handlers) handleRelayedMessage(ctx context.Context, ev *RelayedMessageEvent) error {
	if err := h.storeTransaction(ctx, &ev.Envelope); err != nil {
		return err
	}
	_, err := h.tracker.Relayed(ctx, ev.MessageHash, ev.Block.Hash, ev.Tx.Hash, ev.Block.Timestamp)
	return err
}

func (h *Handlers) handleFailedRelayedMessage(ctx context.Context, ev *FailedRelayedMessageEvent) error {
	if err := h.storeTransaction(ctx, &ev.Envelope); err != nil {
		return err
	}
	_, err := h.tracker.FailedRelayed(ctx, ev.MessageHash, ev.Block.Hash, ev.Tx.Hash, ev.Block.Timestamp)
	return err
}
