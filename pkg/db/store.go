package db

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Store is the persistence surface used by the indexer. Upserts are create-or-ignore, creates fail
// with ErrAlreadyExists and reads/updates of a missing key fail with ErrNotFound.
//
// Implementations are not required to be safe for concurrent writers; the indexer processes events
// one at a time.
type Store interface {
	UpsertTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, hash common.Hash) (*Transaction, error)

	UpsertIdentifier(ctx context.Context, id *Identifier) error
	GetIdentifier(ctx context.Context, id string) (*Identifier, error)

	CreateExecutingMessage(ctx context.Context, m *ExecutingMessage) error
	GetExecutingMessage(ctx context.Context, id string) (*ExecutingMessage, error)
	FindExecutingMessages(ctx context.Context, blockHash common.Hash, payloadHash common.Hash) ([]*ExecutingMessage, error)

	CreateMessage(ctx context.Context, m *CrossChainMessage) error
	GetMessage(ctx context.Context, messageHash common.Hash) (*CrossChainMessage, error)
	UpdateMessageStatus(ctx context.Context, messageHash common.Hash, status MessageStatus, updatedAt uint64) error

	CreateLink(ctx context.Context, l *MessageTransactionLink) error
	GetLink(ctx context.Context, id string) (*MessageTransactionLink, error)
	LinksForMessage(ctx context.Context, messageHash common.Hash) ([]*MessageTransactionLink, error)

	Close() error
}

var _ Store = (*Database)(nil)
