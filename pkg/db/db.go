package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var storedRecordsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "interop_indexer_db_records_created_total",
		Help: "Total number of records created in the database, by table",
	}, []string{"table"})

// Define prefixes used to isolate the tables stored in the database.
const (
	transactionPrefix      = "XMSG:TX:V1:"
	identifierPrefix       = "XMSG:IDENT:V1:"
	executingMessagePrefix = "XMSG:EXEC:V1:"
	executingIndexPrefix   = "XMSG:EXECIDX:V1:"
	messagePrefix          = "XMSG:MSG:V1:"
	linkPrefix             = "XMSG:LINK:V1:"
)

// Table names used in metrics.
const (
	tableTransaction      = "transaction"
	tableIdentifier       = "identifier"
	tableExecutingMessage = "executing_message"
	tableMessage          = "cross_chain_message"
	tableLink             = "message_transaction_link"
)

// Database stores the indexer tables in badger. Records are JSON encoded under a per-table key prefix.
// ExecutingMessages additionally get an index entry keyed by (blockHash, payloadHash) so they can be
// looked up by content.
type Database struct {
	db *badger.DB
}

func NewDatabase(dbConn *badger.DB) *Database {
	return &Database{
		db: dbConn,
	}
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Conn returns a pointer to the underlying database connection.
func (d *Database) Conn() *badger.DB {
	return d.db
}

func transactionKey(hash common.Hash) []byte {
	return key(transactionPrefix, hash.Hex())
}

func identifierKey(id string) []byte {
	return key(identifierPrefix, id)
}

func executingMessageKey(id string) []byte {
	return key(executingMessagePrefix, id)
}

func executingIndexPrefixKey(blockHash, payloadHash common.Hash) []byte {
	return fmt.Appendf(nil, "%v%v/%v/", executingIndexPrefix, blockHash.Hex(), payloadHash.Hex())
}

func executingIndexKey(m *ExecutingMessage) []byte {
	return append(executingIndexPrefixKey(m.BlockHash, m.MessagePayloadHash), m.ID...)
}

func messageKey(hash common.Hash) []byte {
	return key(messagePrefix, hash.Hex())
}

func linkKey(id string) []byte {
	return key(linkPrefix, id)
}

// linkMessagePrefix selects every link of a message, since link ids start with the message hash.
func linkMessagePrefix(messageHash common.Hash) []byte {
	return key(linkPrefix, messageHash.Hex()+"-")
}

func key(prefix string, id string) []byte {
	return fmt.Appendf(nil, "%v%v", prefix, id)
}

func (d *Database) UpsertTransaction(ctx context.Context, tx *Transaction) error {
	return d.insert(ctx, tableTransaction, transactionKey(tx.Hash), tx, true)
}

func (d *Database) GetTransaction(ctx context.Context, hash common.Hash) (*Transaction, error) {
	var tx Transaction
	if err := d.get(ctx, transactionKey(hash), &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (d *Database) UpsertIdentifier(ctx context.Context, id *Identifier) error {
	return d.insert(ctx, tableIdentifier, identifierKey(id.ID), id, true)
}

func (d *Database) GetIdentifier(ctx context.Context, id string) (*Identifier, error) {
	var ident Identifier
	if err := d.get(ctx, identifierKey(id), &ident); err != nil {
		return nil, err
	}
	return &ident, nil
}

func (d *Database) CreateExecutingMessage(ctx context.Context, m *ExecutingMessage) error {
	return d.insert(ctx, tableExecutingMessage, executingMessageKey(m.ID), m, false, executingIndexKey(m))
}

func (d *Database) GetExecutingMessage(ctx context.Context, id string) (*ExecutingMessage, error) {
	var m ExecutingMessage
	if err := d.get(ctx, executingMessageKey(id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// FindExecutingMessages returns every ExecutingMessage observed in blockHash with the given payload hash.
// The result is ordered by id; callers that care about log order must sort themselves.
func (d *Database) FindExecutingMessages(ctx context.Context, blockHash common.Hash, payloadHash common.Hash) ([]*ExecutingMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := executingIndexPrefixKey(blockHash, payloadHash)
	result := make([]*ExecutingMessage, 0, 1)
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := bytes.TrimPrefix(it.Item().KeyCopy(nil), prefix)
			var m ExecutingMessage
			if err := readJSON(txn, executingMessageKey(string(id)), &m); err != nil {
				return fmt.Errorf("index entry %s: %w", id, err)
			}
			result = append(result, &m)
		}
		return nil
	})
	if err != nil {
		return nil, &DBError{Op: OpRead, Key: prefix, Err: err}
	}

	return result, nil
}

func (d *Database) CreateMessage(ctx context.Context, m *CrossChainMessage) error {
	return d.insert(ctx, tableMessage, messageKey(m.MessageHash), m, false)
}

func (d *Database) GetMessage(ctx context.Context, messageHash common.Hash) (*CrossChainMessage, error) {
	var m CrossChainMessage
	if err := d.get(ctx, messageKey(messageHash), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMessageStatus sets the status and lastUpdatedAt of an existing message. No other field is touched.
func (d *Database) UpdateMessageStatus(ctx context.Context, messageHash common.Hash, status MessageStatus, updatedAt uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("invalid message status %q", status)
	}

	k := messageKey(messageHash)
	err := d.db.Update(func(txn *badger.Txn) error {
		var m CrossChainMessage
		if err := readJSON(txn, k, &m); err != nil {
			return err
		}
		m.Status = status
		m.LastUpdatedAt = updatedAt
		return writeJSON(txn, k, &m)
	})
	if err != nil {
		return &DBError{Op: OpUpdate, Key: k, Err: err}
	}
	return nil
}

func (d *Database) CreateLink(ctx context.Context, l *MessageTransactionLink) error {
	return d.insert(ctx, tableLink, linkKey(l.ID), l, false)
}

func (d *Database) GetLink(ctx context.Context, id string) (*MessageTransactionLink, error) {
	var l MessageTransactionLink
	if err := d.get(ctx, linkKey(id), &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// LinksForMessage returns the links of a message ordered by transaction hash.
func (d *Database) LinksForMessage(ctx context.Context, messageHash common.Hash) ([]*MessageTransactionLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := linkMessagePrefix(messageHash)
	result := []*MessageTransactionLink{}
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 10
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var l MessageTransactionLink
			if err := json.Unmarshal(data, &l); err != nil {
				return errors.Join(ErrUnmarshal, err)
			}
			result = append(result, &l)
		}
		return nil
	})
	if err != nil {
		return nil, &DBError{Op: OpRead, Key: prefix, Err: err}
	}

	return result, nil
}

// insert writes v under k together with the given index keys. If the key is already present the
// write is skipped when ignoreExisting is set (upsert with an empty update), and fails with
// ErrAlreadyExists otherwise.
func (d *Database) insert(ctx context.Context, table string, k []byte, v any, ignoreExisting bool, indexKeys ...[]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	op := OpCreate
	if ignoreExisting {
		op = OpUpsert
	}

	created := false
	err := d.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		switch {
		case err == nil:
			if ignoreExisting {
				return nil
			}
			return ErrAlreadyExists
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		if err := writeJSON(txn, k, v); err != nil {
			return err
		}
		for _, ik := range indexKeys {
			if err := txn.Set(ik, nil); err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return &DBError{Op: op, Key: k, Err: err}
	}

	if created {
		storedRecordsTotal.WithLabelValues(table).Inc()
	}
	return nil
}

func (d *Database) get(ctx context.Context, k []byte, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.db.View(func(txn *badger.Txn) error {
		return readJSON(txn, k, v)
	}); err != nil {
		return &DBError{Op: OpRead, Key: k, Err: err}
	}
	return nil
}

func readJSON(txn *badger.Txn, k []byte, v any) error {
	item, err := txn.Get(k)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, v); err != nil {
			return errors.Join(ErrUnmarshal, err)
		}
		return nil
	})
}

func writeJSON(txn *badger.Txn, k []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Join(ErrMarshal, err)
	}
	return txn.Set(k, b)
}
