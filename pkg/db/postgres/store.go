// Package postgres stores the indexer tables in PostgreSQL. The layout mirrors the badger store so
// downstream consumers see identical keys. The tables are provisioned outside of the indexer from the
// DDL in schema.sql, exposed as Schema.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/interop-labs/interop-indexer/pkg/db"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var insertedRowsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "interop_indexer_postgres_rows_inserted_total",
		Help: "Total number of rows inserted into postgres, by table",
	}, []string{"table"})

// pgUniqueViolation is the SQLSTATE of a unique constraint violation.
const pgUniqueViolation = "23505"

const (
	upsertTransactionSQL = `
		INSERT INTO "transaction" (id, hash, timestamp, chain_id, from_address, to_address, value, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	selectTransactionSQL = `
		SELECT hash, timestamp, chain_id, from_address, to_address, value::text AS value, data
		FROM "transaction"
		WHERE id = $1`

	upsertIdentifierSQL = `
		INSERT INTO identifier (id, chain_id, origin, block_number, log_index, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	selectIdentifierSQL = `
		SELECT id, chain_id::text AS chain_id, origin, block_number::text AS block_number,
			log_index::text AS log_index, timestamp::text AS timestamp
		FROM identifier
		WHERE id = $1`

	insertExecutingMessageSQL = `
		INSERT INTO executing_message (id, block_hash, block_number, log_index, chain_id, message_payload_hash, identifier_id, transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	executingMessageColumns = `id, block_hash, block_number, log_index, chain_id, message_payload_hash, identifier_id, transaction_id`

	selectExecutingMessageSQL = `
		SELECT ` + executingMessageColumns + `
		FROM executing_message
		WHERE id = $1`

	findExecutingMessagesSQL = `
		SELECT ` + executingMessageColumns + `
		FROM executing_message
		WHERE block_hash = $1 AND message_payload_hash = $2
		ORDER BY log_index`

	insertMessageSQL = `
		INSERT INTO cross_chain_message (id, source_chain_id, destination_chain_id, target, message_nonce, sender, message, message_hash, status, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	selectMessageSQL = `
		SELECT source_chain_id::text AS source_chain_id, destination_chain_id::text AS destination_chain_id, target, message_nonce::text AS message_nonce, sender, message, message_hash, status, last_updated_at
		FROM cross_chain_message
		WHERE id = $1`

	updateMessageStatusSQL = `
		UPDATE cross_chain_message
		SET status = $1, last_updated_at = $2
		WHERE id = $3`

	insertLinkSQL = `
		INSERT INTO message_transaction_link (id, event_name, executing_message_id, message_id, transaction_id)
		VALUES ($1, $2, $3, $4, $5)`

	linkColumns = `id, event_name, COALESCE(executing_message_id, '') AS executing_message_id, message_id, transaction_id`

	selectLinkSQL = `
		SELECT ` + linkColumns + `
		FROM message_transaction_link
		WHERE id = $1`

	linksForMessageSQL = `
		SELECT ` + linkColumns + `
		FROM message_transaction_link
		WHERE message_id = $1
		ORDER BY transaction_id`
)

type transactionRow struct {
	Hash      common.Hash     `db:"hash"`
	Timestamp uint64          `db:"timestamp"`
	ChainID   uint64          `db:"chain_id"`
	From      common.Address  `db:"from_address"`
	To        *common.Address `db:"to_address"`
	Value     string          `db:"value"`
	Data      []byte          `db:"data"`
}

type identifierRow struct {
	ID          string         `db:"id"`
	ChainID     string         `db:"chain_id"`
	Origin      common.Address `db:"origin"`
	BlockNumber string         `db:"block_number"`
	LogIndex    string         `db:"log_index"`
	Timestamp   string         `db:"timestamp"`
}

type messageRow struct {
	SourceChainID      string         `db:"source_chain_id"`
	DestinationChainID string         `db:"destination_chain_id"`
	Target             common.Address `db:"target"`
	Nonce              string         `db:"message_nonce"`
	Sender             common.Address `db:"sender"`
	Message            []byte         `db:"message"`
	MessageHash        common.Hash    `db:"message_hash"`
	Status             string         `db:"status"`
	LastUpdatedAt      uint64         `db:"last_updated_at"`
}

// Store implements db.Store on PostgreSQL.
type Store struct {
	conn *sqlx.DB
}

var _ db.Store = (*Store)(nil)

func NewStore(conn *sqlx.DB) *Store {
	return &Store{conn: conn}
}

// connectTimeout bounds the retries of Open while the database comes up.
const connectTimeout = time.Minute

// Open connects to the database at url and verifies the connection. Failed attempts are retried with
// exponential backoff until connectTimeout elapses or ctx is done.
func Open(ctx context.Context, url string) (*Store, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = connectTimeout

	var conn *sqlx.DB
	err := backoff.Retry(func() error {
		c, err := sqlx.ConnectContext(ctx, "postgres", url)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return NewStore(conn), nil
}

// Schema is the DDL of the tables the store reads and writes. Every statement is idempotent.
//
//go:embed schema.sql
var Schema string

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) UpsertTransaction(ctx context.Context, tx *db.Transaction) error {
	var to any
	if tx.To != nil {
		to = *tx.To
	}
	return s.exec(ctx, db.OpUpsert, "transaction", tx.Hash.Hex(), upsertTransactionSQL,
		tx.Hash, tx.Hash, tx.Timestamp, tx.ChainID, tx.From, to, bigString(tx.Value), []byte(tx.Data))
}

func (s *Store) GetTransaction(ctx context.Context, hash common.Hash) (*db.Transaction, error) {
	var row transactionRow
	if err := s.get(ctx, hash.Hex(), &row, selectTransactionSQL, hash); err != nil {
		return nil, err
	}
	value, err := parseBig(row.Value)
	if err != nil {
		return nil, &db.DBError{Op: db.OpRead, Key: []byte(hash.Hex()), Err: errors.Join(db.ErrUnmarshal, err)}
	}
	return &db.Transaction{
		Hash:      row.Hash,
		Timestamp: row.Timestamp,
		ChainID:   row.ChainID,
		From:      row.From,
		To:        row.To,
		Value:     value,
		Data:      row.Data,
	}, nil
}

func (s *Store) UpsertIdentifier(ctx context.Context, id *db.Identifier) error {
	return s.exec(ctx, db.OpUpsert, "identifier", id.ID, upsertIdentifierSQL,
		id.ID, bigString(id.ChainID), id.Origin, bigString(id.BlockNumber), bigString(id.LogIndex), bigString(id.Timestamp))
}

func (s *Store) GetIdentifier(ctx context.Context, id string) (*db.Identifier, error) {
	var row identifierRow
	if err := s.get(ctx, id, &row, selectIdentifierSQL, id); err != nil {
		return nil, err
	}
	numbers, err := parseBigs(row.ChainID, row.BlockNumber, row.LogIndex, row.Timestamp)
	if err != nil {
		return nil, &db.DBError{Op: db.OpRead, Key: []byte(id), Err: errors.Join(db.ErrUnmarshal, err)}
	}
	return &db.Identifier{
		ID:          row.ID,
		ChainID:     numbers[0],
		Origin:      row.Origin,
		BlockNumber: numbers[1],
		LogIndex:    numbers[2],
		Timestamp:   numbers[3],
	}, nil
}

func (s *Store) CreateExecutingMessage(ctx context.Context, m *db.ExecutingMessage) error {
	return s.exec(ctx, db.OpCreate, "executing_message", m.ID, insertExecutingMessageSQL,
		m.ID, m.BlockHash, m.BlockNumber, m.LogIndex, m.ChainID, m.MessagePayloadHash, m.IdentifierID, m.TransactionID)
}

func (s *Store) GetExecutingMessage(ctx context.Context, id string) (*db.ExecutingMessage, error) {
	var m db.ExecutingMessage
	if err := s.get(ctx, id, &m, selectExecutingMessageSQL, id); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) FindExecutingMessages(ctx context.Context, blockHash common.Hash, payloadHash common.Hash) ([]*db.ExecutingMessage, error) {
	result := []*db.ExecutingMessage{}
	if err := s.conn.SelectContext(ctx, &result, findExecutingMessagesSQL, blockHash, payloadHash); err != nil {
		return nil, &db.DBError{Op: db.OpRead, Key: []byte(blockHash.Hex() + "/" + payloadHash.Hex()), Err: err}
	}
	return result, nil
}

func (s *Store) CreateMessage(ctx context.Context, m *db.CrossChainMessage) error {
	return s.exec(ctx, db.OpCreate, "cross_chain_message", m.MessageHash.Hex(), insertMessageSQL,
		m.MessageHash, bigString(m.SourceChainID), bigString(m.DestinationChainID), m.Target, bigString(m.Nonce), m.Sender,
		[]byte(m.Payload), m.MessageHash, string(m.Status), m.LastUpdatedAt)
}

func (s *Store) GetMessage(ctx context.Context, messageHash common.Hash) (*db.CrossChainMessage, error) {
	var row messageRow
	if err := s.get(ctx, messageHash.Hex(), &row, selectMessageSQL, messageHash); err != nil {
		return nil, err
	}
	numbers, err := parseBigs(row.SourceChainID, row.DestinationChainID, row.Nonce)
	if err != nil {
		return nil, &db.DBError{Op: db.OpRead, Key: []byte(messageHash.Hex()), Err: errors.Join(db.ErrUnmarshal, err)}
	}
	return &db.CrossChainMessage{
		MessageHash:        row.MessageHash,
		SourceChainID:      numbers[0],
		DestinationChainID: numbers[1],
		Target:             row.Target,
		Nonce:              numbers[2],
		Sender:             row.Sender,
		Payload:            row.Message,
		Status:             db.MessageStatus(row.Status),
		LastUpdatedAt:      row.LastUpdatedAt,
	}, nil
}

func (s *Store) UpdateMessageStatus(ctx context.Context, messageHash common.Hash, status db.MessageStatus, updatedAt uint64) error {
	if !status.Valid() {
		return fmt.Errorf("invalid message status %q", status)
	}

	k := []byte(messageHash.Hex())
	res, err := s.conn.ExecContext(ctx, updateMessageStatusSQL, string(status), updatedAt, messageHash)
	if err != nil {
		return &db.DBError{Op: db.OpUpdate, Key: k, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &db.DBError{Op: db.OpUpdate, Key: k, Err: err}
	}
	if n == 0 {
		return &db.DBError{Op: db.OpUpdate, Key: k, Err: db.ErrNotFound}
	}
	return nil
}

func (s *Store) CreateLink(ctx context.Context, l *db.MessageTransactionLink) error {
	executingMessageID := sql.NullString{String: l.ExecutingMessageID, Valid: l.ExecutingMessageID != ""}
	return s.exec(ctx, db.OpCreate, "message_transaction_link", l.ID, insertLinkSQL,
		l.ID, string(l.EventName), executingMessageID, l.MessageHash, l.TransactionID)
}

func (s *Store) GetLink(ctx context.Context, id string) (*db.MessageTransactionLink, error) {
	var l db.MessageTransactionLink
	if err := s.get(ctx, id, &l, selectLinkSQL, id); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) LinksForMessage(ctx context.Context, messageHash common.Hash) ([]*db.MessageTransactionLink, error) {
	result := []*db.MessageTransactionLink{}
	if err := s.conn.SelectContext(ctx, &result, linksForMessageSQL, messageHash); err != nil {
		return nil, &db.DBError{Op: db.OpRead, Key: []byte(messageHash.Hex()), Err: err}
	}
	return result, nil
}

func (s *Store) exec(ctx context.Context, op db.Operation, table string, id string, query string, args ...any) error {
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			err = db.ErrAlreadyExists
		}
		return &db.DBError{Op: op, Key: []byte(id), Err: err}
	}

	// Upserts that hit an existing row affect nothing.
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		insertedRowsTotal.WithLabelValues(table).Add(float64(n))
	}
	return nil
}

func (s *Store) get(ctx context.Context, id string, dest any, query string, args ...any) error {
	if err := s.conn.GetContext(ctx, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = db.ErrNotFound
		}
		return &db.DBError{Op: db.OpRead, Key: []byte(id), Err: err}
	}
	return nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}

func parseBigs(values ...string) ([]*big.Int, error) {
	result := make([]*big.Int, len(values))
	for i, s := range values {
		v, err := parseBig(s)
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}
