package db

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("record not found in store")
	ErrAlreadyExists = errors.New("record already exists in store")
	ErrMarshal       = errors.New("db: marshal")
	ErrUnmarshal     = errors.New("db: unmarshal")
)

// Operation represents a database operation type
type Operation string

const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpsert Operation = "upsert"
	OpUpdate Operation = "update"
)

type DBError struct {
	Op  Operation
	Key []byte
	Err error
}

func (e *DBError) Unwrap() error {
	return e.Err
}

func (e *DBError) Error() string {
	return fmt.Sprintf("database: %s key: %s error: %v", e.Op, e.Key, e.Err)
}
