package db

import (
	"fmt"
	"os"
	"path"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// Open opens (or creates) a badger database at dbPath.
func Open(dbPath string) (*Database, error) {
	opts := badger.DefaultOptions(dbPath).WithLogger(nil)
	conn, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewDatabase(conn), nil
}

// OpenDb opens the database under <dataDir>/db, creating the directory if needed.
func OpenDb(logger *zap.Logger, dataDir string) (*Database, error) {
	dbPath := path.Join(dataDir, "db")
	if err := os.MkdirAll(dbPath, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}

	logger.Info("opened database", zap.String("path", dbPath))
	return db, nil
}
