package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/interop-labs/interop-indexer/pkg/correlator"
	"github.com/interop-labs/interop-indexer/pkg/db"
	"github.com/interop-labs/interop-indexer/pkg/db/postgres"
	"github.com/interop-labs/interop-indexer/pkg/ingest"
	ipfslog "github.com/ipfs/go-log/v2"
	"go.uber.org/zap"
)

const rootLoggerName = "interop-indexer"

// NewLogger creates the root logger and sets the level of every go-log logger.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := ipfslog.LevelFromString(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger := ipfslog.Logger(rootLoggerName).Desugar()
	ipfslog.SetAllLoggers(lvl)
	return logger, nil
}

// Indexer owns the store and the processing pipeline of one indexer instance.
type Indexer struct {
	logger    *zap.Logger
	store     db.Store
	decoder   *ingest.Decoder
	processor *ingest.Processor
}

// New validates cfg, opens the configured store and wires the pipeline on top of it.
func New(ctx context.Context, logger *zap.Logger, cfg *Config) (*Indexer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := openStore(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}

	indexer, err := newIndexer(logger, store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return indexer, nil
}

func openStore(ctx context.Context, logger *zap.Logger, cfg *Config) (db.Store, error) {
	if cfg.PostgresURL != "" {
		store, err := postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		logger.Info("using postgres store")
		return store, nil
	}
	store, err := db.OpenDb(logger, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func newIndexer(logger *zap.Logger, store db.Store, cfg *Config) (*Indexer, error) {
	resolver, err := correlator.NewResolver(logger, store, cfg.PayloadHashCacheSize)
	if err != nil {
		return nil, err
	}
	tracker := correlator.NewTracker(logger, store, resolver)
	handlers := ingest.NewHandlers(logger, store, tracker)

	chainIDs := cfg.ChainIDs()
	for _, chain := range cfg.Chains {
		logger.Info("indexing chain", zap.Uint64("chainId", chain.ChainID), zap.String("name", chain.Name))
	}

	return &Indexer{
		logger:    logger,
		store:     store,
		decoder:   ingest.NewDecoder(common.HexToAddress(cfg.MessengerAddress), common.HexToAddress(cfg.InboxAddress)),
		processor: ingest.NewProcessor(logger, handlers, chainIDs...),
	}, nil
}

// Store returns the store the indexer writes to.
func (i *Indexer) Store() db.Store {
	return i.store
}

// Run processes events until the channel is closed, ctx is canceled or an event fails.
// Events must be delivered in causal order, see ingest.Processor.
func (i *Indexer) Run(ctx context.Context, events <-chan ingest.Event) error {
	return i.processor.Run(ctx, events)
}

// Replay processes a hand-ordered sequence of events.
func (i *Indexer) Replay(ctx context.Context, events []ingest.Event) error {
	return i.processor.Replay(ctx, events)
}

// IngestLog decodes and processes a single raw log. Logs that are not indexed events are skipped and
// reported with ok == false.
func (i *Indexer) IngestLog(ctx context.Context, chainID uint64, l types.Log, blockTimestamp uint64, tx ingest.Transaction) (ok bool, err error) {
	ev, err := i.decoder.Decode(chainID, l, blockTimestamp, tx)
	if err != nil {
		if errors.Is(err, ingest.ErrUnknownLog) || errors.Is(err, ingest.ErrRemovedLog) {
			i.logger.Debug("skipping log",
				zap.Uint64("chainId", chainID),
				zap.Stringer("address", l.Address),
				zap.Stringer("txHash", l.TxHash),
				zap.Error(err),
			)
			return false, nil
		}
		return false, err
	}
	if err := i.processor.Process(ctx, ev); err != nil {
		return false, err
	}
	return true, nil
}

func (i *Indexer) Close() error {
	return i.store.Close()
}
