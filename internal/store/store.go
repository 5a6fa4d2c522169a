// Package store defines the persistence interface for the pricing service.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/delvtech/agent0-sub002/internal/model"
)

var (
	ErrNotFound   = errors.New("store: not found")
	ErrPoolExists = errors.New("store: pool already exists")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Pool operations ---

	// CreatePool persists a new pool. Symbols are unique.
	CreatePool(ctx context.Context, pool *model.Pool) error

	// GetPool retrieves a pool by its ID.
	GetPool(ctx context.Context, id string) (*model.Pool, error)

	// GetPoolBySymbol retrieves a pool by its symbol.
	GetPoolBySymbol(ctx context.Context, symbol string) (*model.Pool, error)

	// ListPools returns all pools.
	ListPools(ctx context.Context) ([]model.Pool, error)

	// UpdatePoolState overwrites the reserves, buffers, fees accrued and
	// quotes of an existing pool.
	UpdatePoolState(ctx context.Context, pool *model.Pool) error

	// InitializePool creates a pool together with the ledger entry of its
	// first liquidity provider. Neither is written if either fails.
	InitializePool(ctx context.Context, pool *model.Pool, entry *model.LedgerEntry) error

	// RecordAction writes a pool's new state together with the ledger entry
	// of the action that produced it. Neither is written if either fails.
	RecordAction(ctx context.Context, pool *model.Pool, entry *model.LedgerEntry) error

	// --- Immutable ledger ---

	// InsertLedgerEntry appends an immutable action record.
	InsertLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error

	// GetLedgerEntriesByPool returns all actions on a pool, oldest first.
	GetLedgerEntriesByPool(ctx context.Context, poolID string) ([]model.LedgerEntry, error)

	// GetLedgerEntriesByUser returns all actions by a user, oldest first.
	GetLedgerEntriesByUser(ctx context.Context, userID string) ([]model.LedgerEntry, error)

	// --- Position queries ---

	// GetUserPositions aggregates the ledger into one position per pool.
	GetUserPositions(ctx context.Context, userID string) ([]model.Position, error)
}
