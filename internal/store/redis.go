package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/delvtech/agent0-sub002/internal/model"
)

// CachedStore puts a Redis read-through cache in front of a primary Store.
// Pool snapshots, symbol lookups, user positions and pool histories are
// cached for ttl. Every write lands in the primary first and then drops the
// keys it made stale, so a Redis outage only costs cache hits.
type CachedStore struct {
	primary Store
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedStore wraps primary. rdb is usually a *redis.Client.
func NewCachedStore(primary Store, rdb redis.Cmdable, ttl time.Duration) *CachedStore {
	return &CachedStore{primary: primary, rdb: rdb, ttl: ttl}
}

const (
	poolPrefix      = "hd:pool:"
	symbolPrefix    = "hd:pool-symbol:"
	positionsPrefix = "hd:positions:"
	historyPrefix   = "hd:history:"
)

func poolKey(id string) string       { return poolPrefix + id }
func symbolKey(sym string) string    { return symbolPrefix + sym }
func positionsKey(uid string) string { return positionsPrefix + uid }
func historyKey(pid string) string   { return historyPrefix + pid }

// readThrough returns the cached JSON value at key, or loads, caches and
// returns it. Undecodable cache values count as misses.
func readThrough[V any](ctx context.Context, s *CachedStore, key string, load func() (V, error)) (V, error) {
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var v V
		if json.Unmarshal(data, &v) == nil {
			return v, nil
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	s.put(ctx, key, v)
	return v, nil
}

func (s *CachedStore) put(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func (s *CachedStore) cachePool(ctx context.Context, p *model.Pool) {
	s.put(ctx, poolKey(p.ID), p)
	s.rdb.Set(ctx, symbolKey(p.Symbol), p.ID, s.ttl)
}

// entryKeys lists the keys a new ledger entry makes stale.
func entryKeys(e *model.LedgerEntry) []string {
	return []string{positionsKey(e.UserID), historyKey(e.PoolID)}
}

func (s *CachedStore) CreatePool(ctx context.Context, p *model.Pool) error {
	if err := s.primary.CreatePool(ctx, p); err != nil {
		return err
	}
	s.cachePool(ctx, p)
	return nil
}

func (s *CachedStore) InitializePool(ctx context.Context, p *model.Pool, entry *model.LedgerEntry) error {
	if err := s.primary.InitializePool(ctx, p, entry); err != nil {
		return err
	}
	s.rdb.Del(ctx, entryKeys(entry)...)
	s.cachePool(ctx, p)
	return nil
}

func (s *CachedStore) UpdatePoolState(ctx context.Context, p *model.Pool) error {
	if err := s.primary.UpdatePoolState(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, poolKey(p.ID))
	return nil
}

func (s *CachedStore) RecordAction(ctx context.Context, p *model.Pool, entry *model.LedgerEntry) error {
	if err := s.primary.RecordAction(ctx, p, entry); err != nil {
		return err
	}
	s.rdb.Del(ctx, append(entryKeys(entry), poolKey(p.ID))...)
	return nil
}

func (s *CachedStore) InsertLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error {
	if err := s.primary.InsertLedgerEntry(ctx, entry); err != nil {
		return err
	}
	s.rdb.Del(ctx, entryKeys(entry)...)
	return nil
}

func (s *CachedStore) GetPool(ctx context.Context, id string) (*model.Pool, error) {
	return readThrough(ctx, s, poolKey(id), func() (*model.Pool, error) {
		return s.primary.GetPool(ctx, id)
	})
}

func (s *CachedStore) GetPoolBySymbol(ctx context.Context, symbol string) (*model.Pool, error) {
	if id, err := s.rdb.Get(ctx, symbolKey(symbol)).Result(); err == nil {
		return s.GetPool(ctx, id)
	}
	p, err := s.primary.GetPoolBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	s.cachePool(ctx, p)
	return p, nil
}

func (s *CachedStore) GetUserPositions(ctx context.Context, userID string) ([]model.Position, error) {
	return readThrough(ctx, s, positionsKey(userID), func() ([]model.Position, error) {
		return s.primary.GetUserPositions(ctx, userID)
	})
}

func (s *CachedStore) GetLedgerEntriesByPool(ctx context.Context, poolID string) ([]model.LedgerEntry, error) {
	return readThrough(ctx, s, historyKey(poolID), func() ([]model.LedgerEntry, error) {
		return s.primary.GetLedgerEntriesByPool(ctx, poolID)
	})
}

// ListPools and user histories are not cached: every write would have to
// invalidate them.
func (s *CachedStore) ListPools(ctx context.Context) ([]model.Pool, error) {
	return s.primary.ListPools(ctx)
}

func (s *CachedStore) GetLedgerEntriesByUser(ctx context.Context, userID string) ([]model.LedgerEntry, error) {
	return s.primary.GetLedgerEntriesByUser(ctx, userID)
}
