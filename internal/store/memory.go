package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/delvtech/agent0-sub002/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	pools  map[string]*model.Pool
	ledger []model.LedgerEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools: make(map[string]*model.Pool),
	}
}

func (s *MemoryStore) CreatePool(_ context.Context, p *model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createPool(p)
}

func (s *MemoryStore) createPool(p *model.Pool) error {
	for _, existing := range s.pools {
		if existing.Symbol == p.Symbol {
			return fmt.Errorf("%w: %s", ErrPoolExists, p.Symbol)
		}
	}

	// Store a copy to avoid external mutation.
	cp := *p
	s.pools[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPool(_ context.Context, id string) (*model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: pool %s", ErrNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetPoolBySymbol(_ context.Context, symbol string) (*model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.pools {
		if p.Symbol == symbol {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: pool %s", ErrNotFound, symbol)
}

func (s *MemoryStore) ListPools(_ context.Context) ([]model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pools := make([]model.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, *p)
	}
	sort.Slice(pools, func(i, j int) bool {
		return pools[i].CreatedAt.After(pools[j].CreatedAt)
	})
	return pools, nil
}

func (s *MemoryStore) UpdatePoolState(_ context.Context, p *model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatePool(p)
}

func (s *MemoryStore) updatePool(p *model.Pool) error {
	existing, ok := s.pools[p.ID]
	if !ok {
		return fmt.Errorf("%w: pool %s", ErrNotFound, p.ID)
	}
	existing.ShareReserves = p.ShareReserves
	existing.BondReserves = p.BondReserves
	existing.LPTotalSupply = p.LPTotalSupply
	existing.SharePrice = p.SharePrice
	existing.BaseBuffer = p.BaseBuffer
	existing.BondBuffer = p.BondBuffer
	existing.LongsOutstanding = p.LongsOutstanding
	existing.ShortsOutstanding = p.ShortsOutstanding
	existing.GovFeesAccrued = p.GovFeesAccrued
	existing.SpotPrice = p.SpotPrice
	existing.APR = p.APR
	existing.UpdatedAt = p.UpdatedAt
	return nil
}

func (s *MemoryStore) InsertLedgerEntry(_ context.Context, entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger = append(s.ledger, *entry)
	return nil
}

// InitializePool creates the pool and its bootstrap entry under one lock.
func (s *MemoryStore) InitializePool(_ context.Context, p *model.Pool, entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.createPool(p); err != nil {
		return err
	}
	s.ledger = append(s.ledger, *entry)
	return nil
}

// RecordAction updates the pool and appends the entry under one lock.
func (s *MemoryStore) RecordAction(_ context.Context, p *model.Pool, entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updatePool(p); err != nil {
		return err
	}
	s.ledger = append(s.ledger, *entry)
	return nil
}

func (s *MemoryStore) GetLedgerEntriesByPool(_ context.Context, poolID string) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if e.PoolID == poolID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetLedgerEntriesByUser(_ context.Context, userID string) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if e.UserID == userID {
			result = append(result, e)
		}
	}
	return result, nil
}

// GetUserPositions aggregates ledger entries into positions per pool.
func (s *MemoryStore) GetUserPositions(_ context.Context, userID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg := make(map[string]*model.Position)
	var order []string

	// Aggregate from ledger (single lock, no re-entrant calls).
	for _, e := range s.ledger {
		if e.UserID != userID {
			continue
		}
		p, ok := agg[e.PoolID]
		if !ok {
			p = &model.Position{UserID: userID, PoolID: e.PoolID}
			if pool := s.pools[e.PoolID]; pool != nil { // direct access, already under RLock
				p.Symbol = pool.Symbol
				p.Asset = pool.Asset
			}
			agg[e.PoolID] = p
			order = append(order, e.PoolID)
		}
		p.Longs = p.Longs.Add(e.Longs)
		p.Shorts = p.Shorts.Add(e.Shorts)
		p.LPShares = p.LPShares.Add(e.LPShares)
		p.NetBase = p.NetBase.Add(e.Base)
		p.FeesPaid = p.FeesPaid.Add(e.Fee)
	}

	positions := make([]model.Position, 0, len(order))
	for _, id := range order {
		positions = append(positions, *agg[id])
	}
	return positions, nil
}
