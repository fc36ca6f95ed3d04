package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"electric-ping/app/src/domain"
)

// DriverMemory selects the in-process store instead of PostgreSQL.
const DriverMemory = "memory"

// MemoryRepository keeps pings and results in process memory and satisfies the
// repository contract. Nothing survives a restart.
type MemoryRepository struct {
	mu      sync.RWMutex
	pings   map[string]domain.PingRecord
	results map[string]domain.PingResult
}

// NewMemoryRepository creates an empty in-memory repository instance.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		pings:   make(map[string]domain.PingRecord),
		results: make(map[string]domain.PingResult),
	}
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }

func (r *MemoryRepository) InsertPing(_ context.Context, record domain.PingRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pings[record.PingID]; ok {
		return fmt.Errorf("memory repository: insert ping %s: %w", record.PingID, domain.ErrDuplicatePing)
	}
	r.pings[record.PingID] = record
	return nil
}

func (r *MemoryRepository) InsertResult(_ context.Context, result domain.PingResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.results[result.PingID]; ok {
		return fmt.Errorf("memory repository: insert result %s: %w", result.PingID, domain.ErrDuplicatePing)
	}
	r.results[result.PingID] = result
	return nil
}

func (r *MemoryRepository) PingByID(_ context.Context, pingID string) (domain.PingRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.pings[pingID]
	if !ok {
		return domain.PingRecord{}, domain.ErrNotFound
	}
	return record, nil
}

// IncompletePings returns pings without a result, newest first.
func (r *MemoryRepository) IncompletePings(_ context.Context, limit int) ([]domain.PingRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filtered := make([]domain.PingRecord, 0, len(r.pings))
	for id, record := range r.pings {
		if _, done := r.results[id]; done {
			continue
		}
		filtered = append(filtered, record)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].ClientStartTime.After(filtered[j].ClientStartTime)
	})
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

var _ domain.PingRepository = (*MemoryRepository)(nil)
