package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"electric-ping/app/src/database"
	"electric-ping/app/src/domain"
)

type stubLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *stubLogger) Printf(_ context.Context, format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, v...))
}

func (l *stubLogger) Println(_ context.Context, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintln(v...))
}

func (l *stubLogger) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// chanFeed hands every batch pushed on its channel to the subscriber.
type chanFeed struct {
	batches chan []domain.ChangeMessage
	err     error
}

func newChanFeed() *chanFeed {
	return &chanFeed{batches: make(chan []domain.ChangeMessage)}
}

func (f *chanFeed) Subscribe(ctx context.Context, handle func([]domain.ChangeMessage)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-f.batches:
			if !ok {
				return f.err
			}
			handle(batch)
		}
	}
}

func insertMessage(id string) domain.ChangeMessage {
	return domain.ChangeMessage{
		Key:       `"public"."ping"/"` + id + `"`,
		Operation: domain.OperationInsert,
		Value:     map[string]any{"id": id, "client_start_time": "2024-05-01 12:00:00+00"},
	}
}

// memoryRepo wraps the in-memory store with failure injection and keeps the
// results it accepted.
type memoryRepo struct {
	*database.MemoryRepository

	mu      sync.Mutex
	err     error
	results map[string]domain.PingResult
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		MemoryRepository: database.NewMemoryRepository(),
		results:          make(map[string]domain.PingResult),
	}
}

func (r *memoryRepo) InsertPing(ctx context.Context, record domain.PingRecord) error {
	if err := r.failure(); err != nil {
		return err
	}
	return r.MemoryRepository.InsertPing(ctx, record)
}

func (r *memoryRepo) InsertResult(ctx context.Context, result domain.PingResult) error {
	if err := r.failure(); err != nil {
		return err
	}
	if err := r.MemoryRepository.InsertResult(ctx, result); err != nil {
		return err
	}
	r.mu.Lock()
	r.results[result.PingID] = result
	r.mu.Unlock()
	return nil
}

func (r *memoryRepo) failure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *memoryRepo) result(id string) domain.PingResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[id]
}

// pingCount counts stored pings that have no result yet.
func (r *memoryRepo) pingCount() int {
	records, _ := r.IncompletePings(context.Background(), 0)
	return len(records)
}

// stubAPI records the calls a ping flow makes against the recorder endpoints.
type stubAPI struct {
	mu        sync.Mutex
	started   []domain.PingRecord
	submitted []domain.PingResult

	onStart      func(domain.PingRecord)
	dbInsertTime float64
	startErr     error
	submitErr    error
}

func (a *stubAPI) StartPing(_ context.Context, record domain.PingRecord) (float64, error) {
	a.mu.Lock()
	a.started = append(a.started, record)
	a.mu.Unlock()

	if a.onStart != nil {
		a.onStart(record)
	}
	if a.startErr != nil {
		return 0, a.startErr
	}
	return a.dbInsertTime, nil
}

func (a *stubAPI) SubmitResult(_ context.Context, result domain.PingResult) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.submitErr != nil {
		return 0, a.submitErr
	}
	a.submitted = append(a.submitted, result)
	return 3.5, nil
}

func (a *stubAPI) submissions() []domain.PingResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.PingResult(nil), a.submitted...)
}
