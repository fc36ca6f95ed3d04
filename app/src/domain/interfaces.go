package domain

import (
	"context"
	"time"
)

// PingWriter persists ping rows and their results.
type PingWriter interface {
	InsertPing(ctx context.Context, record PingRecord) error
	InsertResult(ctx context.Context, result PingResult) error
}

// PingReader exposes queries over the ping tables.
type PingReader interface {
	PingByID(ctx context.Context, pingID string) (PingRecord, error)
	IncompletePings(ctx context.Context, limit int) ([]PingRecord, error)
}

// PingRepository aggregates the write and read capabilities required by the service.
type PingRepository interface {
	PingWriter
	PingReader
	// Ping reports whether the underlying store answers.
	Ping(ctx context.Context) error
}

// RecorderService describes the behaviour exposed to transport layers.
// Insert methods return the duration of the database call in milliseconds.
type RecorderService interface {
	RecordPing(ctx context.Context, record PingRecord) (float64, error)
	RecordResult(ctx context.Context, result PingResult) (float64, error)
	IncompletePings(ctx context.Context, limit int) ([]PingRecord, error)
}

// PingAPI is the client view of the recorder endpoints.
type PingAPI interface {
	StartPing(ctx context.Context, record PingRecord) (float64, error)
	SubmitResult(ctx context.Context, result PingResult) (float64, error)
}

// ChangeFeed delivers batches of change messages until ctx is done.
type ChangeFeed interface {
	Subscribe(ctx context.Context, handle func(batch []ChangeMessage)) error
}

// Clock returns the current wall-clock time.
type Clock func() time.Time
