package core

import (
	"context"
	"strings"
	"time"

	"electric-ping/app/src/domain"
)

const (
	defaultIncompleteLimit = 50
	maxIncompleteLimit     = 500
)

// Recorder persists pings and ping results and reports how long each insert took.
type Recorder struct {
	repo   domain.PingRepository
	logger Logger
}

func NewRecorder(repo domain.PingRepository, logger Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// RecordPing stores a new ping row. The returned duration covers the insert
// only, in fractional milliseconds.
func (r *Recorder) RecordPing(ctx context.Context, record domain.PingRecord) (float64, error) {
	if err := validateRecord(record); err != nil {
		return 0, err
	}

	start := time.Now()
	err := r.repo.InsertPing(ctx, record)
	elapsed := durationMS(time.Since(start))
	if err != nil {
		r.log(ctx, "recorder: insert ping %s failed after %.3fms: %v", record.PingID, elapsed, err)
		return 0, &domain.PersistenceError{Op: "record ping", Err: err}
	}

	r.log(ctx, "recorder: ping %s stored in %.3fms", record.PingID, elapsed)
	return elapsed, nil
}

// RecordResult stores the final offsets of a ping.
func (r *Recorder) RecordResult(ctx context.Context, result domain.PingResult) (float64, error) {
	if err := validateResult(result); err != nil {
		return 0, err
	}

	start := time.Now()
	err := r.repo.InsertResult(ctx, result)
	elapsed := durationMS(time.Since(start))
	if err != nil {
		r.log(ctx, "recorder: insert result %s failed after %.3fms: %v", result.PingID, elapsed, err)
		return 0, &domain.PersistenceError{Op: "record ping result", Err: err}
	}

	r.log(ctx, "recorder: result %s stored in %.3fms", result.PingID, elapsed)
	return elapsed, nil
}

// IncompletePings lists pings still waiting for a result. A zero limit selects
// the default page size; larger limits are capped.
func (r *Recorder) IncompletePings(ctx context.Context, limit int) ([]domain.PingRecord, error) {
	if limit < 0 {
		return nil, domain.NewValidationError("limit", "must not be negative")
	}
	if limit == 0 {
		limit = defaultIncompleteLimit
	}
	if limit > maxIncompleteLimit {
		limit = maxIncompleteLimit
	}
	return r.repo.IncompletePings(ctx, limit)
}

func validateRecord(record domain.PingRecord) error {
	if strings.TrimSpace(record.PingID) == "" {
		return domain.NewValidationError("ping_id", "is required")
	}
	if record.ClientStartTime.IsZero() {
		return domain.NewValidationError("client_start_time", "is required")
	}
	return nil
}

func validateResult(result domain.PingResult) error {
	if err := validateRecord(result.Record()); err != nil {
		return err
	}
	if result.RequestSentAt < 0 {
		return domain.NewValidationError("request_sent_at", "must not be negative")
	}
	if result.ResponseReceivedAt < result.RequestSentAt {
		return domain.NewValidationError("response_received_at", "must not precede request_sent_at")
	}
	return nil
}

func durationMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func (r *Recorder) log(ctx context.Context, format string, v ...any) {
	if r.logger != nil {
		r.logger.Printf(ctx, format, v...)
	}
}

var _ domain.RecorderService = (*Recorder)(nil)
