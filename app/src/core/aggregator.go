package core

import (
	"context"
	"strings"
	"time"

	"electric-ping/app/src/domain"
	"electric-ping/app/src/shared/constants"
)

// Aggregator turns the measurements gathered by a ping flow plus the manually
// observed arrival time into a PingResult and submits it.
// Arrival times without a zone are wall-clock readings and are taken in the
// local zone.
type Aggregator struct {
	api      domain.PingAPI
	clock    domain.Clock
	location *time.Location
	logger   Logger
}

func NewAggregator(api domain.PingAPI, clock domain.Clock, logger Logger) *Aggregator {
	if clock == nil {
		clock = time.Now
	}
	return &Aggregator{api: api, clock: clock, location: time.Local, logger: logger}
}

// Finalize validates the pending measurements, computes the arrival and end
// offsets and submits the result. Nothing is submitted when validation fails.
// A failed submission is logged and returned without retry.
func (a *Aggregator) Finalize(ctx context.Context, pending domain.PendingMeasurements, arrival string) (domain.PingResult, error) {
	arrivedAt, err := parseArrival(arrival, a.location)
	if err != nil {
		return domain.PingResult{}, err
	}

	result, err := BuildResult(pending, arrivedAt, a.clock())
	if err != nil {
		return domain.PingResult{}, err
	}

	if _, err := a.api.SubmitResult(ctx, result); err != nil {
		if a.logger != nil {
			a.logger.Printf(ctx, "aggregator: submit result %s failed: %v", result.PingID, err)
		}
		return result, err
	}
	return result, nil
}

// BuildResult assembles a PingResult with the arrival and end offsets
// measured from the frame start.
func BuildResult(pending domain.PendingMeasurements, arrivedAt, now time.Time) (domain.PingResult, error) {
	frame := pending.Frame
	if strings.TrimSpace(frame.PingID) == "" {
		return domain.PingResult{}, domain.NewValidationError("ping_id", "is required")
	}
	if frame.Start.IsZero() {
		return domain.PingResult{}, domain.NewValidationError("client_start_time", "is required")
	}
	if pending.RequestSentAt < 0 {
		return domain.PingResult{}, domain.NewValidationError("request_sent_at", "must not be negative")
	}
	if pending.ResponseReceivedAt < pending.RequestSentAt {
		return domain.PingResult{}, domain.NewValidationError("response_received_at", "must not precede request_sent_at")
	}

	return domain.PingResult{
		PingID:               frame.PingID,
		ClientStartTime:      frame.Start,
		RequestSentAt:        pending.RequestSentAt,
		ResponseReceivedAt:   pending.ResponseReceivedAt,
		PgTimeOffset:         pending.PgTimeOffset,
		ElectricArriveOffset: frame.OffsetMS(arrivedAt),
		ClientEndOffset:      frame.OffsetMS(now),
	}, nil
}

func parseArrival(arrival string, loc *time.Location) (time.Time, error) {
	arrival = strings.TrimSpace(arrival)
	if arrival == "" {
		return time.Time{}, domain.NewValidationError("arrival_time", "is required")
	}
	t, err := constants.ParseTimeIn(arrival, loc)
	if err != nil {
		return time.Time{}, domain.NewValidationError("arrival_time", err.Error())
	}
	return t, nil
}
