package core

import (
	"context"
	"sync"
	"time"

	"electric-ping/app/src/domain"
)

// Watcher registers interest in a ping before its write is issued.
type Watcher interface {
	Watch(ctx context.Context, pingID string, start time.Time) (*Watch, error)
}

// Pinger runs the write-and-observe phase of a ping.
type Pinger struct {
	api     domain.PingAPI
	watcher Watcher
	clock   domain.Clock
	logger  Logger
}

func NewPinger(api domain.PingAPI, watcher Watcher, clock domain.Clock, logger Logger) *Pinger {
	if clock == nil {
		clock = time.Now
	}
	return &Pinger{api: api, watcher: watcher, clock: clock, logger: logger}
}

// Ping starts a new ping, sends the write while waiting for the change on the
// shared subscription and returns once both have completed. A failed write
// abandons the observation and returns the write error.
func (p *Pinger) Ping(ctx context.Context) (domain.PendingMeasurements, error) {
	frame := BeginPing(p.clock)

	watch, err := p.watcher.Watch(ctx, frame.PingID, frame.Start)
	if err != nil {
		return domain.PendingMeasurements{}, err
	}

	observeCtx, cancelObserve := context.WithCancel(ctx)
	defer cancelObserve()

	var (
		wg         sync.WaitGroup
		stream     domain.Observation
		observeErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		stream, observeErr = watch.Wait(observeCtx)
	}()

	requestSent := p.clock()
	dbInsertTime, err := p.api.StartPing(ctx, domain.PingRecord{PingID: frame.PingID, ClientStartTime: frame.Start})
	responseReceived := p.clock()
	if err != nil {
		cancelObserve()
		wg.Wait()
		p.log(ctx, "ping %s: write failed: %v", frame.PingID, err)
		return domain.PendingMeasurements{}, err
	}

	wg.Wait()
	if observeErr != nil {
		return domain.PendingMeasurements{}, observeErr
	}

	requestSentAt := frame.OffsetMS(requestSent)
	responseReceivedAt := frame.OffsetMS(responseReceived)
	if requestSentAt < 0 {
		requestSentAt = 0
	}
	if responseReceivedAt < requestSentAt {
		responseReceivedAt = requestSentAt
	}

	pending := domain.PendingMeasurements{
		Frame:              frame,
		RequestSentAt:      requestSentAt,
		ResponseReceivedAt: responseReceivedAt,
		PgTimeOffset:       PgTimeOffset(requestSentAt, responseReceivedAt, dbInsertTime),
		DBInsertTime:       dbInsertTime,
		Stream:             stream,
	}
	p.log(ctx, "ping %s: sent=+%dms received=+%dms db_insert=%.3fms observed=%t stream=+%dms",
		frame.PingID, pending.RequestSentAt, pending.ResponseReceivedAt, dbInsertTime, stream.Observed, stream.OffsetMS)
	return pending, nil
}

func (p *Pinger) log(ctx context.Context, format string, v ...any) {
	if p.logger != nil {
		p.logger.Printf(ctx, format, v...)
	}
}

var _ Watcher = (*Observer)(nil)
