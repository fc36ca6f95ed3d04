package core

import (
	"context"
	"errors"
	"time"

	"electric-ping/app/src/domain"
	"electric-ping/app/src/infra"
)

// DefaultObserveTimeout bounds how long a ping waits for its change.
const DefaultObserveTimeout = 30 * time.Second

// ObserverConfig configures the change observer. A zero Timeout disables the
// deadline and a nil Clock falls back to time.Now.
type ObserverConfig struct {
	Timeout time.Duration
	Clock   domain.Clock
}

// Observer multiplexes one change feed subscription across many pending
// pings. The registry is owned by the goroutine running Run; every other
// goroutine talks to it over channels.
type Observer struct {
	feed    domain.ChangeFeed
	logger  Logger
	clock   domain.Clock
	timeout time.Duration

	register   chan *Watch
	unregister chan *Watch
	batches    chan []domain.ChangeMessage
	ready      chan struct{}
	done       chan struct{}
}

// Watch is the handle of one registered ping.
type Watch struct {
	id       string
	start    time.Time
	result   chan domain.Observation
	observer *Observer
}

func NewObserver(feed domain.ChangeFeed, cfg ObserverConfig, logger Logger) *Observer {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	timeout := cfg.Timeout
	if timeout < 0 {
		timeout = 0
	}
	return &Observer{
		feed:       feed,
		logger:     logger,
		clock:      clock,
		timeout:    timeout,
		register:   make(chan *Watch),
		unregister: make(chan *Watch),
		batches:    make(chan []domain.ChangeMessage),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run subscribes to the feed and dispatches batches until ctx is cancelled or
// the feed fails. Waiters still pending afterwards receive ErrObserverStopped.
func (o *Observer) Run(ctx context.Context) error {
	defer close(o.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	feedErr := make(chan error, 1)
	go func() {
		feedErr <- o.feed.Subscribe(ctx, func(batch []domain.ChangeMessage) {
			select {
			case o.batches <- batch:
			case <-ctx.Done():
			}
		})
	}()

	registry := make(map[string][]*Watch)
	pending := 0
	live := false

	for {
		select {
		case <-ctx.Done():
			o.log(ctx, "observer: stopped with %d pending: %v", pending, ctx.Err())
			infra.SetPendingWaiters(0)
			return nil
		case err := <-feedErr:
			infra.SetPendingWaiters(0)
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			o.log(ctx, "observer: change feed failed: %v", err)
			return err
		case w := <-o.register:
			registry[w.id] = append(registry[w.id], w)
			pending++
			infra.SetPendingWaiters(pending)
		case w := <-o.unregister:
			if removeWatch(registry, w) {
				pending--
				infra.SetPendingWaiters(pending)
			}
		case batch := <-o.batches:
			if !live && caughtUp(batch) {
				live = true
				close(o.ready)
				o.log(ctx, "observer: change feed is live")
			}
			if pending == 0 {
				continue
			}
			pending -= o.dispatch(ctx, registry, batch)
			infra.SetPendingWaiters(pending)
		}
	}
}

// dispatch resolves every waiter whose identity appears as a change in batch
// and returns how many were resolved.
func (o *Observer) dispatch(ctx context.Context, registry map[string][]*Watch, batch []domain.ChangeMessage) int {
	resolved := 0
	for _, msg := range batch {
		if !msg.IsChange() {
			continue
		}
		if msg.Operation != domain.OperationInsert && msg.Operation != domain.OperationUpdate {
			continue
		}
		id, ok := msg.RowID()
		if !ok {
			continue
		}
		waiters, ok := registry[id]
		if !ok {
			continue
		}

		now := o.clock()
		for _, w := range waiters {
			offset := now.Sub(w.start).Milliseconds()
			w.result <- domain.Observation{Observed: true, OffsetMS: offset}
			infra.IncObserverDeliveries()
			o.log(ctx, "observer: ping %s arrived at +%dms", id, offset)
		}
		resolved += len(waiters)
		delete(registry, id)
	}
	return resolved
}

func caughtUp(batch []domain.ChangeMessage) bool {
	for _, msg := range batch {
		if msg.Control == domain.ControlUpToDate {
			return true
		}
	}
	return false
}

// Ready is closed once the feed has delivered the existing rows and further
// changes arrive live. A write issued before that is measured against the
// initial sync instead of change delivery.
func (o *Observer) Ready() <-chan struct{} {
	return o.ready
}

// WaitReady blocks until the feed is live, the observer stops or ctx ends.
func (o *Observer) WaitReady(ctx context.Context) error {
	select {
	case <-o.ready:
		return nil
	default:
	}

	select {
	case <-o.ready:
		return nil
	case <-o.done:
		return domain.ErrObserverStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func removeWatch(registry map[string][]*Watch, target *Watch) bool {
	waiters := registry[target.id]
	for i, w := range waiters {
		if w != target {
			continue
		}
		waiters = append(waiters[:i], waiters[i+1:]...)
		if len(waiters) == 0 {
			delete(registry, target.id)
		} else {
			registry[target.id] = waiters
		}
		return true
	}
	return false
}

// Watch registers interest in pingID. Once it returns, any later change for
// pingID resolves the watch, so callers register before issuing the write.
func (o *Observer) Watch(ctx context.Context, pingID string, start time.Time) (*Watch, error) {
	w := &Watch{
		id:       pingID,
		start:    start,
		result:   make(chan domain.Observation, 1),
		observer: o,
	}

	select {
	case o.register <- w:
		return w, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-o.done:
		return nil, domain.ErrObserverStopped
	}
}

// Observe registers pingID and waits for it.
func (o *Observer) Observe(ctx context.Context, pingID string, start time.Time) (domain.Observation, error) {
	w, err := o.Watch(ctx, pingID, start)
	if err != nil {
		return domain.Observation{}, err
	}
	return w.Wait(ctx)
}

// Wait blocks until the change arrives, the deadline passes or ctx ends. A
// passed deadline is an outcome, reported as Observation{Observed: false}.
func (w *Watch) Wait(ctx context.Context) (domain.Observation, error) {
	var deadline <-chan time.Time
	if w.observer.timeout > 0 {
		timer := time.NewTimer(w.observer.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case obs := <-w.result:
		return obs, nil
	case <-deadline:
		if obs, ok := w.cancel(); ok {
			return obs, nil
		}
		infra.IncObserverTimeouts()
		w.observer.log(ctx, "observer: ping %s not observed within %s", w.id, w.observer.timeout)
		return domain.Observation{Observed: false}, nil
	case <-ctx.Done():
		if obs, ok := w.cancel(); ok {
			return obs, nil
		}
		return domain.Observation{}, ctx.Err()
	case <-w.observer.done:
		select {
		case obs := <-w.result:
			return obs, nil
		default:
		}
		return domain.Observation{}, domain.ErrObserverStopped
	}
}

// cancel removes the watch from the registry. It reports a result that was
// delivered before the removal took effect.
func (w *Watch) cancel() (domain.Observation, bool) {
	select {
	case w.observer.unregister <- w:
	case <-w.observer.done:
	}

	select {
	case obs := <-w.result:
		return obs, true
	default:
		return domain.Observation{}, false
	}
}

func (o *Observer) log(ctx context.Context, format string, v ...any) {
	if o.logger != nil {
		o.logger.Printf(ctx, format, v...)
	}
}
