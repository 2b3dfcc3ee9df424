package sync

import (
	"context"
	"errors"
	"log/slog"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/Ruszero01/ecopaste-sync/internal/events"
)

// ErrSchedulerBusy is returned by TriggerNow while a run is in flight.
var ErrSchedulerBusy = errors.New("sync: a run is already in flight")

// SchedulerStatus is a snapshot of the auto-sync state.
type SchedulerStatus struct {
	Enabled      bool
	Interval     time.Duration
	LastSyncTime time.Time
	NextSyncTime time.Time
	InFlight     bool
}

// Scheduler drives the injected callback on a fixed interval. The ticker
// task owns a cancellation context; Stop flips it and waits for the task
// to exit, so termination is guaranteed on every path. Overlap is
// prevented by an in-flight flag: a tick that finds it set logs and skips.
type Scheduler struct {
	callback func(context.Context) error
	bus      *events.Bus
	logger   *slog.Logger

	mu       stdsync.Mutex
	enabled  bool
	interval time.Duration
	lastSync time.Time
	nextSync time.Time
	cancel   context.CancelFunc
	done     chan struct{}

	inFlight atomic.Bool
}

// NewScheduler creates a stopped Scheduler around the sync callback
// (typically Engine.RunCycle wrapped to discard the report).
func NewScheduler(callback func(context.Context) error, bus *events.Bus, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{callback: callback, bus: bus, logger: logger}
}

// Start launches the ticker with the given interval. Starting a running
// scheduler restarts it with the new interval.
func (s *Scheduler) Start(interval time.Duration) error {
	if interval <= 0 {
		return errors.New("sync: interval must be positive")
	}

	s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.enabled = true
	s.interval = interval
	s.nextSync = time.Now().Add(interval)
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.run(ctx, interval, done)

	s.publishStatus()
	s.logger.Info("auto-sync started", slog.Duration("interval", interval))

	return nil
}

// run is the ticker task body.
func (s *Scheduler) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-timer.C:
			s.tick(ctx)

			s.mu.Lock()
			s.nextSync = time.Now().Add(interval)
			s.mu.Unlock()

			timer.Reset(interval)
		}
	}
}

// tick runs one scheduled invocation, skipping when a run is in flight.
// The callback gets a context detached from the ticker's cancellation so a
// Stop lets an in-flight cycle finish its remote writes; Stop still waits
// for the loop to exit, so termination is preserved.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Info("auto-sync tick skipped, run in flight")
		return
	}
	defer s.inFlight.Store(false)

	if err := s.callback(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("auto-sync run failed", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	s.lastSync = time.Now()
	s.mu.Unlock()
}

// Stop cancels the ticker and waits for the task to exit. Safe to call on
// a stopped scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.enabled = false
	s.cancel = nil
	s.done = nil
	s.nextSync = time.Time{}
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done

	s.publishStatus()
	s.logger.Info("auto-sync stopped")
}

// UpdateInterval restarts the ticker with a new interval, but only if it
// was running.
func (s *Scheduler) UpdateInterval(interval time.Duration) error {
	s.mu.Lock()
	enabled := s.enabled
	s.mu.Unlock()

	if !enabled {
		s.mu.Lock()
		s.interval = interval
		s.mu.Unlock()

		return nil
	}

	return s.Start(interval)
}

// TriggerNow invokes the callback immediately without resetting the timer.
// Returns ErrSchedulerBusy when a run is already in flight.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrSchedulerBusy
	}
	defer s.inFlight.Store(false)

	err := s.callback(ctx)
	if err == nil {
		s.mu.Lock()
		s.lastSync = time.Now()
		s.mu.Unlock()
	}

	return err
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SchedulerStatus{
		Enabled:      s.enabled,
		Interval:     s.interval,
		LastSyncTime: s.lastSync,
		NextSyncTime: s.nextSync,
		InFlight:     s.inFlight.Load(),
	}
}

// publishStatus emits auto_sync.status.
func (s *Scheduler) publishStatus() {
	s.mu.Lock()
	payload := events.AutoSyncPayload{Enabled: s.enabled, Interval: s.interval.String()}
	s.mu.Unlock()

	s.bus.Publish(events.AutoSyncStatus, payload)
}
