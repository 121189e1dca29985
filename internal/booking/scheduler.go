package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Lease guards a sweep across replicas. Acquire returns acquired=false
// when another holder owns it.
type Lease interface {
	Acquire(ctx context.Context, ttl time.Duration) (release func(), acquired bool, err error)
}

// SchedulerConfig holds the sweep interval and the reminder window.
type SchedulerConfig struct {
	Interval  time.Duration
	Lead      time.Duration
	Tolerance time.Duration
	Location  *time.Location
}

// SweepResult summarises one pass over the bookings.
type SweepResult struct {
	Scanned int
	Due     int
	Sent    int
	Failed  int
}

// Scheduler periodically reminds clients whose appointment is about Lead
// away. At most one sweep runs at a time.
type Scheduler struct {
	store    Store
	notifier Notifier
	lease    Lease
	cfg      SchedulerConfig
	log      *slog.Logger
	now      func() time.Time

	running atomic.Bool
	tasks   sync.WaitGroup

	mu   sync.Mutex
	base context.Context
}

// NewScheduler creates a scheduler over store that reminds through notifier.
func NewScheduler(store Store, notifier Notifier, cfg SchedulerConfig, log *slog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Scheduler{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		base:     context.Background(),
	}
}

// WithLease makes every sweep hold lease for its duration.
func (s *Scheduler) WithLease(lease Lease) *Scheduler {
	s.lease = lease
	return s
}

// WithClock replaces the clock used to evaluate the reminder window.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Run sweeps once immediately and then every Interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	s.log.Info("reminder scheduler started", "interval", s.cfg.Interval, "lead", s.cfg.Lead, "tolerance", s.cfg.Tolerance)
	s.sweepAndLog(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Triggers check ctx under mu, so none can Add after this.
			s.mu.Lock()
			s.mu.Unlock()
			s.tasks.Wait()
			s.log.Info("reminder scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

// Trigger starts an out-of-band sweep, e.g. after a booking is created.
// It is dropped if a sweep is already running and is a no-op once the
// context passed to Run has ended.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	ctx := s.base
	if ctx.Err() != nil {
		s.mu.Unlock()
		s.log.Debug("reminder sweep trigger ignored, scheduler stopped")
		return
	}
	s.tasks.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.tasks.Done()
		s.sweepAndLog(ctx)
	}()
}

// Wait blocks until triggered sweeps have returned.
func (s *Scheduler) Wait() {
	s.tasks.Wait()
}

// Due reports whether b should be reminded at now: still pending, not yet
// reminded, and starting within [Lead-Tolerance, Lead+Tolerance] of now.
func (s *Scheduler) Due(b Booking, now time.Time) (time.Time, bool) {
	if !b.AwaitingReminder() {
		return time.Time{}, false
	}
	at, err := b.AppointmentAt(s.cfg.Location)
	if err != nil {
		s.log.Warn("booking skipped", "booking", b.ID, "error", err)
		return time.Time{}, false
	}
	until := at.Sub(now)
	return at, until >= s.cfg.Lead-s.cfg.Tolerance && until <= s.cfg.Lead+s.cfg.Tolerance
}

// Sweep reminds every due booking once. A booking is marked reminded only
// after its notification succeeded, so failures are retried next sweep.
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return SweepResult{}, ErrSweepInProgress
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Interval)
	defer cancel()

	if s.lease != nil {
		release, acquired, err := s.lease.Acquire(ctx, s.cfg.Interval)
		if err != nil {
			return SweepResult{}, err
		}
		if !acquired {
			return SweepResult{}, ErrSweepInProgress
		}
		defer release()
	}

	bookings, err := s.store.List(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list bookings: %w", err)
	}

	now := s.now()
	result := SweepResult{Scanned: len(bookings)}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, b := range bookings {
		at, due := s.Due(b, now)
		if !due {
			continue
		}
		result.Due++

		wg.Add(1)
		go func(b Booking, at time.Time) {
			defer wg.Done()
			err := s.remind(ctx, b, at, now)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				s.log.Warn("reminder failed", "booking", b.ID, "error", err)
				return
			}
			result.Sent++
		}(b, at)
	}
	wg.Wait()

	return result, nil
}

func (s *Scheduler) remind(ctx context.Context, b Booking, at, now time.Time) error {
	if err := s.notifier.Notify(ctx, newReminder(b, at)); err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	sentAt := now
	b.ReminderSent = true
	b.ReminderSentAt = &sentAt
	if err := s.store.Update(ctx, b); err != nil {
		return fmt.Errorf("mark reminded: %w", err)
	}
	return nil
}

func (s *Scheduler) sweepAndLog(ctx context.Context) {
	result, err := s.Sweep(ctx)
	switch {
	case errors.Is(err, ErrSweepInProgress):
		s.log.Debug("reminder sweep skipped, another sweep is running")
	case err != nil:
		s.log.Error("reminder sweep failed", "error", err)
	case result.Due > 0:
		s.log.Info("reminder sweep finished", "scanned", result.Scanned, "sent", result.Sent, "failed", result.Failed)
	default:
		s.log.Debug("reminder sweep finished", "scanned", result.Scanned)
	}
}
