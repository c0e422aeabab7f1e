// Package schedule runs the sync on a cron expression, guarded by a file lease.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"datimsync/pkg/logger"
)

// ErrBusy is returned by RunNow while a run is active.
var ErrBusy = errors.New("schedule: run already in progress")

const maxConsecutiveRenewFails = 3

type Scheduler struct {
	cron    string
	ttl     time.Duration
	lease   *FileLease
	job     func(context.Context) error
	now     func() time.Time
	mu      sync.Mutex
	running bool
}

// New returns a scheduler running job on cron. The lease file lives in dir.
func New(cron string, lockTTL time.Duration, dir string, job func(context.Context) error) (*Scheduler, error) {
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("invalid cron expression %q", cron)
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	return &Scheduler{cron: cron, ttl: lockTTL, lease: NewFileLease(dir), job: job, now: time.Now}, nil
}

// Start runs the schedule loop until ctx is done or the returned cancel is called.
func (s *Scheduler) Start(ctx context.Context) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	logger.Info("schedule_enabled", "cron", s.cron)
	go s.loop(ctx)
	return cancel
}

// Next returns the next tick after t.
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.cron, t, false)
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		next, err := s.Next(s.now())
		if err != nil {
			logger.Error("schedule_nexttick_failed", "cron", s.cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		logger.Debug("schedule_next_run", "at", next.Format(time.RFC3339))

		select {
		case <-time.After(time.Until(next)):
			if err := s.RunNow(ctx); err != nil && !errors.Is(err, ErrBusy) {
				logger.Error("schedule_run_error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunNow runs the job once under the lease. It returns nil without running
// when another process holds the lease.
func (s *Scheduler) RunNow(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrBusy
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	owner := uuid.NewString()
	acq, err := s.lease.Acquire(owner, s.ttl)
	if err != nil {
		return fmt.Errorf("lease acquire failed: %w", err)
	}
	if !acq {
		logger.Info("schedule_lease_not_acquired")
		return nil
	}
	defer func() {
		if err := s.lease.Release(owner); err != nil {
			logger.Error("schedule_lease_release_error", "error", err)
		}
	}()

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	go s.heartbeat(runCtx, runCancel, owner)

	return s.job(runCtx)
}

// heartbeat renews the lease and aborts the run after repeated failures.
func (s *Scheduler) heartbeat(ctx context.Context, abort context.CancelFunc, owner string) {
	t := time.NewTicker(s.ttl / 3)
	defer t.Stop()
	fails := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.lease.Renew(owner, s.ttl); err != nil {
				fails++
				logger.Error("schedule_lease_renew_failed", "error", err, "count", fails)
				if fails >= maxConsecutiveRenewFails {
					logger.Error("schedule_lease_renew_failed_fatal", "owner", owner)
					abort()
					return
				}
				continue
			}
			if fails != 0 {
				logger.Info("schedule_lease_renew_recovered", "owner", owner, "recovered_count", fails)
			}
			fails = 0
		}
	}
}
