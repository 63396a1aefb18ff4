package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/rs/zerolog/log"
)

const sweepLockKey = "locks:consistency_sweep"

// SweepEnqueuer is the part of the Dispatcher the scheduler needs.
type SweepEnqueuer interface {
	EnqueueSweep(ctx context.Context, trigger string) (string, error)
}

// Scheduler periodically enqueues consistency sweeps. It is constructed and
// started by the composition root; a redis lock ensures that one replica
// enqueues per interval.
type Scheduler struct {
	enqueuer SweepEnqueuer
	locker   *redislock.Client
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(enqueuer SweepEnqueuer, locker *redislock.Client, interval time.Duration) *Scheduler {
	return &Scheduler{enqueuer: enqueuer, locker: locker, interval: interval}
}

// Start launches the ticker goroutine. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || s.interval <= 0 {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		log.Info().Dur("interval", s.interval).Msg("scheduler: started")
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("scheduler: shutting down")
				return
			case <-ticker.C:
				if _, err := s.Tick(ctx); err != nil {
					log.Error().Err(err).Msg("scheduler: tick failed")
				}
			}
		}
	}()
}

// Stop cancels the ticker goroutine and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Tick enqueues one sweep if this replica wins the interval lock.
// The lock is left to expire so other replicas skip the same interval.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	ttl := s.interval * 9 / 10
	if ttl < time.Second {
		ttl = time.Second
	}
	if _, err := s.locker.Obtain(ctx, sweepLockKey, ttl, nil); err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			log.Debug().Msg("scheduler: another replica holds the sweep lock")
			return false, nil
		}
		return false, err
	}
	jobID, err := s.enqueuer.EnqueueSweep(ctx, "schedule")
	if err != nil {
		return false, err
	}
	log.Info().Str("job_id", jobID).Msg("scheduler: consistency sweep enqueued")
	return true, nil
}
