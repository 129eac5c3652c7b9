// Package scheduler elects a leader and dispatches the background
// jobs only that leader runs.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/caldera-labs/plume/store"
)

// Job is one named, independently-cancellable background task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Scheduler owns leader election and job dispatch.
type Scheduler struct {
	store       *store.Store
	logger      zerolog.Logger
	holderID    string
	lockTimeout time.Duration
	jobs        []Job

	mu       sync.Mutex
	isLeader bool
	cancels  []context.CancelFunc
}

// New builds a Scheduler with a randomly generated holder identity.
// lockTimeout is LOCK_TIMEOUT: how long since another holder's last
// heartbeat before its lock is considered abandoned and takeable.
func New(st *store.Store, lockTimeout time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:       st,
		logger:      logger.With().Str("component", "scheduler").Logger(),
		holderID:    uuid.NewString(),
		lockTimeout: lockTimeout,
	}
}

// AddJob registers a cooperative job; it only runs while this instance
// holds leadership.
func (s *Scheduler) AddJob(j Job) { s.jobs = append(s.jobs, j) }

// Run blocks, periodically attempting leadership and heartbeating
// while held, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, heartbeatInterval time.Duration) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	s.tryBecomeLeader(ctx)
	for {
		select {
		case <-ctx.Done():
			s.shutdown(ctx)
			return
		case <-ticker.C:
			if s.IsLeader() {
				s.heartbeat(ctx)
			} else {
				s.tryBecomeLeader(ctx)
			}
		}
	}
}

// IsLeader reports whether this instance currently believes it holds
// the scheduler lock.
func (s *Scheduler) IsLeader() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isLeader
}

func (s *Scheduler) tryBecomeLeader(ctx context.Context) {
	ok, err := s.store.AcquireLock(ctx, s.holderID, s.lockTimeout)
	if err != nil {
		s.logger.Error().Err(err).Msg("acquire lock failed")
		return
	}
	if !ok {
		return
	}
	s.mu.Lock()
	alreadyLeader := s.isLeader
	s.isLeader = true
	s.mu.Unlock()
	if !alreadyLeader {
		s.logger.Info().Str("holder_id", s.holderID).Msg("became scheduler leader")
		s.startJobs(ctx)
	}
}

func (s *Scheduler) heartbeat(ctx context.Context) {
	ok, err := s.store.Heartbeat(ctx, s.holderID)
	if err != nil {
		s.logger.Error().Err(err).Msg("heartbeat failed")
		return
	}
	if !ok {
		s.logger.Warn().Msg("lost leadership, demoting")
		s.demote()
	}
}

func (s *Scheduler) startJobs(ctx context.Context) {
	for _, job := range s.jobs {
		jobCtx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancels = append(s.cancels, cancel)
		s.mu.Unlock()
		go s.runJobLoop(jobCtx, job)
	}
}

func (s *Scheduler) runJobLoop(ctx context.Context, job Job) {
	// Stagger job start so many instances electing leadership
	// simultaneously do not all fire their first tick at once.
	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond
	timer := time.NewTimer(jitter)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if !s.IsLeader() {
			return
		}
		job.Run(ctx)
		timer.Reset(job.Interval)
	}
}

func (s *Scheduler) demote() {
	s.mu.Lock()
	s.isLeader = false
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (s *Scheduler) shutdown(ctx context.Context) {
	s.demote()
	if err := s.store.ReleaseLock(context.Background(), s.holderID); err != nil {
		s.logger.Error().Err(err).Msg("release lock on shutdown failed")
	}
}

// NextCleanupRun returns the next time the daily retention cleanup
// should fire for the configured hour, using robfig/cron's standard
// expression parser rather than hand-rolled date math.
func NextCleanupRun(hour int, after time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(fmt.Sprintf("0 %d * * *", hour))
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: parse cleanup cron: %w", err)
	}
	return schedule.Next(after), nil
}
