// Package scheduler fires chain runs on cron schedules. Schedule state lives
// in memory only: after a restart every job waits for its next slot.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/sinteflow/sinte/internal/logging"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ChainRunner runs a chain by name. Satisfied by the serve command's
// catalog runner (avoids an import cycle with the engine).
type ChainRunner interface {
	RunChain(ctx context.Context, chain string, input map[string]any) error
}

// JobStatus is a snapshot of one job's schedule.
type JobStatus struct {
	Job
	NextRunAt     time.Time
	LastRunAt     time.Time
	LastRunStatus string
}

type jobState struct {
	job      Job
	schedule cron.Schedule
	next     time.Time
	lastRun  time.Time
	status   string
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval sets how often due jobs are checked. Defaults to one second.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickEvery = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler checks its jobs on a ticker and runs the due ones. Each firing
// is an independent run; failures are logged and never retried. A job that
// is still running when its next slot comes is skipped for that slot.
type Scheduler struct {
	runner    ChainRunner
	logger    *slog.Logger
	tickEvery time.Duration
	now       func() time.Time

	mu     sync.Mutex
	jobs   map[string]*jobState
	cancel context.CancelFunc
	done   chan struct{}
	runs   sync.WaitGroup

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// New creates a Scheduler for jobs. Disabled jobs are kept for status
// reporting but never fire.
func New(jobs []Job, runner ChainRunner, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		runner:    runner,
		logger:    logger,
		tickEvery: time.Second,
		now:       time.Now,
		jobs:      make(map[string]*jobState, len(jobs)),
		inflight:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, job := range jobs {
		if err := job.check(); err != nil {
			return nil, err
		}
		if _, dup := s.jobs[job.Name]; dup {
			return nil, fmt.Errorf("duplicate job name %q", job.Name)
		}
		sched, _ := cronParser.Parse(job.Cron)
		s.jobs[job.Name] = &jobState{job: job, schedule: sched}
	}
	return s, nil
}

// Start computes each job's first slot and launches the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	now := s.now()
	for _, st := range s.jobs {
		st.next = st.schedule.Next(now)
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.jobs)))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick starts every enabled job whose slot has passed and moves it to its
// next slot.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []Job
	for _, st := range s.jobs {
		if st.job.Disabled || st.next.After(now) {
			continue
		}
		st.next = st.schedule.Next(now)
		due = append(due, st.job)
	}
	s.mu.Unlock()

	for _, job := range due {
		if !s.tryAcquire(job.Name) {
			s.logger.Warn("skipping scheduled job, previous run still in flight", slog.String("job", job.Name))
			continue
		}
		s.runs.Add(1)
		go func(job Job) {
			defer s.runs.Done()
			defer s.releaseJob(job.Name)
			s.runJob(ctx, job)
		}(job)
	}
}

// runJob runs one firing and records its outcome.
func (s *Scheduler) runJob(ctx context.Context, job Job) {
	ctx = logging.WithRunID(ctx, uuid.NewString())
	started := s.now()
	s.logger.InfoContext(ctx, "running scheduled job",
		slog.String("job", job.Name),
		slog.String("chain", job.Chain),
	)

	status := StatusSuccess
	if err := s.runner.RunChain(ctx, job.Chain, copyInput(job.Input)); err != nil {
		status = StatusError
		s.logger.ErrorContext(ctx, "scheduled job failed",
			slog.String("job", job.Name),
			slog.String("error", err.Error()),
		)
	}

	s.mu.Lock()
	if st, ok := s.jobs[job.Name]; ok {
		st.lastRun = started
		st.status = status
	}
	s.mu.Unlock()
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

// releaseJob removes the job from the in-flight set.
func (s *Scheduler) releaseJob(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// Jobs returns a snapshot of every job, sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, st := range s.jobs {
		out = append(out, JobStatus{
			Job:           st.job,
			NextRunAt:     st.next,
			LastRunAt:     st.lastRun,
			LastRunStatus: st.status,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NextRun computes the next slot of a cron expression after from.
func NextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop halts the loop and waits for in-flight runs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	<-done
	s.runs.Wait()

	s.mu.Lock()
	s.done = nil
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
	return nil
}

func copyInput(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
