// Package scheduler runs the pipeline jobs on their schedules and on demand.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job represents a scheduled task.
type Job struct {
	Name     string
	Schedule string // standard cron expression or a descriptor like "@every 6h"
	Timeout  time.Duration
	Fn       Func
}

// Scheduler runs jobs on their cron schedules through a Runner. A job whose
// previous run is still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	jobs   []Job
	byName map[string]Job
	logger *slog.Logger
}

// NewScheduler creates a scheduler submitting to runner.
func NewScheduler(runner *Runner) *Scheduler {
	logger := slog.Default()
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
		),
		runner: runner,
		byName: make(map[string]Job),
		logger: logger,
	}
}

// Add registers a job. Names are unique and the schedule must parse.
func (s *Scheduler) Add(job Job) error {
	if _, dup := s.byName[job.Name]; dup {
		return fmt.Errorf("job %q already registered", job.Name)
	}
	if job.Fn == nil {
		return fmt.Errorf("job %q has no function", job.Name)
	}
	if _, err := cron.ParseStandard(job.Schedule); err != nil {
		return fmt.Errorf("job %q schedule %q: %w", job.Name, job.Schedule, err)
	}
	if _, err := s.cron.AddFunc(job.Schedule, func() { s.tick(job) }); err != nil {
		return fmt.Errorf("schedule job %q: %w", job.Name, err)
	}
	s.jobs = append(s.jobs, job)
	s.byName[job.Name] = job
	return nil
}

// tick runs a scheduled job and blocks until it finishes, so that
// SkipIfStillRunning sees overlapping runs.
func (s *Scheduler) tick(job Job) {
	h := s.runner.Submit(job.Name, job.Timeout, job.Fn)
	_ = h.Wait(context.Background())
}

// Jobs returns the registered jobs in registration order.
func (s *Scheduler) Jobs() []Job {
	return append([]Job(nil), s.jobs...)
}

// Run submits the named job now, outside its schedule.
func (s *Scheduler) Run(name string) (*Handle, error) {
	job, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown job %q", name)
	}
	return s.runner.Submit(job.Name, job.Timeout, job.Fn), nil
}

// Get returns a handle of the underlying runner.
func (s *Scheduler) Get(id string) (*Handle, bool) { return s.runner.Get(id) }

// Recent returns the runner's remembered handles, newest first.
func (s *Scheduler) Recent() []*Handle { return s.runner.Recent() }

// RunOnce executes all registered jobs once, sequentially (useful for testing).
func (s *Scheduler) RunOnce(ctx context.Context) error {
	for _, job := range s.jobs {
		h := s.runner.Submit(job.Name, job.Timeout, job.Fn)
		if err := h.Wait(ctx); err != nil {
			return fmt.Errorf("job %s: %w", job.Name, err)
		}
	}
	return nil
}

// Next reports the next activation time of each job.
func (s *Scheduler) Next() map[string]time.Time {
	out := make(map[string]time.Time, len(s.jobs))
	now := time.Now().UTC()
	for _, job := range s.jobs {
		if sched, err := cron.ParseStandard(job.Schedule); err == nil {
			out[job.Name] = sched.Next(now)
		}
	}
	return out
}

// Start runs the schedule until ctx is done, then waits for in-flight
// scheduled runs to return.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// cronLogger adapts slog to cron's logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
