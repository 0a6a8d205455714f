package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RobinCoderZhao/sports-digest/pkg/metrics"
)

// Status is the lifecycle state of a submitted job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Done reports whether s is terminal.
func (s Status) Done() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusTimedOut
}

// ErrTimeout is the error of a job that exceeded its timeout.
var ErrTimeout = errors.New("job timed out")

// Func is the body of a job. The result is reported through its Handle.
type Func func(ctx context.Context) (any, error)

// Handle tracks one submitted job.
type Handle struct {
	ID   string
	Name string

	mu       sync.Mutex
	status   Status
	result   any
	err      error
	started  time.Time
	finished time.Time
	done     chan struct{}
}

// HandleInfo is the JSON view of a handle.
type HandleInfo struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Status     Status     `json:"status"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Result returns the outcome of a finished job; before that both are nil.
func (h *Handle) Result() (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// Wait blocks until the job finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		_, err := h.Result()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Info snapshots the handle.
func (h *Handle) Info() HandleInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	info := HandleInfo{ID: h.ID, Name: h.Name, Status: h.status, Result: h.result, StartedAt: h.started}
	if h.err != nil {
		info.Error = h.err.Error()
	}
	if !h.finished.IsZero() {
		f := h.finished
		info.FinishedAt = &f
	}
	return info
}

func (h *Handle) setRunning() {
	h.mu.Lock()
	h.status = StatusRunning
	h.mu.Unlock()
}

func (h *Handle) finish(status Status, result any, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.Done() {
		return false
	}
	h.status, h.result, h.err, h.finished = status, result, err, time.Now()
	close(h.done)
	return true
}

// Runner executes jobs in the background, each bounded by its own timeout,
// and keeps the most recent handles for polling.
type Runner struct {
	base   context.Context
	cancel context.CancelFunc
	keep   int

	mu      sync.Mutex
	handles map[string]*Handle
	order   []string
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// NewRunner creates a runner remembering the last keep handles (100 when <= 0).
func NewRunner(keep int) *Runner {
	if keep <= 0 {
		keep = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		base:    ctx,
		cancel:  cancel,
		keep:    keep,
		handles: make(map[string]*Handle),
		logger:  slog.Default(),
	}
}

// Submit starts fn in the background and returns immediately. A timeout <= 0
// means no limit. The job context is independent of the caller's.
func (r *Runner) Submit(name string, timeout time.Duration, fn Func) *Handle {
	h := &Handle{
		ID:      uuid.NewString(),
		Name:    name,
		status:  StatusPending,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	r.remember(h)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(h, timeout, fn)
	}()
	return h
}

func (r *Runner) run(h *Handle, timeout time.Duration, fn Func) {
	ctx, cancel := r.base, context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(r.base, timeout)
	}
	defer cancel()

	h.setRunning()
	r.logger.Info("running job", "name", h.Name, "id", h.ID, "timeout", timeout)

	type outcome struct {
		result any
		err    error
	}
	out := make(chan outcome, 1)
	// a timed-out fn may still be unwinding; Shutdown waits for it too
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				out <- outcome{err: fmt.Errorf("job panicked: %v", p)}
			}
		}()
		res, err := fn(ctx)
		out <- outcome{res, err}
	}()

	var (
		status Status
		res    any
		err    error
	)
	select {
	case o := <-out:
		res, err = o.result, o.err
		status = StatusSucceeded
		if err != nil {
			status = StatusFailed
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				status, err = StatusTimedOut, fmt.Errorf("%w: %v", ErrTimeout, err)
			}
		}
	case <-ctx.Done():
		status, err = StatusFailed, ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			status, err = StatusTimedOut, ErrTimeout
		}
	}

	h.finish(status, res, err)
	metrics.RecordJob(h.Name, string(status), h.started)
	if err != nil {
		r.logger.Error("job failed", "name", h.Name, "id", h.ID, "status", status, "error", err, "duration", time.Since(h.started))
		return
	}
	r.logger.Info("job completed", "name", h.Name, "id", h.ID, "duration", time.Since(h.started))
}

func (r *Runner) remember(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[h.ID] = h
	r.order = append(r.order, h.ID)
	for len(r.order) > r.keep {
		oldest := r.handles[r.order[0]]
		if oldest != nil && !oldest.Status().Done() {
			break
		}
		delete(r.handles, r.order[0])
		r.order = r.order[1:]
	}
}

// Get returns a remembered handle.
func (r *Runner) Get(id string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}

// Recent returns the remembered handles, newest first.
func (r *Runner) Recent() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Handle, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.handles[r.order[i]])
	}
	return out
}

// Shutdown cancels running jobs and waits for their bodies to return, including
// those already reported as timed out, until ctx is done.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
