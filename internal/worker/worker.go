package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yangwenmai/casefill/internal/model"
	"github.com/yangwenmai/casefill/internal/store"
	"github.com/yangwenmai/casefill/internal/workflow"
)

var (
	// ErrBusy is returned when a job for the same case is queued or running.
	ErrBusy = errors.New("case already has a job in progress")
	// ErrQueueFull is returned when the job queue has no free slot.
	ErrQueueFull = errors.New("job queue is full")
)

// Machine runs the phases of a case.
type Machine interface {
	Start(ctx context.Context, caseID string) (model.WorkflowContext, error)
	Continue(ctx context.Context, wc model.WorkflowContext) (model.WorkflowContext, error)
	Latest(ctx context.Context, caseID string) (model.WorkflowContext, store.Lookup, error)
}

// Kind names the phase a job drives.
type Kind string

const (
	KindStart    Kind = "start"
	KindContinue Kind = "continue"
)

// Job asks the worker to drive one case.
type Job struct {
	Kind   Kind
	CaseID string
}

// Hook observes each finished job.
type Hook func(j Job, wc model.WorkflowContext, err error)

// Option configures a Worker.
type Option func(*Worker)

// WithConcurrency sets how many cases run at once. Jobs of one case never
// overlap.
func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithQueueSize sets the number of jobs that may wait.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// WithLogger sets the process logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) { w.log = l }
}

// WithHook registers a callback run after every job.
func WithHook(h Hook) Option {
	return func(w *Worker) { w.hook = h }
}

// Worker drains queued jobs and runs them against the Machine.
type Worker struct {
	machine     Machine
	concurrency int
	queueSize   int
	log         *zap.Logger
	hook        Hook

	jobs   chan Job
	mu     sync.Mutex
	active map[string]Kind
}

// New creates a Worker.
func New(m Machine, opts ...Option) *Worker {
	w := &Worker{
		machine:     m,
		concurrency: 1,
		queueSize:   32,
		log:         zap.NewNop(),
		active:      make(map[string]Kind),
	}
	for _, o := range opts {
		o(w)
	}
	w.jobs = make(chan Job, w.queueSize)
	return w
}

// Enqueue queues j. It never blocks.
func (w *Worker) Enqueue(j Job) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if k, ok := w.active[j.CaseID]; ok {
		return fmt.Errorf("%s %s: %w (%s)", j.Kind, j.CaseID, ErrBusy, k)
	}
	select {
	case w.jobs <- j:
		w.active[j.CaseID] = j.Kind
		return nil
	default:
		return ErrQueueFull
	}
}

// Active reports the kind of job queued or running for caseID.
func (w *Worker) Active(caseID string) (Kind, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	k, ok := w.active[caseID]
	return k, ok
}

// Start runs the job loop. It blocks until ctx is cancelled and every
// running job has returned.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("worker started", zap.Int("concurrency", w.concurrency))
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case j := <-w.jobs:
					w.process(gctx, j)
				}
			}
		})
	}
	_ = g.Wait()
	w.log.Info("worker stopped")
}

func (w *Worker) process(ctx context.Context, j Job) {
	defer w.release(j.CaseID)

	log := w.log.With(zap.String("case_id", j.CaseID), zap.String("job", string(j.Kind)))
	log.Info("processing case")

	wc, err := w.run(ctx, j)
	if err != nil {
		info := workflow.ErrorInfo(wc.Phase, "", err)
		log.Error("case job failed",
			zap.String("phase", wc.Phase),
			zap.String("failed_step", info.FailedStep),
			zap.String("error_type", info.ErrorType),
			zap.Bool("retryable", info.Retryable),
			zap.Error(err))
	} else {
		log.Info("case job done", zap.String("phase", wc.Phase))
	}
	if w.hook != nil {
		w.hook(j, wc, err)
	}
}

func (w *Worker) run(ctx context.Context, j Job) (model.WorkflowContext, error) {
	switch j.Kind {
	case KindStart:
		wc, err := w.machine.Start(ctx, j.CaseID)
		if err != nil || wc.Phase != model.PhaseContinuing {
			return wc, err
		}
		return w.machine.Continue(ctx, wc)
	case KindContinue:
		wc, found, err := w.machine.Latest(ctx, j.CaseID)
		if err != nil {
			return wc, err
		}
		if found != store.Found {
			return wc, fmt.Errorf("no checkpoint for case %s", j.CaseID)
		}
		return w.machine.Continue(ctx, wc)
	default:
		return model.WorkflowContext{}, fmt.Errorf("unknown job kind %q", j.Kind)
	}
}

func (w *Worker) release(caseID string) {
	w.mu.Lock()
	delete(w.active, caseID)
	w.mu.Unlock()
}
