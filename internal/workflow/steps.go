package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/yangwenmai/casefill/internal/browser"
	"github.com/yangwenmai/casefill/internal/extract"
	"github.com/yangwenmai/casefill/internal/logging"
	"github.com/yangwenmai/casefill/internal/model"
	"github.com/yangwenmai/casefill/internal/progress"
	"github.com/yangwenmai/casefill/internal/reconcile"
	"github.com/yangwenmai/casefill/internal/store"
)

// StepState is shared by the steps of one phase.
type StepState struct {
	Case    *store.CaseStore
	Session browser.Session
	Log     *logging.CaseLogger
	WC      model.WorkflowContext

	// URL is the last captured page address.
	URL        string
	Files      []extract.File
	Extraction extract.Result
	Reconciled reconcile.Result
	Stages     map[string]bool
	Reports    map[string]browser.StageReport
	Replay     ReplayReport

	loggers []*logging.CaseLogger
	cause   error
}

// Logger returns a case logger for module, reusing one already created.
func (st *StepState) Logger(module string, zl *zap.Logger) *logging.CaseLogger {
	for _, l := range st.loggers {
		if l.Module() == module {
			return l
		}
	}
	l := logging.NewCaseLogger(module, st.Case, zl)
	st.loggers = append(st.loggers, l)
	return l
}

// flush writes every collected log. Failures are already reported by the
// loggers themselves.
func (st *StepState) flush(ctx context.Context) {
	for _, l := range st.loggers {
		_ = l.Flush(ctx)
	}
}

func (st *StepState) closeSession() {
	if st.Session == nil {
		return
	}
	if err := st.Session.Close(); err != nil {
		st.Log.Warn("browser session close failed", zap.Error(err))
	}
	st.Session = nil
}

// Step is one unit of work inside a phase.
type Step interface {
	Name() string
	Run(ctx context.Context, st *StepState) model.StepOutcome
}

// step adapts a function to Step. An error from fn fails the phase when the
// step is fatal, unless it is a warning.
type step struct {
	name  string
	fatal bool
	fn    func(ctx context.Context, st *StepState) (string, error)
}

func (s step) Name() string { return s.name }

func (s step) Run(ctx context.Context, st *StepState) model.StepOutcome {
	detail, err := s.fn(ctx, st)
	if err == nil {
		return model.StepOutcome{Step: s.name, OK: true, Detail: detail}
	}
	var w warning
	fatal := s.fatal && !errors.As(err, &w)
	if fatal {
		st.cause = err
	}
	return model.StepOutcome{Step: s.name, Detail: err.Error(), Fatal: fatal}
}

// warning marks an error that degrades a step without failing the phase.
type warning struct{ err error }

func (w warning) Error() string { return w.err.Error() }
func (w warning) Unwrap() error { return w.err }

func warnf(format string, args ...interface{}) error {
	return warning{err: fmt.Errorf(format, args...)}
}

// PhaseResult is the ordered outcomes of a phase run.
type PhaseResult struct {
	Outcomes []model.StepOutcome
}

// OK reports whether every step succeeded.
func (r PhaseResult) OK() bool {
	for _, o := range r.Outcomes {
		if !o.OK {
			return false
		}
	}
	return true
}

// runSteps executes steps in order, reporting each outcome. It stops at the
// first fatal outcome and returns a *StepError naming that step.
func runSteps(ctx context.Context, steps []Step, st *StepState, rep progress.Reporter) (PhaseResult, error) {
	var res PhaseResult
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			o := model.StepOutcome{Step: s.Name(), Detail: err.Error(), Fatal: true}
			res.Outcomes = append(res.Outcomes, o)
			rep.Step(o)
			return res, &StepError{Step: s.Name(), Err: err}
		}

		o := s.Run(ctx, st)
		res.Outcomes = append(res.Outcomes, o)
		rep.Step(o)

		switch {
		case o.Fatal:
			st.Log.Error("step failed", zap.String("step", o.Step), zap.String("detail", o.Detail))
			cause := st.cause
			if cause == nil {
				cause = errors.New(o.Detail)
			}
			return res, &StepError{Step: o.Step, Err: cause}
		case !o.OK:
			st.Log.Warn("step degraded", zap.String("step", o.Step), zap.String("detail", o.Detail))
		default:
			st.Log.Info("step done", zap.String("step", o.Step), zap.String("detail", o.Detail))
		}
	}
	return res, nil
}

// StepError wraps an error with the step name that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepName returns the name of the failed step.
func (e *StepError) StepName() string {
	return e.Step
}
