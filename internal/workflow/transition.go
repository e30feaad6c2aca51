// Package workflow drives a case through its phases: automated filling,
// suspension for operator input and resumption in a fresh browser session.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yangwenmai/casefill/internal/browser"
	"github.com/yangwenmai/casefill/internal/gate"
	"github.com/yangwenmai/casefill/internal/model"
	"github.com/yangwenmai/casefill/internal/store"
)

// Event is an input to Apply.
type Event interface {
	eventName() string
}

// Suspended ends an initial phase that left fields for the operator.
type Suspended struct {
	URL         string
	BlankKeys   []string
	Descriptors []model.BlankFieldDescriptor
}

// InputsAccepted carries the validated operator answers.
type InputsAccepted struct {
	Inputs map[string]string
}

// Resumed moves a case into continuing without operator input.
type Resumed struct{}

// Completed ends the continuing phase.
type Completed struct {
	Stages map[string]bool
}

// Failed aborts the current phase.
type Failed struct {
	Err  error
	Step string
}

// Reset re-enables a failed case.
type Reset struct{}

func (Suspended) eventName() string      { return "suspended" }
func (InputsAccepted) eventName() string { return "inputs_accepted" }
func (Resumed) eventName() string        { return "resumed" }
func (Completed) eventName() string      { return "completed" }
func (Failed) eventName() string         { return "failed" }
func (Reset) eventName() string          { return "reset" }

// TransitionError reports an event that is not legal in the current phase.
type TransitionError struct {
	From  string
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s in phase %s", e.Event, e.From)
}

var transitions = map[string]map[string]string{
	model.PhaseInitial: {
		"suspended": model.PhaseWaitingForInput,
		"resumed":   model.PhaseContinuing,
		"failed":    model.PhaseFailed,
	},
	model.PhaseWaitingForInput: {
		"inputs_accepted": model.PhaseContinuing,
		"failed":          model.PhaseFailed,
	},
	model.PhaseContinuing: {
		"resumed":   model.PhaseContinuing,
		"completed": model.PhaseCompleted,
		"failed":    model.PhaseFailed,
	},
	model.PhaseFailed: {
		"reset": model.PhaseInitial,
	},
}

// Apply returns the context that results from ev. wc is left untouched.
func Apply(wc model.WorkflowContext, ev Event) (model.WorkflowContext, error) {
	to, ok := transitions[wc.Phase][ev.eventName()]
	if !ok {
		return wc, &TransitionError{From: wc.Phase, Event: ev.eventName()}
	}

	next := wc.Clone()
	next.Phase = to
	now := time.Now().UTC().Format(time.RFC3339)
	next.UpdatedAt = now

	switch e := ev.(type) {
	case Suspended:
		next.LastURL = e.URL
		next.BlankKeys = append([]string(nil), e.BlankKeys...)
		next.Descriptors = append([]model.BlankFieldDescriptor(nil), e.Descriptors...)
		next.ManualInputs = nil
		next.LastError = nil
	case InputsAccepted:
		next.ManualInputs = make(map[string]string, len(e.Inputs))
		for k, v := range e.Inputs {
			next.ManualInputs[k] = v
		}
	case Resumed:
		next.LastError = nil
	case Completed:
		next.Stages = make(map[string]bool, len(e.Stages))
		for k, v := range e.Stages {
			next.Stages[k] = v
		}
		next.LastError = nil
	case Failed:
		info := ErrorInfo(wc.Phase, e.Step, e.Err)
		info.FailedAt = now
		next.LastError = &info
	case Reset:
		next = model.NewWorkflowContext(wc.CaseID, wc.Namespace, wc.RunID)
		next.UpdatedAt = now
	}
	return next, nil
}

// ErrorInfo describes err for status artifacts and checkpoints.
func ErrorInfo(phase, step string, err error) model.ErrorInfo {
	if step == "" {
		step = "unknown"
		var sn stepNamer
		if errors.As(err, &sn) {
			step = sn.StepName()
		}
	}
	info := model.ErrorInfo{
		Phase:      phase,
		FailedStep: step,
		ErrorType:  errorType(err),
		Retryable:  retryable(err),
		FailedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		info.Message = err.Error()
	}
	return info
}

// stepNamer is implemented by errors that carry a step name.
type stepNamer interface {
	StepName() string
}

func errorType(err error) string {
	var (
		sw *store.StoreWriteError
		ve *gate.ValidationError
		te *TransitionError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrNoBlankFields):
		return "no_blank_fields"
	case errors.Is(err, browser.ErrSessionClosed):
		return "session_closed"
	case errors.As(err, &sw):
		return "store_write"
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &te):
		return "transition"
	default:
		return "runtime"
	}
}

func retryable(err error) bool {
	var (
		ve *gate.ValidationError
		te *TransitionError
	)
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, ErrNoBlankFields):
		return false
	case errors.As(err, &ve), errors.As(err, &te):
		return false
	default:
		return true
	}
}
