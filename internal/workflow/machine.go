package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/yangwenmai/casefill/internal/browser"
	"github.com/yangwenmai/casefill/internal/extract"
	"github.com/yangwenmai/casefill/internal/gate"
	"github.com/yangwenmai/casefill/internal/model"
	"github.com/yangwenmai/casefill/internal/progress"
	"github.com/yangwenmai/casefill/internal/store"
)

// ErrNoBlankFields fails an initial phase that left nothing for the operator
// while a human checkpoint is required.
var ErrNoBlankFields = errors.New("no blank fields left for operator review")

// teardownTimeout bounds the failure reporting done after a phase aborts.
const teardownTimeout = 30 * time.Second

// Config tunes the state machine.
type Config struct {
	// RequireHumanCheckpoint fails an initial phase that ends with zero blank
	// fields. When false such a case moves straight to continuing.
	RequireHumanCheckpoint bool
	// Extract tunes the document and image fan-out.
	Extract extract.Options
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{RequireHumanCheckpoint: true, Extract: extract.DefaultOptions()}
}

// Option configures a Machine.
type Option func(*Machine)

// WithConfig replaces the default Config.
func WithConfig(cfg Config) Option {
	return func(m *Machine) { m.cfg = cfg }
}

// WithLogger sets the process logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) { m.zl = l }
}

// WithReporter sets where step outcomes are rendered.
func WithReporter(r progress.Reporter) Option {
	return func(m *Machine) { m.reporter = r }
}

// Machine runs the phases of a case against the store, a browser launcher,
// the portal flows and the extraction services.
type Machine struct {
	store    *store.Store
	launcher browser.Launcher
	portal   browser.Portal
	docs     extract.Service
	images   extract.Service
	cfg      Config
	zl       *zap.Logger
	reporter progress.Reporter
}

// New creates a Machine. docs analyses documents and images analyses
// photographs and site plans; they may be the same Service.
func New(s *store.Store, l browser.Launcher, p browser.Portal, docs, images extract.Service, opts ...Option) *Machine {
	m := &Machine{
		store:    s,
		launcher: l,
		portal:   p,
		docs:     docs,
		images:   images,
		cfg:      DefaultConfig(),
		zl:       zap.NewNop(),
		reporter: progress.Nop{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Config returns the active settings.
func (m *Machine) Config() Config { return m.cfg }

func (m *Machine) newState(cs *store.CaseStore, wc model.WorkflowContext) *StepState {
	st := &StepState{
		Case:    cs,
		WC:      wc,
		Stages:  map[string]bool{},
		Reports: map[string]browser.StageReport{},
	}
	st.Log = st.Logger("workflow", m.zl)
	return st
}

// ---------------------------------------------------------------------------
// Phases
// ---------------------------------------------------------------------------

// Start allocates a namespace for caseID and runs the initial phase. The
// returned context is waiting_for_input when fields are left for the
// operator, continuing when the fast path applies and failed otherwise.
func (m *Machine) Start(ctx context.Context, caseID string) (model.WorkflowContext, error) {
	cs, err := m.store.OpenCase(ctx, caseID)
	if err != nil {
		return m.failOpen(ctx, caseID, &StepError{Step: "open_case", Err: err})
	}
	wc := model.NewWorkflowContext(caseID, cs.Namespace(), cs.RunID())
	st := m.newState(cs, wc)
	defer st.closeSession()

	m.reporter.Phase(caseID, wc.Phase)
	st.Log.Info("initial phase started", zap.Bool("require_human_checkpoint", m.cfg.RequireHumanCheckpoint))

	res, err := runSteps(ctx, m.initialSteps(), st, m.reporter)
	if err != nil {
		return m.fail(ctx, st, res, err)
	}

	var next model.WorkflowContext
	switch {
	case len(st.Reconciled.BlankKeys) > 0:
		next, err = Apply(wc, Suspended{
			URL:         st.URL,
			BlankKeys:   st.Reconciled.BlankKeys,
			Descriptors: st.Reconciled.Descriptors,
		})
	case m.cfg.RequireHumanCheckpoint:
		return m.fail(ctx, st, res, &StepError{Step: "checkpoint", Err: ErrNoBlankFields})
	default:
		st.Log.Info("no blank fields, continuing without operator input")
		next, err = Apply(wc, Resumed{})
	}
	if err != nil {
		return wc, err
	}
	next.Outcomes = res.Outcomes
	st.closeSession()
	return m.commit(ctx, st, next), nil
}

// Submit validates the operator's answers for a waiting case. A rejected
// submission leaves wc unchanged and returns a *gate.ValidationError.
func (m *Machine) Submit(ctx context.Context, wc model.WorkflowContext, values map[string]string) (model.WorkflowContext, error) {
	if wc.Phase != model.PhaseWaitingForInput {
		return wc, &TransitionError{From: wc.Phase, Event: InputsAccepted{}.eventName()}
	}
	st := m.newState(m.store.Case(wc.CaseID, wc.Namespace), wc)
	log := st.Logger("manual_input", m.zl)

	inputs, err := gate.Accept(wc.Descriptors, values)
	if err != nil {
		log.Warn("operator input rejected", zap.Error(err))
		st.flush(ctx)
		return wc, err
	}
	next, err := Apply(wc, InputsAccepted{Inputs: inputs})
	if err != nil {
		return wc, err
	}

	name := st.Case.TimestampedName("manual_inputs", ".json")
	if _, err := st.Case.Upload(ctx, model.CategoryAICorrections, name, correctionFile{
		CaseID:      wc.CaseID,
		Namespace:   wc.Namespace,
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
		Inputs:      inputs,
	}, model.ContentTypeJSON); err != nil {
		log.Warn("manual inputs not persisted", zap.Error(err))
	}
	log.Info("operator input accepted", zap.Int("fields", len(inputs)))
	return m.commit(ctx, st, next), nil
}

// Continue reopens a browser session for a continuing case, restores the
// case page, replays the operator's answers and runs the remaining stages.
func (m *Machine) Continue(ctx context.Context, wc model.WorkflowContext) (model.WorkflowContext, error) {
	if wc.Phase != model.PhaseContinuing {
		return wc, &TransitionError{From: wc.Phase, Event: Completed{}.eventName()}
	}
	st := m.newState(m.store.Case(wc.CaseID, wc.Namespace), wc)
	defer st.closeSession()

	m.reporter.Phase(wc.CaseID, wc.Phase)
	st.Log.Info("continuing phase started", zap.Int("manual_inputs", len(wc.ManualInputs)))

	res, err := runSteps(ctx, m.continueSteps(), st, m.reporter)
	if err != nil {
		return m.fail(ctx, st, res, err)
	}
	next, err := Apply(wc, Completed{Stages: st.Stages})
	if err != nil {
		return wc, err
	}
	next.Outcomes = res.Outcomes
	st.closeSession()
	return m.commit(ctx, st, next), nil
}

// Reset re-enables a failed case.
func (m *Machine) Reset(ctx context.Context, wc model.WorkflowContext) (model.WorkflowContext, error) {
	next, err := Apply(wc, Reset{})
	if err != nil {
		return wc, err
	}
	st := m.newState(m.store.Case(wc.CaseID, wc.Namespace), wc)
	st.Log.Info("case reset", zap.String("from", wc.Phase))
	return m.commit(ctx, st, next), nil
}

// Checkpoint loads the newest checkpoint of one namespace.
func (m *Machine) Checkpoint(ctx context.Context, caseID, namespace string) (model.WorkflowContext, store.Lookup, error) {
	return LoadCheckpoint(ctx, m.store.Case(caseID, namespace))
}

// Latest loads the newest checkpoint across every run of caseID.
func (m *Machine) Latest(ctx context.Context, caseID string) (model.WorkflowContext, store.Lookup, error) {
	runs, err := m.store.ListRuns(ctx, caseID)
	if err != nil {
		return model.WorkflowContext{}, store.Absent, err
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	for _, r := range runs {
		wc, found, err := m.Checkpoint(ctx, caseID, r.Namespace)
		if err != nil {
			return model.WorkflowContext{}, store.Absent, err
		}
		if found == store.Found {
			return wc, found, nil
		}
	}
	return model.WorkflowContext{}, store.Absent, nil
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

type correctionFile struct {
	CaseID      string            `json:"case_id"`
	Namespace   string            `json:"namespace"`
	SubmittedAt string            `json:"submitted_at"`
	Inputs      map[string]string `json:"inputs"`
}

// commit persists next as the newest checkpoint and flushes the phase logs.
// Store failures are logged; the caller still receives next.
func (m *Machine) commit(ctx context.Context, st *StepState, next model.WorkflowContext) model.WorkflowContext {
	if _, err := SaveCheckpoint(ctx, st.Case, next); err != nil {
		st.Log.Error("checkpoint not persisted", zap.String("phase", next.Phase), zap.Error(err))
	} else {
		st.Log.Info("checkpoint saved", zap.String("phase", next.Phase))
	}
	m.reporter.Phase(next.CaseID, next.Phase)
	st.flush(ctx)
	return next
}

// fail tears down after a phase-fatal error: screenshot, session close,
// error report and a failed checkpoint. Reporting failures are swallowed.
func (m *Machine) fail(ctx context.Context, st *StepState, res PhaseResult, cause error) (model.WorkflowContext, error) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	phase := st.WC.Phase
	st.Log.Error("phase failed", zap.String("phase", phase), zap.Error(cause))
	m.screenshot(tctx, st, phase+"_error")
	st.closeSession()

	next, err := Apply(st.WC, Failed{Err: cause})
	if err != nil {
		st.flush(tctx)
		return st.WC, errors.Join(cause, err)
	}
	next.Outcomes = res.Outcomes

	report := model.NewStatusReport(model.StatusFailed, st.WC.CaseID, st.WC.Namespace)
	report.Phase = phase
	report.Error = cause.Error()
	report.ErrorType = next.LastError.ErrorType
	report.FailedStep = next.LastError.FailedStep
	report.Retryable = next.LastError.Retryable
	report.Outcomes = res.Outcomes
	if _, err := st.Case.UploadJSON(tctx, phase+model.ErrorReportFileSuffix, report); err != nil {
		st.Log.Warn("error report not persisted", zap.Error(err))
	}
	return m.commit(tctx, st, next), cause
}

// failOpen reports a Start that could not reserve a namespace. The returned
// context is failed; it is not checkpointed since nothing was allocated.
func (m *Machine) failOpen(ctx context.Context, caseID string, cause error) (model.WorkflowContext, error) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	wc := model.NewWorkflowContext(caseID, store.SanitizeCaseID(caseID), "")
	next, err := Apply(wc, Failed{Err: cause, Step: "open_case"})
	if err != nil {
		return wc, errors.Join(cause, err)
	}
	m.zl.Error("case namespace not allocated", zap.String("case_id", caseID), zap.Error(cause))

	report := model.NewStatusReport(model.StatusFailed, caseID, wc.Namespace)
	report.Phase = wc.Phase
	report.Error = cause.Error()
	report.ErrorType = next.LastError.ErrorType
	report.FailedStep = next.LastError.FailedStep
	report.Retryable = next.LastError.Retryable
	if _, err := m.store.Case(caseID, wc.Namespace).UploadJSON(tctx, wc.Phase+model.ErrorReportFileSuffix, report); err != nil {
		m.zl.Warn("error report not persisted", zap.String("case_id", caseID), zap.Error(err))
	}
	m.reporter.Phase(caseID, next.Phase)
	return next, cause
}

// screenshot stores a capture of the current page. Failures are logged.
func (m *Machine) screenshot(ctx context.Context, st *StepState, label string) {
	if st.Session == nil {
		return
	}
	png, err := st.Session.Screenshot(ctx)
	if err != nil {
		st.Log.Warn("screenshot failed", zap.String("label", label), zap.Error(err))
		return
	}
	name := st.Case.TimestampedName(label, ".png")
	if _, err := st.Case.Upload(ctx, model.CategoryScreenshots, name, png, model.ContentTypePNG); err != nil {
		st.Log.Warn("screenshot not persisted", zap.String("label", label), zap.Error(err))
	}
}

func (m *Machine) writeStatus(ctx context.Context, st *StepState, filename string, report interface{}) error {
	if _, err := st.Case.UploadJSON(ctx, filename, report); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return nil
}
