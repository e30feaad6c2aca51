package model

import "time"

// Phase constants
const (
	PhaseInitial         = "initial"
	PhaseWaitingForInput = "waiting_for_input"
	PhaseContinuing      = "continuing"
	PhaseCompleted       = "completed"
	PhaseFailed          = "failed"
)

// Status values written into status artifacts.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusWaiting   = "waiting_for_input"
)

// Case identifies one valuation case being processed.
type Case struct {
	CaseID    string    `json:"case_id"`
	Namespace string    `json:"namespace"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
}

// StepOutcome is the result of one step inside a phase.
type StepOutcome struct {
	Step   string `json:"step"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Fatal  bool   `json:"fatal,omitempty"`
}

// WorkflowContext is the persisted checkpoint of a case workflow.
// Transitions return a new value; callers never mutate one in place.
type WorkflowContext struct {
	CaseID       string                 `json:"case_id"`
	Namespace    string                 `json:"namespace"`
	RunID        string                 `json:"run_id"`
	Phase        string                 `json:"phase"`
	LastURL      string                 `json:"last_url,omitempty"`
	BlankKeys    []string               `json:"blank_keys"`
	Descriptors  []BlankFieldDescriptor `json:"descriptors"`
	ManualInputs map[string]string      `json:"manual_inputs,omitempty"`
	Stages       map[string]bool        `json:"stages,omitempty"`
	Outcomes     []StepOutcome          `json:"outcomes,omitempty"`
	LastError    *ErrorInfo             `json:"last_error,omitempty"`
	UpdatedAt    string                 `json:"updated_at"`
}

// NewWorkflowContext returns the checkpoint of a case that has not started yet.
func NewWorkflowContext(caseID, namespace, runID string) WorkflowContext {
	return WorkflowContext{
		CaseID:    caseID,
		Namespace: namespace,
		RunID:     runID,
		Phase:     PhaseInitial,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// Clone returns a deep copy so callers can derive a new context safely.
func (wc WorkflowContext) Clone() WorkflowContext {
	out := wc
	out.BlankKeys = append([]string(nil), wc.BlankKeys...)
	out.Descriptors = make([]BlankFieldDescriptor, len(wc.Descriptors))
	for i, d := range wc.Descriptors {
		d.Options = append([]string(nil), d.Options...)
		out.Descriptors[i] = d
	}
	if wc.ManualInputs != nil {
		out.ManualInputs = make(map[string]string, len(wc.ManualInputs))
		for k, v := range wc.ManualInputs {
			out.ManualInputs[k] = v
		}
	}
	if wc.Stages != nil {
		out.Stages = make(map[string]bool, len(wc.Stages))
		for k, v := range wc.Stages {
			out.Stages[k] = v
		}
	}
	out.Outcomes = append([]StepOutcome(nil), wc.Outcomes...)
	if wc.LastError != nil {
		e := *wc.LastError
		out.LastError = &e
	}
	return out
}

// StatusReport is the payload of the start, completion and failure status artifacts.
type StatusReport struct {
	Status           string            `json:"status"`
	Timestamp        string            `json:"timestamp"`
	CaseID           string            `json:"case_id"`
	Namespace        string            `json:"namespace"`
	Phase            string            `json:"phase,omitempty"`
	Message          string            `json:"message,omitempty"`
	Error            string            `json:"error,omitempty"`
	ErrorType        string            `json:"error_type,omitempty"`
	FailedStep       string            `json:"failed_step,omitempty"`
	Retryable        bool              `json:"retryable,omitempty"`
	ModulesCompleted map[string]bool   `json:"modules_completed,omitempty"`
	Outcomes         []StepOutcome     `json:"outcomes,omitempty"`
	Settings         map[string]string `json:"settings,omitempty"`
}

// NewStatusReport creates a StatusReport stamped with the current time.
func NewStatusReport(status, caseID, namespace string) StatusReport {
	return StatusReport{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		CaseID:    caseID,
		Namespace: namespace,
	}
}
