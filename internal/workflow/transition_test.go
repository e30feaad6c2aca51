package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwenmai/casefill/internal/gate"
	"github.com/yangwenmai/casefill/internal/model"
	"github.com/yangwenmai/casefill/internal/store"
)

func TestApply_Transitions(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		from    string
		event   Event
		want    string
		illegal bool
	}{
		{from: model.PhaseInitial, event: Suspended{URL: "u"}, want: model.PhaseWaitingForInput},
		{from: model.PhaseInitial, event: Resumed{}, want: model.PhaseContinuing},
		{from: model.PhaseInitial, event: Failed{Err: boom}, want: model.PhaseFailed},
		{from: model.PhaseInitial, event: InputsAccepted{}, illegal: true},
		{from: model.PhaseInitial, event: Completed{}, illegal: true},
		{from: model.PhaseWaitingForInput, event: InputsAccepted{Inputs: map[string]string{"a": "b"}}, want: model.PhaseContinuing},
		{from: model.PhaseWaitingForInput, event: Resumed{}, illegal: true},
		{from: model.PhaseWaitingForInput, event: Failed{Err: boom}, want: model.PhaseFailed},
		{from: model.PhaseContinuing, event: Completed{}, want: model.PhaseCompleted},
		{from: model.PhaseContinuing, event: Resumed{}, want: model.PhaseContinuing},
		{from: model.PhaseContinuing, event: Suspended{}, illegal: true},
		{from: model.PhaseCompleted, event: Failed{Err: boom}, illegal: true},
		{from: model.PhaseCompleted, event: Reset{}, illegal: true},
		{from: model.PhaseFailed, event: Resumed{}, illegal: true},
		{from: model.PhaseFailed, event: InputsAccepted{}, illegal: true},
		{from: model.PhaseFailed, event: Reset{}, want: model.PhaseInitial},
	}
	for _, tt := range tests {
		t.Run(tt.from+"/"+tt.event.eventName(), func(t *testing.T) {
			wc := model.NewWorkflowContext("T-1", "T-1", "run")
			wc.Phase = tt.from
			next, err := Apply(wc, tt.event)
			if tt.illegal {
				var te *TransitionError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, tt.from, te.From)
				assert.Equal(t, tt.from, next.Phase)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, next.Phase)
		})
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	wc := model.NewWorkflowContext("T-1", "T-1", "run")
	wc.Phase = model.PhaseWaitingForInput
	wc.BlankKeys = []string{"Scheme Name"}
	wc.ManualInputs = map[string]string{"Scheme Name": "old"}
	before := wc.Clone()

	next, err := Apply(wc, InputsAccepted{Inputs: map[string]string{"Scheme Name": "Vaishali"}})
	require.NoError(t, err)
	next.BlankKeys[0] = "changed"

	if diff := cmp.Diff(before, wc); diff != "" {
		t.Errorf("input context changed (-before +after):\n%s", diff)
	}
	assert.Equal(t, "Vaishali", next.ManualInputs["Scheme Name"])
}

func TestApply_SuspendedRecordsCheckpoint(t *testing.T) {
	wc := model.NewWorkflowContext("T-1", "T-1", "run")
	descs := []model.BlankFieldDescriptor{{Key: "Scheme Name", Label: "Scheme Name", Type: model.FieldTypeText}}
	next, err := Apply(wc, Suspended{URL: "https://portal/case/1", BlankKeys: []string{"Scheme Name"}, Descriptors: descs})
	require.NoError(t, err)

	want := wc.Clone()
	want.Phase = model.PhaseWaitingForInput
	want.LastURL = "https://portal/case/1"
	want.BlankKeys = []string{"Scheme Name"}
	want.Descriptors = descs
	if diff := cmp.Diff(want, next, cmpIgnoreUpdatedAt()); diff != "" {
		t.Errorf("unexpected checkpoint (-want +got):\n%s", diff)
	}
}

func TestApply_FailedRecordsErrorInfo(t *testing.T) {
	wc := model.NewWorkflowContext("T-1", "T-1", "run")
	wc.Phase = model.PhaseContinuing
	cause := &StepError{Step: "mobile_app", Err: &store.StoreWriteError{Key: "k", Err: errors.New("disk full")}}

	next, err := Apply(wc, Failed{Err: cause})
	require.NoError(t, err)
	require.NotNil(t, next.LastError)
	assert.Equal(t, model.PhaseContinuing, next.LastError.Phase)
	assert.Equal(t, "mobile_app", next.LastError.FailedStep)
	assert.Equal(t, "store_write", next.LastError.ErrorType)
	assert.True(t, next.LastError.Retryable)
	assert.Contains(t, next.LastError.Message, "disk full")

	reset, err := Apply(next, Reset{})
	require.NoError(t, err)
	assert.Equal(t, model.PhaseInitial, reset.Phase)
	assert.Nil(t, reset.LastError)
	assert.Equal(t, "T-1", reset.CaseID)
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err       error
		want      string
		retryable bool
	}{
		{context.Canceled, "cancelled", false},
		{context.DeadlineExceeded, "timeout", true},
		{&gate.ValidationError{Missing: []string{"x"}}, "validation", false},
		{&TransitionError{From: "initial", Event: "completed"}, "transition", false},
		{ErrNoBlankFields, "no_blank_fields", false},
		{errors.New("x"), "runtime", true},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, errorType(tt.err))
			assert.Equal(t, tt.retryable, retryable(tt.err))
		})
	}
}

func cmpIgnoreUpdatedAt() cmp.Option {
	return cmp.FilterPath(func(p cmp.Path) bool {
		return p.Last().String() == ".UpdatedAt"
	}, cmp.Ignore())
}
