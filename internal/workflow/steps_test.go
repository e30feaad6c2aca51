package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwenmai/casefill/internal/logging"
	"github.com/yangwenmai/casefill/internal/model"
	"github.com/yangwenmai/casefill/internal/progress"
	"github.com/yangwenmai/casefill/internal/store"
)

func testState(t *testing.T) *StepState {
	t.Helper()
	cs := (&store.Store{}).Case("T-1", "T-1")
	return &StepState{Case: cs, Log: logging.NewCaseLogger("workflow", cs, nil)}
}

func okStep(name string, ran *[]string) Step {
	return step{name: name, fn: func(context.Context, *StepState) (string, error) {
		*ran = append(*ran, name)
		return "done", nil
	}}
}

func TestRunSteps_StopsOnFirstFatal(t *testing.T) {
	var ran []string
	rec := &progress.Recorder{}
	inner := errors.New("intentional failure")

	res, err := runSteps(context.Background(), []Step{
		okStep("first", &ran),
		step{name: "soft", fn: func(context.Context, *StepState) (string, error) { return "", errors.New("degraded") }},
		step{name: "bad-step", fatal: true, fn: func(context.Context, *StepState) (string, error) { return "", inner }},
		okStep("never", &ran),
	}, testState(t), rec)

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "bad-step", se.StepName())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, []string{"first"}, ran)
	assert.Equal(t, []string{"first", "soft", "bad-step"}, rec.StepNames())
	assert.False(t, res.OK())
	assert.Equal(t, model.StepOutcome{Step: "soft", Detail: "degraded"}, res.Outcomes[1])
	assert.True(t, res.Outcomes[2].Fatal)
}

func TestRunSteps_WarningDoesNotFailFatalStep(t *testing.T) {
	res, err := runSteps(context.Background(), []Step{
		step{name: "fill", fatal: true, fn: func(context.Context, *StepState) (string, error) {
			return "", warnf("%d fields not filled", 2)
		}},
	}, testState(t), progress.Nop{})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.False(t, res.Outcomes[0].OK)
	assert.False(t, res.Outcomes[0].Fatal)
	assert.Equal(t, "2 fields not filled", res.Outcomes[0].Detail)
}

func TestRunSteps_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran []string
	_, err := runSteps(ctx, []Step{okStep("first", &ran)}, testState(t), progress.Nop{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ran)
}

func TestStepError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	se := &StepError{Step: "search_case", Err: inner}

	if se.Error() != "search_case: root cause" {
		t.Errorf("Error() = %q", se.Error())
	}
	if !errors.Is(se, inner) {
		t.Error("Unwrap should make inner error accessible via errors.Is")
	}
}

func TestReplayOrder(t *testing.T) {
	descs := []model.BlankFieldDescriptor{{Key: "b"}, {Key: "a"}, {Key: "c"}}
	got := replayOrder(descs, map[string]string{"a": "1", "b": "2", "z": "3", "y": "4"})
	assert.Equal(t, []string{"b", "a", "y", "z"}, got)
}
