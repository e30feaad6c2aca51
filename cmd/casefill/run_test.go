package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yangwenmai/casefill/internal/config"
	"github.com/yangwenmai/casefill/internal/gate"
	"github.com/yangwenmai/casefill/internal/model"
	"github.com/yangwenmai/casefill/internal/progress"
	"github.com/yangwenmai/casefill/internal/store"
)

// scriptedPrompter answers nothing on its first call and everything after.
type scriptedPrompter struct{ calls int }

func (p *scriptedPrompter) Prompt(_ context.Context, form gate.Form) (map[string]string, error) {
	p.calls++
	out := map[string]string{}
	if p.calls == 1 {
		return out, nil
	}
	for _, d := range append(form.Required, form.Optional...) {
		if d.Type == model.FieldTypeDropdown {
			out[d.Key] = d.Options[0]
		} else {
			out[d.Key] = "manual"
		}
	}
	return out, nil
}

func demoApp(t *testing.T) *app {
	t.Helper()
	c := config.Config{
		StoreBackend:           "sqlite",
		DBPath:                 filepath.Join(t.TempDir(), "cases.db"),
		ExtractProvider:        "gemini",
		RequireHumanCheckpoint: true,
		DocBatchSize:           1,
		ImageBatchSize:         2,
		MaxInFlight:            2,
		Demo:                   true,
	}
	a, err := newApp(context.Background(), c, zap.NewNop(), progress.Nop{})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestRunCase_Demo(t *testing.T) {
	a := demoApp(t)
	p := &scriptedPrompter{}
	var out bytes.Buffer

	require.NoError(t, runCase(context.Background(), a, p, &out, "T-0000045703", false))
	assert.Equal(t, 2, p.calls, "rejected submission is prompted again")
	assert.Contains(t, out.String(), "missing")
	assert.Contains(t, out.String(), "case T-0000045703 completed")

	wc, found, err := a.machine.Latest(context.Background(), "T-0000045703")
	require.NoError(t, err)
	require.Equal(t, store.Found, found)
	assert.Equal(t, model.PhaseCompleted, wc.Phase)
}

func TestRunCase_ResumeWithoutRun(t *testing.T) {
	a := demoApp(t)
	err := runCase(context.Background(), a, &scriptedPrompter{}, &bytes.Buffer{}, "T-1", true)
	assert.ErrorContains(t, err, "no run recorded")
}
