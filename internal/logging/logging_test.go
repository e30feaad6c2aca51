package logging

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yangwenmai/casefill/internal/model"
)

type upload struct {
	category model.Category
	filename string
	content  interface{}
}

type fakeUploader struct {
	mu      sync.Mutex
	uploads []upload
	err     error
}

func (f *fakeUploader) CaseID() string    { return "C-1" }
func (f *fakeUploader) Namespace() string { return "C-1_2" }

// TimestampedName uses a frozen clock so every flush shares one timestamp.
func (f *fakeUploader) TimestampedName(prefix, ext string) string {
	return prefix + "_20250301_090000_000" + ext
}

func (f *fakeUploader) Upload(_ context.Context, category model.Category, filename string, content interface{}, _ string) (model.ArtifactInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.ArtifactInfo{}, f.err
	}
	for _, u := range f.uploads {
		if u.filename == filename {
			return model.ArtifactInfo{}, errors.New("object already exists: " + filename)
		}
	}
	f.uploads = append(f.uploads, upload{category, filename, content})
	return model.ArtifactInfo{Filename: filename}, nil
}

func TestCaseLogger_FlushWritesEntries(t *testing.T) {
	up := &fakeUploader{}
	core, logs := observer.New(zap.DebugLevel)
	l := NewCaseLogger("drafter", up, zap.New(core))

	l.Info("filled field", zap.String("field", "Pincode"))
	l.Warn("field not found", zap.String("field", "Locality"))

	require.Equal(t, 2, logs.Len(), "entries should be mirrored to the process logger")

	require.NoError(t, l.Flush(context.Background()))
	require.Len(t, up.uploads, 1)

	u := up.uploads[0]
	assert.Equal(t, model.CategoryLogs, u.category)
	assert.True(t, strings.HasPrefix(u.filename, "drafter_"))
	assert.True(t, strings.HasSuffix(u.filename, ".json"))

	payload := u.content.(flushPayload)
	assert.Equal(t, 2, payload.Count)
	assert.Equal(t, "C-1_2", payload.Namespace)
	assert.Equal(t, "WARN", payload.Entries[1].Level)
	assert.Equal(t, "Pincode", payload.Entries[0].Extra["field"])
}

func TestCaseLogger_FlushOnlyPending(t *testing.T) {
	up := &fakeUploader{}
	l := NewCaseLogger("workflow", up, nil)

	require.NoError(t, l.Flush(context.Background()))
	assert.Empty(t, up.uploads, "nothing to flush")

	l.Info("one")
	require.NoError(t, l.Flush(context.Background()))
	l.Info("two")
	require.NoError(t, l.Flush(context.Background()))

	require.Len(t, up.uploads, 2)
	assert.Equal(t, 1, up.uploads[1].content.(flushPayload).Count)
	assert.Len(t, l.Entries(), 2)
}

func TestCaseLogger_FlushSameInstant(t *testing.T) {
	up := &fakeUploader{}
	l := NewCaseLogger("workflow", up, nil)

	l.Info("one")
	require.NoError(t, l.Flush(context.Background()))
	l.Info("two")
	require.NoError(t, l.Flush(context.Background()))

	require.Len(t, up.uploads, 2)
	assert.NotEqual(t, up.uploads[0].filename, up.uploads[1].filename)
	assert.True(t, strings.HasPrefix(up.uploads[1].filename, "workflow_20250301_090000_000_"))
}

func TestCaseLogger_FlushFailureKeepsEntries(t *testing.T) {
	up := &fakeUploader{err: errors.New("denied")}
	l := NewCaseLogger("workflow", up, nil)
	l.Error("boom")

	assert.Error(t, l.Flush(context.Background()))

	up.err = nil
	require.NoError(t, l.Flush(context.Background()))
	require.Len(t, up.uploads, 1)
	assert.Equal(t, 1, up.uploads[0].content.(flushPayload).Count)
}

func TestCaseLogger_ConcurrentAppend(t *testing.T) {
	l := NewCaseLogger("extract", &fakeUploader{}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Debug("tick")
			}
		}()
	}
	wg.Wait()
	assert.Len(t, l.Entries(), 400)
}

func TestNew_RejectsBadLevel(t *testing.T) {
	_, err := New("loud", "console")
	assert.Error(t, err)

	zl, err := New("info", "json")
	require.NoError(t, err)
	assert.NotNil(t, zl)
}
