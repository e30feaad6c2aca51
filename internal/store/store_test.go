package store

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwenmai/casefill/internal/model"
)

// stepClock returns a time source that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	backend, err := NewSQLiteBackend(db)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return New(backend, opts...)
}

// failingBackend fails every lookup and write.
type failingBackend struct {
	SQLiteBackend
	existsErr error
	putErr    error
}

func (f *failingBackend) Exists(context.Context, string) (bool, error) { return false, f.existsErr }
func (f *failingBackend) Put(context.Context, string, []byte, ObjectMeta) error {
	return f.putErr
}
func (f *failingBackend) Close() error { return nil }

func TestSanitizeCaseID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"T-0000045703", "T-0000045703"},
		{"T/0000 045703", "T_0000_045703"},
		{"T//0000??045703", "T_0000_045703"},
		{"  __abc__ ", "abc"},
		{"", UnknownCaseToken},
		{"???", UnknownCaseToken},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeCaseID(tt.in), "SanitizeCaseID(%q)", tt.in)
	}
}

func TestOpenCase_SuffixesExistingNamespace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.OpenCase(ctx, "T-0000045703")
	require.NoError(t, err)
	assert.Equal(t, "T-0000045703", first.Namespace())

	second, err := s.OpenCase(ctx, "T-0000045703")
	require.NoError(t, err)
	assert.Equal(t, "T-0000045703_1", second.Namespace())

	third, err := s.OpenCase(ctx, "T-0000045703")
	require.NoError(t, err)
	assert.Equal(t, "T-0000045703_2", third.Namespace())
}

func TestOpenCase_SanitizedCollisionTriggersSuffix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.OpenCase(ctx, "T 45703")
	require.NoError(t, err)
	b, err := s.OpenCase(ctx, "T?45703")
	require.NoError(t, err)

	assert.Equal(t, "T_45703", a.Namespace())
	assert.Equal(t, "T_45703_1", b.Namespace())
}

func TestAllocateNamespace_DoesNotMatchLongerNamespace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.OpenCase(ctx, "T-10")
	require.NoError(t, err)

	ns, err := s.AllocateNamespace(ctx, "T-1")
	require.NoError(t, err)
	assert.Equal(t, "T-1", ns)
}

func TestAllocateNamespace_LookupFailureFallsBackToTimestamp(t *testing.T) {
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	s := New(&failingBackend{existsErr: errors.New("unreachable")}, WithClock(func() time.Time { return fixed }))

	ns, err := s.AllocateNamespace(context.Background(), "T-1")
	require.NoError(t, err)
	assert.Equal(t, "T-1_20250304_050607", ns)
}

func TestOpenCase_ManifestWriteFailureIsFatal(t *testing.T) {
	s := New(&failingBackend{putErr: errors.New("denied")})

	_, err := s.OpenCase(context.Background(), "T-1")
	require.Error(t, err)
	var werr *StoreWriteError
	assert.True(t, errors.As(err, &werr), "want StoreWriteError, got %T", err)
}

func TestUpload_NeverOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cs, err := s.OpenCase(ctx, "C-1")
	require.NoError(t, err)

	info, err := cs.Upload(ctx, model.CategoryLogs, "a.txt", "first", "")
	require.NoError(t, err)
	assert.Equal(t, "cases/C-1/logs/a.txt", info.Key)
	assert.Equal(t, model.ContentTypeText, info.ContentType)

	_, err = cs.Upload(ctx, model.CategoryLogs, "a.txt", "second", "")
	var werr *StoreWriteError
	require.True(t, errors.As(err, &werr))
	assert.ErrorIs(t, err, ErrExists)

	body, found, err := cs.Download(ctx, "logs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, Found, found)
	assert.Equal(t, "first", string(body))
}

func TestUpload_RejectsUnknownCategory(t *testing.T) {
	s := newTestStore(t)
	cs := s.Case("C-1", "C-1")

	_, err := cs.Upload(context.Background(), model.Category("secrets"), "x.json", map[string]string{}, "")
	assert.Error(t, err)
}

func TestDownloadStructured(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cs, err := s.OpenCase(ctx, "C-2")
	require.NoError(t, err)

	type payload struct {
		Status string `json:"status"`
	}
	_, err = cs.UploadJSON(ctx, "status.json", payload{Status: "ok"})
	require.NoError(t, err)

	var got payload
	found, err := cs.DownloadStructured(ctx, "/json_data/status.json", &got)
	require.NoError(t, err)
	assert.Equal(t, Found, found)
	assert.Equal(t, "ok", got.Status)

	found, err = cs.DownloadStructured(ctx, "json_data/missing.json", &got)
	require.NoError(t, err)
	assert.Equal(t, Absent, found)
}

func TestList_NewestFirst(t *testing.T) {
	s := newTestStore(t, WithClock(stepClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))))
	ctx := context.Background()
	cs, err := s.OpenCase(ctx, "C-3")
	require.NoError(t, err)

	for _, name := range []string{"bundle_a.zip", "bundle_b.zip", "notes.txt"} {
		_, err := cs.Upload(ctx, model.CategoryDownloads, name, []byte(name), "")
		require.NoError(t, err)
	}

	infos, err := cs.List(ctx, model.CategoryDownloads, "bundle_")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "bundle_b.zip", infos[0].Filename)
	assert.Equal(t, "bundle_a.zip", infos[1].Filename)

	latest, found, err := cs.Latest(ctx, model.CategoryDownloads, ".zip")
	require.NoError(t, err)
	assert.Equal(t, Found, found)
	assert.Equal(t, "bundle_b.zip", latest.Filename)

	empty, err := cs.List(ctx, model.CategoryScreenshots, "")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestPurgeAndListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.OpenCase(ctx, "C-4")
	require.NoError(t, err)
	_, err = s.OpenCase(ctx, "C-4")
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx, "C-4")
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	n, err := a.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	runs, err = s.ListRuns(ctx, "C-4")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "C-4_1", runs[0].Namespace)

	// The purged namespace becomes available again.
	ns, err := s.AllocateNamespace(ctx, "C-4")
	require.NoError(t, err)
	assert.Equal(t, "C-4", ns)
}

func TestTimestampedName(t *testing.T) {
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 8*int(time.Millisecond), time.UTC)
	s := New(&failingBackend{}, WithClock(func() time.Time { return fixed }))
	name := s.Case("C", "C").TimestampedName("logs_workflow", ".json")
	assert.Equal(t, "logs_workflow_20250304_050607_008.json", name)
	assert.True(t, strings.HasSuffix(name, ".json"))
}

func TestSQLiteBackend_PutErrorSurfacesAsWriteError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO objects")).
		WillReturnError(errors.New("disk I/O error"))

	s := New(&SQLiteBackend{db: db})
	_, err = s.Case("C-5", "C-5").Upload(context.Background(), model.CategoryLogs, "x.txt", "x", "")

	var werr *StoreWriteError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, "cases/C-5/logs/x.txt", werr.Key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteBackend_ExistsErrorFallsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM objects")).
		WillReturnError(errors.New("connection reset"))

	s := New(&SQLiteBackend{db: db})
	ns, err := s.AllocateNamespace(context.Background(), "C-6")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ns, "C-6_"), "got %q", ns)
	assert.NoError(t, mock.ExpectationsWereMet())
}
