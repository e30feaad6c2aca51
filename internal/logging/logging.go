// Package logging sets up the process logger and the per-case module loggers
// whose entries are persisted into the case namespace.
package logging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yangwenmai/casefill/internal/model"
)

// New builds the process logger. format is "console" or "json".
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// Uploader is the part of the case store a CaseLogger flushes into.
type Uploader interface {
	CaseID() string
	Namespace() string
	TimestampedName(prefix, ext string) string
	Upload(ctx context.Context, category model.Category, filename string, content interface{}, contentType string) (model.ArtifactInfo, error)
}

// Entry is one structured log record.
type Entry struct {
	ID        string                 `json:"id"`
	Timestamp string                 `json:"timestamp"`
	Module    string                 `json:"module"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	CaseID    string                 `json:"case_id"`
	Namespace string                 `json:"namespace"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

type flushPayload struct {
	Module    string  `json:"module"`
	CaseID    string  `json:"case_id"`
	Namespace string  `json:"namespace"`
	FlushedAt string  `json:"flushed_at"`
	Count     int     `json:"count"`
	Entries   []Entry `json:"entries"`
}

// CaseLogger collects entries for one module of one case, mirrors them to
// the process logger and writes them to logs/{module}_{ts}_{id}.json on Flush.
type CaseLogger struct {
	module string
	store  Uploader
	zl     *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries []Entry
	flushed int
}

// NewCaseLogger creates a logger for module writing into store.
func NewCaseLogger(module string, store Uploader, zl *zap.Logger) *CaseLogger {
	if zl == nil {
		zl = zap.NewNop()
	}
	return &CaseLogger{
		module: module,
		store:  store,
		zl:     zl.With(zap.String("module", module), zap.String("case_id", store.CaseID()), zap.String("namespace", store.Namespace())),
		now:    time.Now,
	}
}

// Module returns the module name.
func (l *CaseLogger) Module() string { return l.module }

// Zap returns the process logger scoped to this module.
func (l *CaseLogger) Zap() *zap.Logger { return l.zl }

func (l *CaseLogger) Debug(msg string, fields ...zap.Field) { l.log(zapcore.DebugLevel, msg, fields) }
func (l *CaseLogger) Info(msg string, fields ...zap.Field)  { l.log(zapcore.InfoLevel, msg, fields) }
func (l *CaseLogger) Warn(msg string, fields ...zap.Field)  { l.log(zapcore.WarnLevel, msg, fields) }
func (l *CaseLogger) Error(msg string, fields ...zap.Field) { l.log(zapcore.ErrorLevel, msg, fields) }

func (l *CaseLogger) log(level zapcore.Level, msg string, fields []zap.Field) {
	if ce := l.zl.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}

	entry := Entry{
		ID:        uuid.NewString(),
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		Module:    l.module,
		Level:     level.CapitalString(),
		Message:   msg,
		CaseID:    l.store.CaseID(),
		Namespace: l.store.Namespace(),
	}
	if len(fields) > 0 {
		enc := zapcore.NewMapObjectEncoder()
		for _, f := range fields {
			f.AddTo(enc)
		}
		entry.Extra = enc.Fields
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a copy of the collected entries.
func (l *CaseLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Flush writes the entries collected since the last successful flush.
// Failures are reported to the process logger and returned.
func (l *CaseLogger) Flush(ctx context.Context) error {
	l.mu.Lock()
	pending := append([]Entry(nil), l.entries[l.flushed:]...)
	end := len(l.entries)
	l.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	now := l.now().UTC()
	payload := flushPayload{
		Module:    l.module,
		CaseID:    l.store.CaseID(),
		Namespace: l.store.Namespace(),
		FlushedAt: now.Format(time.RFC3339),
		Count:     len(pending),
		Entries:   pending,
	}
	filename := l.store.TimestampedName(l.module, "_"+uuid.NewString()[:8]+".json")
	if _, err := l.store.Upload(ctx, model.CategoryLogs, filename, payload, model.ContentTypeJSON); err != nil {
		l.zl.Error("log flush failed", zap.Int("entries", len(pending)), zap.Error(err))
		return fmt.Errorf("flush %s logs: %w", l.module, err)
	}

	l.mu.Lock()
	if end > l.flushed {
		l.flushed = end
	}
	l.mu.Unlock()
	return nil
}
