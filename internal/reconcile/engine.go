// Package reconcile merges extraction records into the target record the
// web form is filled from, and reports which fields are still blank.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yangwenmai/casefill/internal/model"
	"github.com/yangwenmai/casefill/internal/store"
)

// CaseStore is the part of the case store the engine reads and writes.
type CaseStore interface {
	Namespace() string
	CaseID() string
	DownloadStructured(ctx context.Context, relKey string, v interface{}) (store.Lookup, error)
	UploadJSON(ctx context.Context, filename string, v interface{}) (model.ArtifactInfo, error)
}

// Logger is the structured logger the engine reports to.
type Logger interface {
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// Result is the outcome of one reconciliation.
type Result struct {
	Record        model.TargetRecord
	BlankKeys     []string
	Descriptors   []model.BlankFieldDescriptor
	Mapped        []Mapped
	DocumentFound bool
	ImageFound    bool
}

type drafterRecordFile struct {
	CaseID       string             `json:"case_id"`
	Namespace    string             `json:"namespace"`
	GeneratedAt  string             `json:"generated_at"`
	DrafterField model.TargetRecord `json:"drafter_field"`
	Mapped       []Mapped           `json:"mapped"`
}

type blankFieldsFile struct {
	CaseID      string                       `json:"case_id"`
	Namespace   string                       `json:"namespace"`
	GeneratedAt string                       `json:"generated_at"`
	BlankKeys   []string                     `json:"blank_keys"`
	Descriptors []model.BlankFieldDescriptor `json:"descriptors"`
}

// Engine loads extraction records from a case store, merges them and
// persists the result.
type Engine struct {
	log Logger
}

// NewEngine creates an Engine.
func NewEngine(log Logger) *Engine {
	return &Engine{log: log}
}

// Reconcile loads both extraction records (absent ones count as nil), merges
// them and writes the target record and the blank field report. Failing to
// persist either artifact is logged and does not fail the call.
func (e *Engine) Reconcile(ctx context.Context, cs CaseStore) (Result, error) {
	ns := cs.Namespace()

	var doc *model.DocumentExtraction
	var d model.DocumentExtraction
	if found, err := cs.DownloadStructured(ctx, "json_data/"+model.DocumentAnalysisFile(ns), &d); err != nil {
		e.log.Warn("document record unreadable, treating as absent", zap.Error(err))
	} else if found == store.Found {
		doc = &d
	}

	var img *model.ImageExtraction
	var i model.ImageExtraction
	if found, err := cs.DownloadStructured(ctx, "json_data/"+model.ImageAnalysisFile(ns), &i); err != nil {
		e.log.Warn("image record unreadable, treating as absent", zap.Error(err))
	} else if found == store.Found {
		img = &i
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := e.Build(doc, img)

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := cs.UploadJSON(ctx, model.DrafterRecordFile(ns), drafterRecordFile{
		CaseID: cs.CaseID(), Namespace: ns, GeneratedAt: now, DrafterField: res.Record, Mapped: res.Mapped,
	}); err != nil {
		e.log.Warn("target record not persisted", zap.Error(err))
	}
	if _, err := cs.UploadJSON(ctx, model.BlankFieldsFile(ns), blankFieldsFile{
		CaseID: cs.CaseID(), Namespace: ns, GeneratedAt: now, BlankKeys: res.BlankKeys, Descriptors: res.Descriptors,
	}); err != nil {
		e.log.Warn("blank field report not persisted", zap.Error(err))
	}
	return res, nil
}

// Build merges already-loaded records.
func (e *Engine) Build(doc *model.DocumentExtraction, img *model.ImageExtraction) Result {
	if doc == nil && img == nil {
		e.log.Warn("no extraction records available, using default template")
	}
	rec, mapped := Merge(doc, img)
	blank := BlankKeys(rec)
	descs := e.Classify(blank)
	e.log.Info("target record built",
		zap.Int("mapped", len(mapped)),
		zap.Int("blank", len(blank)),
		zap.Bool("document", doc != nil),
		zap.Bool("image", img != nil),
	)
	return Result{
		Record:        rec,
		BlankKeys:     blank,
		Descriptors:   descs,
		Mapped:        mapped,
		DocumentFound: doc != nil,
		ImageFound:    img != nil,
	}
}

// Classify maps keys to descriptors, logging and dropping unknown keys.
func (e *Engine) Classify(keys []string) []model.BlankFieldDescriptor {
	descs, unknown := Describe(keys)
	for _, k := range unknown {
		e.log.Warn("unknown field key dropped", zap.String("key", k))
	}
	return descs
}

// LoadRecord reads back the persisted target record of a case.
func LoadRecord(ctx context.Context, cs CaseStore) (model.TargetRecord, store.Lookup, error) {
	var f drafterRecordFile
	found, err := cs.DownloadStructured(ctx, "json_data/"+model.DrafterRecordFile(cs.Namespace()), &f)
	if err != nil {
		return model.TargetRecord{}, store.Absent, fmt.Errorf("load target record: %w", err)
	}
	return f.DrafterField, found, nil
}
