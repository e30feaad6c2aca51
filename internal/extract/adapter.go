package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/yangwenmai/casefill/internal/model"
	"github.com/yangwenmai/casefill/internal/store"
)

// CaseStore is the part of the case store the adapter reads and writes.
type CaseStore interface {
	Namespace() string
	CaseID() string
	TimestampedName(prefix, ext string) string
	UploadJSON(ctx context.Context, filename string, v interface{}) (model.ArtifactInfo, error)
	DownloadStructured(ctx context.Context, relKey string, v interface{}) (store.Lookup, error)
}

// Options tunes the analysis fan-out.
type Options struct {
	// DocBatchSize is the number of documents analysed concurrently per batch.
	DocBatchSize int
	// ImageBatchSize is the number of images analysed concurrently per batch.
	ImageBatchSize int
	// MaxInFlight bounds the model calls running at once across both pipelines.
	MaxInFlight int
	// MinCallDelay is the minimum spacing between calls of one pipeline.
	MinCallDelay time.Duration
	// BatchPause is the pause between two batches of one pipeline.
	BatchPause time.Duration
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		DocBatchSize:   1,
		ImageBatchSize: 2,
		MaxInFlight:    2,
		MinCallDelay:   3 * time.Second,
		BatchPause:     2 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DocBatchSize <= 0 {
		o.DocBatchSize = d.DocBatchSize
	}
	if o.ImageBatchSize <= 0 {
		o.ImageBatchSize = d.ImageBatchSize
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = d.MaxInFlight
	}
	return o
}

// Result summarises one adapter run. Document and Image are nil when the
// bundle held no files of that kind.
type Result struct {
	Document      *model.DocumentExtraction
	Image         *model.ImageExtraction
	DocumentCalls int
	ImageCalls    int
	Failed        []string
	Skipped       []string
}

type rawResponse struct {
	File     string          `json:"file"`
	Kind     Kind            `json:"kind"`
	OK       bool            `json:"ok"`
	Error    string          `json:"error,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

type rawFile struct {
	CaseID      string        `json:"case_id"`
	Namespace   string        `json:"namespace"`
	GeneratedAt string        `json:"generated_at"`
	Responses   []rawResponse `json:"responses"`
}

// Adapter runs the document and image pipelines of a case bundle.
type Adapter struct {
	docs Service
	imgs Service
	opts Options
	log  Logger
}

// NewAdapter creates an Adapter. docs analyses documents, imgs analyses
// photographs and site plans; they may be the same Service.
func NewAdapter(docs, imgs Service, opts Options, log Logger) *Adapter {
	return &Adapter{docs: docs, imgs: imgs, opts: opts.withDefaults(), log: log}
}

// Run classifies files, analyses them and persists the raw responses and
// normalized records. Analysis failures never fail the run: the affected
// file contributes a fallback record. Only cancellation is returned.
func (a *Adapter) Run(ctx context.Context, cs CaseStore, files []File) (Result, error) {
	b := Classify(files)
	res := Result{Skipped: b.Skipped}
	for _, name := range b.Skipped {
		a.log.Info("bundle file skipped", zap.String("file", name))
	}

	sem := semaphore.NewWeighted(int64(a.opts.MaxInFlight))
	dc := docCalls(b.Documents)
	ic := imageCalls(b.Images, b.SitePlans)
	var (
		docRaw  = make([]rawResponse, len(dc))
		imgRaw  = make([]rawResponse, len(ic))
		docRecs = make([]model.DocumentExtraction, len(dc))
		imgRecs = make([]model.ImageExtraction, len(ic))
	)

	g, gctx := errgroup.WithContext(ctx)
	if len(dc) > 0 {
		g.Go(func() error {
			return a.pipeline(sem).run(gctx, a.docs, dc, a.opts.DocBatchSize, func(c call, raw json.RawMessage, err error) {
				rec := FallbackDocument()
				if err == nil {
					if rec, err = NormalizeDocument(raw); err != nil {
						rec = FallbackDocument()
					}
				}
				if err != nil {
					a.log.Warn("document analysis failed, using fallback", zap.String("file", c.file.Name), zap.Error(err))
				}
				docRaw[c.idx] = newRaw(c, raw, err)
				docRecs[c.idx] = rec
			})
		})
	}
	if len(ic) > 0 {
		g.Go(func() error {
			return a.pipeline(sem).run(gctx, a.imgs, ic, a.opts.ImageBatchSize, func(c call, raw json.RawMessage, err error) {
				rec := FallbackImage()
				if err == nil {
					if rec, err = NormalizeImage(raw); err != nil {
						rec = FallbackImage()
					}
				}
				if err != nil {
					a.log.Warn("image analysis failed, using fallback", zap.String("file", c.file.Name), zap.Error(err))
				}
				imgRaw[c.idx] = newRaw(c, raw, err)
				imgRecs[c.idx] = rec
			})
		})
	}
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("analyse bundle: %w", err)
	}

	var failures []string
	for _, r := range append(append([]rawResponse(nil), docRaw...), imgRaw...) {
		if !r.OK {
			failures = append(failures, r.File)
		}
	}
	res.DocumentCalls = len(docRaw)
	res.ImageCalls = len(imgRaw)
	res.Failed = failures

	ns := cs.Namespace()
	if len(docRecs) > 0 {
		doc := AggregateDocuments(docRecs)
		res.Document = &doc
		a.persist(ctx, cs, KindDocument, docRaw)
		if _, err := cs.UploadJSON(ctx, model.DocumentAnalysisFile(ns), doc); err != nil {
			a.log.Warn("document record not persisted", zap.Error(err))
		}
	}
	if len(imgRecs) > 0 {
		img := AggregateImages(imgRecs)
		res.Image = &img
		a.persist(ctx, cs, KindImage, imgRaw)
		if _, err := cs.UploadJSON(ctx, model.ImageAnalysisFile(ns), img); err != nil {
			a.log.Warn("image record not persisted", zap.Error(err))
		}
	}

	a.log.Info("bundle analysed",
		zap.Int("documents", len(b.Documents)),
		zap.Int("images", len(b.Images)),
		zap.Int("site_plans", len(b.SitePlans)),
		zap.Int("failed", len(failures)),
	)
	return res, nil
}

func (a *Adapter) persist(ctx context.Context, cs CaseStore, kind Kind, raws []rawResponse) {
	name := cs.TimestampedName(string(kind)+"_raw", ".json")
	if _, err := cs.UploadJSON(ctx, name, rawFile{
		CaseID:      cs.CaseID(),
		Namespace:   cs.Namespace(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Responses:   raws,
	}); err != nil {
		a.log.Warn("raw responses not persisted", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func newRaw(c call, raw json.RawMessage, err error) rawResponse {
	r := rawResponse{File: c.file.Name, Kind: c.kind, OK: err == nil}
	if err != nil {
		r.Error = err.Error()
	} else if json.Valid(raw) {
		r.Response = raw
	}
	return r
}

// call is one model invocation for one file.
type call struct {
	idx  int
	kind Kind
	file File
	err  error
}

func docCalls(docs []File) []call {
	calls := make([]call, 0, len(docs))
	for i, f := range docs {
		prepared, err := prepareDocument(f)
		calls = append(calls, call{idx: i, kind: KindDocument, file: prepared, err: err})
	}
	return calls
}

func imageCalls(images, sitePlans []File) []call {
	calls := make([]call, 0, len(images)+len(sitePlans))
	for _, f := range images {
		calls = append(calls, call{idx: len(calls), kind: KindImage, file: f})
	}
	for _, f := range sitePlans {
		calls = append(calls, call{idx: len(calls), kind: KindSitePlan, file: f})
	}
	return calls
}

type pipeline struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	pause   time.Duration
}

func (a *Adapter) pipeline(sem *semaphore.Weighted) *pipeline {
	limit := rate.Inf
	if a.opts.MinCallDelay > 0 {
		limit = rate.Every(a.opts.MinCallDelay)
	}
	return &pipeline{sem: sem, limiter: rate.NewLimiter(limit, 1), pause: a.opts.BatchPause}
}

// run executes calls in sequential batches of size; calls inside a batch run
// concurrently. done receives every call exactly once; calls of one batch
// invoke it from different goroutines on distinct indexes.
func (p *pipeline) run(ctx context.Context, svc Service, calls []call, size int, done func(call, json.RawMessage, error)) error {
	for start := 0; start < len(calls); start += size {
		if start > 0 && p.pause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.pause):
			}
		}
		end := min(start+size, len(calls))

		var wg sync.WaitGroup
		for _, c := range calls[start:end] {
			if c.err != nil {
				done(c, nil, c.err)
				continue
			}
			if err := p.limiter.Wait(ctx); err != nil {
				wg.Wait()
				return err
			}
			if err := p.sem.Acquire(ctx, 1); err != nil {
				wg.Wait()
				return err
			}
			wg.Add(1)
			go func(c call) {
				defer wg.Done()
				defer p.sem.Release(1)
				raw, err := svc.Analyze(ctx, c.kind, []File{c.file})
				done(c, raw, err)
			}(c)
		}
		wg.Wait()
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// LoadDocument reads back the normalized document record of a case.
func LoadDocument(ctx context.Context, cs CaseStore) (model.DocumentExtraction, store.Lookup, error) {
	var d model.DocumentExtraction
	found, err := cs.DownloadStructured(ctx, "json_data/"+model.DocumentAnalysisFile(cs.Namespace()), &d)
	if err != nil {
		return model.DocumentExtraction{}, store.Absent, fmt.Errorf("load document record: %w", err)
	}
	return d, found, nil
}

// LoadImage reads back the normalized image record of a case.
func LoadImage(ctx context.Context, cs CaseStore) (model.ImageExtraction, store.Lookup, error) {
	var img model.ImageExtraction
	found, err := cs.DownloadStructured(ctx, "json_data/"+model.ImageAnalysisFile(cs.Namespace()), &img)
	if err != nil {
		return model.ImageExtraction{}, store.Absent, fmt.Errorf("load image record: %w", err)
	}
	return img, found, nil
}
