package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yangwenmai/casefill/internal/model"
)

// RootPrefix is the key prefix every case namespace lives under.
const RootPrefix = "cases/"

// UnknownCaseToken is the namespace token used when a case id sanitizes to nothing.
const UnknownCaseToken = "UNKNOWN_CASE"

// ManifestFile is written into json_data when a namespace is reserved.
const ManifestFile = "namespace.json"

// maxNamespaceAttempts bounds the number of suffixes tried for one case id.
const maxNamespaceAttempts = 10000

// Lookup is the result of a read that may legitimately find nothing.
type Lookup int

const (
	Absent Lookup = iota
	Found
)

func (l Lookup) String() string {
	if l == Found {
		return "found"
	}
	return "absent"
}

// StoreWriteError is returned when an artifact could not be written.
type StoreWriteError struct {
	Key string
	Err error
}

func (e *StoreWriteError) Error() string {
	return "store write " + e.Key + ": " + e.Err.Error()
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for store warnings.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the case-scoped artifact store on top of a Backend.
type Store struct {
	backend Backend
	log     *zap.Logger
	now     func() time.Time
}

// New creates a Store on backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend, log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

var (
	disallowedChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	repeatedUnders  = regexp.MustCompile(`_+`)
)

// SanitizeCaseID turns a free-text case id into a path-safe namespace token.
func SanitizeCaseID(caseID string) string {
	token := disallowedChars.ReplaceAllString(strings.TrimSpace(caseID), "_")
	token = repeatedUnders.ReplaceAllString(token, "_")
	token = strings.Trim(token, "_")
	if token == "" {
		return UnknownCaseToken
	}
	return token
}

func namespacePrefix(namespace string) string {
	return RootPrefix + namespace + "/"
}

// AllocateNamespace returns an unused namespace for caseID. The sanitized
// token is tried first, then token_1, token_2 and so on. When the backend
// cannot be queried a timestamp-suffixed namespace is returned instead.
func (s *Store) AllocateNamespace(ctx context.Context, caseID string) (string, error) {
	token := SanitizeCaseID(caseID)
	for i := 0; i < maxNamespaceAttempts; i++ {
		candidate := token
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d", token, i)
		}
		exists, err := s.backend.Exists(ctx, namespacePrefix(candidate))
		if err != nil {
			fallback := token + "_" + s.now().UTC().Format("20060102_150405")
			s.log.Warn("namespace lookup failed, using timestamp namespace",
				zap.String("case_id", caseID), zap.String("namespace", fallback), zap.Error(err))
			return fallback, nil
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free namespace for %q after %d attempts", caseID, maxNamespaceAttempts)
}

type namespaceManifest struct {
	CaseID    string `json:"case_id"`
	Namespace string `json:"namespace"`
	RunID     string `json:"run_id"`
	CreatedAt string `json:"created_at"`
}

// OpenCase allocates a fresh namespace for caseID and reserves it by writing
// the namespace manifest. A failed manifest write is returned as an error.
func (s *Store) OpenCase(ctx context.Context, caseID string) (*CaseStore, error) {
	ns, err := s.AllocateNamespace(ctx, caseID)
	if err != nil {
		return nil, err
	}
	cs := s.Case(caseID, ns)
	cs.runID = uuid.NewString()
	manifest := namespaceManifest{
		CaseID:    caseID,
		Namespace: ns,
		RunID:     cs.runID,
		CreatedAt: s.now().UTC().Format(time.RFC3339),
	}
	if _, err := cs.Upload(ctx, model.CategoryJSONData, ManifestFile, manifest, model.ContentTypeJSON); err != nil {
		return nil, fmt.Errorf("reserve namespace %s: %w", ns, err)
	}
	s.log.Info("case namespace allocated", zap.String("case_id", caseID), zap.String("namespace", ns))
	return cs, nil
}

// Case binds to an existing namespace without allocating.
func (s *Store) Case(caseID, namespace string) *CaseStore {
	return &CaseStore{store: s, caseID: caseID, namespace: namespace}
}

// ListRuns returns the runs recorded for caseID, newest first.
func (s *Store) ListRuns(ctx context.Context, caseID string) ([]model.Case, error) {
	objs, err := s.backend.List(ctx, RootPrefix+SanitizeCaseID(caseID))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs := []model.Case{}
	for _, o := range objs {
		if o.Meta.CaseID != caseID || !strings.HasSuffix(o.Key, "/"+string(model.CategoryJSONData)+"/"+ManifestFile) {
			continue
		}
		runs = append(runs, model.Case{CaseID: caseID, Namespace: o.Meta.Namespace, CreatedAt: o.Meta.UploadedAt})
	}
	return runs, nil
}

// CaseStore reads and writes artifacts inside one case namespace.
type CaseStore struct {
	store     *Store
	caseID    string
	namespace string
	runID     string
}

func (c *CaseStore) CaseID() string    { return c.caseID }
func (c *CaseStore) Namespace() string { return c.namespace }
func (c *CaseStore) RunID() string     { return c.runID }

// Key returns the full object key of an artifact.
func (c *CaseStore) Key(category model.Category, filename string) string {
	return namespacePrefix(c.namespace) + string(category) + "/" + strings.TrimLeft(filename, "/")
}

// TimestampedName builds a unique filename such as "prefix_20250101_120000_123.ext".
func (c *CaseStore) TimestampedName(prefix, ext string) string {
	now := c.store.now().UTC()
	return fmt.Sprintf("%s_%s_%03d%s", prefix, now.Format("20060102_150405"), now.Nanosecond()/int(time.Millisecond), ext)
}

// Upload writes content under category/filename. []byte is stored as binary,
// string as text and anything else as indented JSON. An empty contentType
// selects the default for the content kind. Existing keys are never replaced.
func (c *CaseStore) Upload(ctx context.Context, category model.Category, filename string, content interface{}, contentType string) (model.ArtifactInfo, error) {
	if !category.Valid() {
		return model.ArtifactInfo{}, fmt.Errorf("unknown category %q", category)
	}
	filename = strings.TrimLeft(filename, "/")
	if filename == "" {
		return model.ArtifactInfo{}, errors.New("empty filename")
	}

	var (
		body []byte
		ct   string
	)
	switch v := content.(type) {
	case []byte:
		body, ct = v, model.ContentTypeBinary
	case string:
		body, ct = []byte(v), model.ContentTypeText
	default:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return model.ArtifactInfo{}, fmt.Errorf("encode %s: %w", filename, err)
		}
		body, ct = b, model.ContentTypeJSON
	}
	if contentType != "" {
		ct = contentType
	}

	key := c.Key(category, filename)
	meta := ObjectMeta{
		CaseID:      c.caseID,
		Namespace:   c.namespace,
		Category:    category,
		ContentType: ct,
		Size:        int64(len(body)),
		UploadedAt:  c.store.now().UTC(),
	}
	if err := c.store.backend.Put(ctx, key, body, meta); err != nil {
		c.store.log.Error("artifact upload failed", zap.String("key", key), zap.Error(err))
		return model.ArtifactInfo{}, &StoreWriteError{Key: key, Err: err}
	}
	return c.info(key, meta), nil
}

// UploadJSON writes v as a json_data artifact.
func (c *CaseStore) UploadJSON(ctx context.Context, filename string, v interface{}) (model.ArtifactInfo, error) {
	return c.Upload(ctx, model.CategoryJSONData, filename, v, model.ContentTypeJSON)
}

// Download reads the raw body at relKey ("category/filename").
func (c *CaseStore) Download(ctx context.Context, relKey string) ([]byte, Lookup, error) {
	key := namespacePrefix(c.namespace) + strings.TrimLeft(relKey, "/")
	obj, err := c.store.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, Absent, nil
	}
	if err != nil {
		return nil, Absent, fmt.Errorf("download %s: %w", key, err)
	}
	return obj.Body, Found, nil
}

// DownloadStructured decodes the JSON artifact at relKey into v.
func (c *CaseStore) DownloadStructured(ctx context.Context, relKey string, v interface{}) (Lookup, error) {
	body, found, err := c.Download(ctx, relKey)
	if err != nil || found == Absent {
		return found, err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return Absent, fmt.Errorf("decode %s: %w", relKey, err)
	}
	return Found, nil
}

// List returns artifacts in category whose filename starts with prefix,
// newest first. No match yields an empty slice.
func (c *CaseStore) List(ctx context.Context, category model.Category, prefix string) ([]model.ArtifactInfo, error) {
	objs, err := c.store.backend.List(ctx, c.Key(category, prefix))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", category, err)
	}
	out := make([]model.ArtifactInfo, 0, len(objs))
	for _, o := range objs {
		out = append(out, c.info(o.Key, o.Meta))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// Latest returns the newest artifact in category whose filename ends with suffix.
func (c *CaseStore) Latest(ctx context.Context, category model.Category, suffix string) (model.ArtifactInfo, Lookup, error) {
	infos, err := c.List(ctx, category, "")
	if err != nil {
		return model.ArtifactInfo{}, Absent, err
	}
	for _, info := range infos {
		if strings.HasSuffix(info.Filename, suffix) {
			return info, Found, nil
		}
	}
	return model.ArtifactInfo{}, Absent, nil
}

// Purge deletes every artifact in the namespace.
func (c *CaseStore) Purge(ctx context.Context) (int64, error) {
	n, err := c.store.backend.DeletePrefix(ctx, namespacePrefix(c.namespace))
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", c.namespace, err)
	}
	c.store.log.Info("namespace purged", zap.String("namespace", c.namespace), zap.Int64("objects", n))
	return n, nil
}

func (c *CaseStore) info(key string, meta ObjectMeta) model.ArtifactInfo {
	filename := strings.TrimPrefix(key, namespacePrefix(c.namespace)+string(meta.Category)+"/")
	return model.ArtifactInfo{
		Key:         key,
		CaseID:      meta.CaseID,
		Namespace:   meta.Namespace,
		Category:    meta.Category,
		Filename:    filename,
		ContentType: meta.ContentType,
		Size:        meta.Size,
		UploadedAt:  meta.UploadedAt,
	}
}
