package store

import (
	"context"
	"errors"
	"time"

	"github.com/yangwenmai/casefill/internal/model"
)

var (
	// ErrNotFound is returned by a Backend when a key does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrExists is returned by a Backend when a write targets an existing key.
	ErrExists = errors.New("object already exists")
)

// ObjectMeta is the audit metadata attached to every stored object.
type ObjectMeta struct {
	CaseID      string         `json:"case_id"`
	Namespace   string         `json:"namespace"`
	Category    model.Category `json:"category"`
	ContentType string         `json:"content_type"`
	Size        int64          `json:"size"`
	UploadedAt  time.Time      `json:"uploaded_at"`
}

// Object is a stored object together with its metadata.
type Object struct {
	Key  string
	Meta ObjectMeta
	Body []byte
}

// Backend is the object storage primitive the Store is built on.
// Put never overwrites: a write to an existing key returns ErrExists.
type Backend interface {
	Put(ctx context.Context, key string, body []byte, meta ObjectMeta) error
	Get(ctx context.Context, key string) (*Object, error)
	// Exists reports whether any object key starts with prefix.
	Exists(ctx context.Context, prefix string) (bool, error)
	// List returns objects under prefix without bodies, newest first.
	List(ctx context.Context, prefix string) ([]Object, error)
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
	Close() error
}
