// Package browser drives the valuation portal. Session is the narrow surface
// the workflow uses; RodSession implements it on Chrome via go-rod and
// FakeSession implements it in memory.
package browser

import (
	"context"
	"errors"
)

// ErrSessionClosed is returned by every Session method after Close.
var ErrSessionClosed = errors.New("browser session closed")

// Session is one logged-in browser tab. Fields are addressed by their
// on-page label. A field or target that does not exist yields false with a
// nil error; transport failures are errors.
type Session interface {
	Navigate(ctx context.Context, url string) error
	LocateAndFill(ctx context.Context, field, value string) (bool, error)
	LocateAndSelect(ctx context.Context, field, option string) (bool, error)
	ReadField(ctx context.Context, field string) (string, bool, error)
	Click(ctx context.Context, target string) (bool, error)
	CurrentURL(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Downloader is implemented by sessions that can capture a file download
// started by clicking target.
type Downloader interface {
	Download(ctx context.Context, target string) (name string, data []byte, err error)
}

// Checklist is implemented by sessions that can enumerate and tick the
// checkboxes of the current view.
type Checklist interface {
	Checkboxes(ctx context.Context) ([]string, error)
	Check(ctx context.Context, index int) (bool, error)
}

// Launcher opens logged-in sessions.
type Launcher interface {
	Open(ctx context.Context) (Session, error)
}

// Compile-time interface checks.
var (
	_ Session    = (*RodSession)(nil)
	_ Downloader = (*RodSession)(nil)
	_ Checklist  = (*RodSession)(nil)
	_ Launcher   = (*RodLauncher)(nil)
	_ Session    = (*FakeSession)(nil)
	_ Downloader = (*FakeSession)(nil)
	_ Checklist  = (*FakeSession)(nil)
	_ Launcher   = (*FakeLauncher)(nil)
)
