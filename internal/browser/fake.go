package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeSession is an in-memory Session for development and tests. Labels
// present in Fields can be read and filled; labels in Options are dropdowns.
// Clickables lists the targets Click accepts.
type FakeSession struct {
	mu sync.Mutex

	URL        string
	Fields     map[string]string
	Options    map[string][]string
	Clickables map[string]bool
	// AcceptAnyClick makes every Click succeed.
	AcceptAnyClick bool
	// NavigateErr fails Navigate for the given URLs.
	NavigateErr map[string]error
	// BundleName and BundleData are returned by Download.
	BundleName string
	BundleData []byte
	// Boxes are the checkbox captions; Checked records ticked indexes.
	Boxes   []string
	Checked map[int]bool
	// FailOn makes the named method return an error.
	FailOn map[string]error

	Closed  bool
	Actions []string
}

// NewFakeSession returns an empty FakeSession.
func NewFakeSession() *FakeSession {
	return &FakeSession{
		Fields:      map[string]string{},
		Options:     map[string][]string{},
		Clickables:  map[string]bool{},
		NavigateErr: map[string]error{},
		Checked:     map[int]bool{},
		FailOn:      map[string]error{},
	}
}

func (f *FakeSession) enter(method, detail string) error {
	if f.Closed {
		return ErrSessionClosed
	}
	f.Actions = append(f.Actions, method+" "+detail)
	if err := f.FailOn[method]; err != nil {
		return err
	}
	return nil
}

func (f *FakeSession) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Navigate", url); err != nil {
		return err
	}
	if err := f.NavigateErr[url]; err != nil {
		return err
	}
	f.URL = url
	return nil
}

func (f *FakeSession) LocateAndFill(_ context.Context, field, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Fill", field+"="+value); err != nil {
		return false, err
	}
	if _, ok := f.Fields[field]; !ok {
		return false, nil
	}
	if _, dropdown := f.Options[field]; dropdown {
		return false, nil
	}
	f.Fields[field] = value
	return true, nil
}

func (f *FakeSession) LocateAndSelect(_ context.Context, field, option string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Select", field+"="+option); err != nil {
		return false, err
	}
	opts, ok := f.Options[field]
	if !ok {
		return false, nil
	}
	for _, o := range opts {
		if strings.EqualFold(o, option) {
			f.Fields[field] = o
			return true, nil
		}
	}
	return true, fmt.Errorf("select %q: option not available: %s", field, option)
}

func (f *FakeSession) ReadField(_ context.Context, field string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Read", field); err != nil {
		return "", false, err
	}
	v, ok := f.Fields[field]
	return v, ok, nil
}

func (f *FakeSession) Click(_ context.Context, target string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Click", target); err != nil {
		return false, err
	}
	return f.AcceptAnyClick || f.Clickables[target], nil
}

func (f *FakeSession) CurrentURL(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CurrentURL", ""); err != nil {
		return "", err
	}
	return f.URL, nil
}

func (f *FakeSession) Screenshot(_ context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Screenshot", ""); err != nil {
		return nil, err
	}
	return []byte("\x89PNG fake"), nil
}

func (f *FakeSession) Download(_ context.Context, target string) (string, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Download", target); err != nil {
		return "", nil, err
	}
	if !f.AcceptAnyClick && !f.Clickables[target] {
		return "", nil, fmt.Errorf("download target %q not found", target)
	}
	return f.BundleName, f.BundleData, nil
}

func (f *FakeSession) Checkboxes(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Checkboxes", ""); err != nil {
		return nil, err
	}
	return append([]string(nil), f.Boxes...), nil
}

func (f *FakeSession) Check(_ context.Context, index int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Check", fmt.Sprint(index)); err != nil {
		return false, err
	}
	if index < 0 || index >= len(f.Boxes) {
		return false, nil
	}
	f.Checked[index] = true
	return true, nil
}

func (f *FakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Did reports whether an action with the given prefix was recorded.
func (f *FakeSession) Did(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.Actions {
		if strings.HasPrefix(a, prefix) {
			return true
		}
	}
	return false
}

// FakeLauncher hands out sessions built by New and remembers them.
type FakeLauncher struct {
	mu       sync.Mutex
	New      func() *FakeSession
	OpenErr  error
	Sessions []*FakeSession
}

// Open returns a new FakeSession.
func (l *FakeLauncher) Open(context.Context) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.OpenErr != nil {
		return nil, l.OpenErr
	}
	var s *FakeSession
	if l.New != nil {
		s = l.New()
	} else {
		s = NewFakeSession()
	}
	l.Sessions = append(l.Sessions, s)
	return s, nil
}

// Last returns the most recently opened session.
func (l *FakeLauncher) Last() *FakeSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.Sessions) == 0 {
		return nil
	}
	return l.Sessions[len(l.Sessions)-1]
}

// DemoPortalSession builds a FakeSession that satisfies cfg, with every
// drafter field present and blank.
func DemoPortalSession(cfg PortalConfig, drafterLabels []string, dropdowns map[string][]string, bundle []byte) *FakeSession {
	s := NewFakeSession()
	s.AcceptAnyClick = true
	for _, f := range []string{cfg.Login.UsernameField, cfg.Login.PasswordField, cfg.Search.Field} {
		s.Fields[f] = ""
	}
	s.Fields[cfg.Geolocation.Latitude] = "26.9124"
	s.Fields[cfg.Geolocation.Longitude] = "75.7873"
	s.Fields[cfg.Geolocation.Address] = "Jaipur, Rajasthan"
	for _, l := range drafterLabels {
		s.Fields[l] = ""
	}
	for l, opts := range dropdowns {
		s.Options[l] = opts
	}
	for _, f := range cfg.MobileApp.Fields {
		s.Fields[f.Label] = ""
		if _, ok := s.Options[f.Label]; f.Type == "dropdown" && !ok {
			s.Options[f.Label] = nil
		}
	}
	s.BundleName = "bundle.zip"
	s.BundleData = bundle
	s.Boxes = []string{"Front Elevation", "Kitchen", "Kitchen", "Selfie", "Unlabelled scan"}
	return s
}
