package browser

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed portal.yaml
var defaultPortalYAML []byte

// PortalConfig holds the navigation targets and field labels of the portal.
type PortalConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Login          LoginConfig          `yaml:"login"`
	Search         SearchConfig         `yaml:"search"`
	Geolocation    GeolocationConfig    `yaml:"geolocation"`
	Download       DownloadConfig       `yaml:"download"`
	Drafter        TabConfig            `yaml:"drafter"`
	MobileApp      StageConfig          `yaml:"mobile_app"`
	DocumentFields DocumentFieldsConfig `yaml:"document_fields"`
}

// LoginConfig describes the login page.
type LoginConfig struct {
	Path          string `yaml:"path"`
	UsernameField string `yaml:"username_field"`
	PasswordField string `yaml:"password_field"`
	Submit        string `yaml:"submit"`
}

// SearchConfig describes how a case is found.
type SearchConfig struct {
	Path   string `yaml:"path"`
	Field  string `yaml:"field"`
	Submit string `yaml:"submit"`
	// Result is clicked after the search; "{case}" is replaced by the case id.
	Result string `yaml:"result"`
}

// GeolocationConfig lists the labels of the location fields of a case.
type GeolocationConfig struct {
	Tab       string `yaml:"tab"`
	Latitude  string `yaml:"latitude"`
	Longitude string `yaml:"longitude"`
	Address   string `yaml:"address"`
}

// DownloadConfig describes the document bundle download.
type DownloadConfig struct {
	Tab    string `yaml:"tab"`
	Target string `yaml:"target"`
}

// TabConfig is a tab with a save action.
type TabConfig struct {
	Tab  string `yaml:"tab"`
	Save string `yaml:"save"`
}

// StageField maps an on-page field to a target record key.
type StageField struct {
	Label  string `yaml:"label"`
	Type   string `yaml:"type"`
	Source string `yaml:"source"`
}

// StageConfig describes a tab whose blank fields are filled from the record.
type StageConfig struct {
	Tab    string       `yaml:"tab"`
	Save   string       `yaml:"save"`
	Fields []StageField `yaml:"fields"`
}

// DocumentFieldsConfig describes the photo selection tab. Limits caps the
// number of photos ticked per title.
type DocumentFieldsConfig struct {
	Tab    string         `yaml:"tab"`
	Save   string         `yaml:"save"`
	Limits map[string]int `yaml:"limits"`
}

// DefaultPortalConfig returns the built-in portal description.
func DefaultPortalConfig() PortalConfig {
	var cfg PortalConfig
	if err := yaml.Unmarshal(defaultPortalYAML, &cfg); err != nil {
		panic(fmt.Sprintf("embedded portal config: %v", err))
	}
	return cfg
}

// LoadPortalConfig reads a YAML portal description. An empty path returns
// the built-in one. Missing sections keep their built-in values.
func LoadPortalConfig(path string) (PortalConfig, error) {
	cfg := DefaultPortalConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read portal config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse portal config %s: %w", path, err)
	}
	return cfg, nil
}

func (c PortalConfig) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// Geolocation is the location recorded on a case.
type Geolocation struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Address   string `json:"address,omitempty"`
	ReadAt    string `json:"read_at"`
}

// Bundle is a downloaded document archive.
type Bundle struct {
	Name string
	Data []byte
}

// StageReport summarises a fill stage.
type StageReport struct {
	Stage    string   `json:"stage"`
	Fields   int      `json:"fields"`
	Blank    []string `json:"blank,omitempty"`
	Filled   []string `json:"filled,omitempty"`
	Failed   []string `json:"failed,omitempty"`
	Selected []string `json:"selected,omitempty"`
	Skipped  []string `json:"skipped,omitempty"`
	Saved    bool     `json:"saved"`
}

// Portal is the case-level navigation the workflow needs.
type Portal interface {
	SearchCase(ctx context.Context, s Session, caseID string) error
	ReadGeolocation(ctx context.Context, s Session) (Geolocation, error)
	DownloadBundle(ctx context.Context, s Session) (Bundle, error)
	OpenDrafter(ctx context.Context, s Session) error
	SaveDrafter(ctx context.Context, s Session) error
	MobileApp(ctx context.Context, s Session, values map[string]string) (StageReport, error)
	DocumentFields(ctx context.Context, s Session) (StageReport, error)
}

var _ Portal = (*ScriptedPortal)(nil)

// ScriptedPortal implements Portal on any Session using a PortalConfig.
type ScriptedPortal struct {
	cfg PortalConfig
}

// NewScriptedPortal creates a ScriptedPortal.
func NewScriptedPortal(cfg PortalConfig) *ScriptedPortal {
	return &ScriptedPortal{cfg: cfg}
}

// Config returns the portal description.
func (p *ScriptedPortal) Config() PortalConfig { return p.cfg }

// Login signs into the portal with the given credentials.
func Login(ctx context.Context, s Session, cfg PortalConfig, user, password string) error {
	if err := s.Navigate(ctx, cfg.url(cfg.Login.Path)); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	if err := mustFill(ctx, s, cfg.Login.UsernameField, user); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := mustFill(ctx, s, cfg.Login.PasswordField, password); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := mustClick(ctx, s, cfg.Login.Submit); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return nil
}

// SearchCase opens the case page of caseID.
func (p *ScriptedPortal) SearchCase(ctx context.Context, s Session, caseID string) error {
	c := p.cfg.Search
	if err := s.Navigate(ctx, p.cfg.url(c.Path)); err != nil {
		return fmt.Errorf("open case search: %w", err)
	}
	if err := mustFill(ctx, s, c.Field, caseID); err != nil {
		return fmt.Errorf("case search: %w", err)
	}
	if err := mustClick(ctx, s, c.Submit); err != nil {
		return fmt.Errorf("case search: %w", err)
	}
	if c.Result != "" {
		if err := mustClick(ctx, s, strings.ReplaceAll(c.Result, "{case}", caseID)); err != nil {
			return fmt.Errorf("open case %s: %w", caseID, err)
		}
	}
	return nil
}

// ReadGeolocation reads the location fields of the open case.
func (p *ScriptedPortal) ReadGeolocation(ctx context.Context, s Session) (Geolocation, error) {
	c := p.cfg.Geolocation
	if c.Tab != "" {
		if err := mustClick(ctx, s, c.Tab); err != nil {
			return Geolocation{}, fmt.Errorf("geolocation: %w", err)
		}
	}
	g := Geolocation{ReadAt: time.Now().UTC().Format(time.RFC3339)}
	var err error
	if g.Latitude, err = mustRead(ctx, s, c.Latitude); err != nil {
		return Geolocation{}, fmt.Errorf("geolocation: %w", err)
	}
	if g.Longitude, err = mustRead(ctx, s, c.Longitude); err != nil {
		return Geolocation{}, fmt.Errorf("geolocation: %w", err)
	}
	if c.Address != "" {
		if v, ok, err := s.ReadField(ctx, c.Address); err == nil && ok {
			g.Address = v
		}
	}
	return g, nil
}

// DownloadBundle downloads the document archive of the open case.
func (p *ScriptedPortal) DownloadBundle(ctx context.Context, s Session) (Bundle, error) {
	d, ok := s.(Downloader)
	if !ok {
		return Bundle{}, errors.New("session cannot capture downloads")
	}
	if p.cfg.Download.Tab != "" {
		if err := mustClick(ctx, s, p.cfg.Download.Tab); err != nil {
			return Bundle{}, fmt.Errorf("download: %w", err)
		}
	}
	name, data, err := d.Download(ctx, p.cfg.Download.Target)
	if err != nil {
		return Bundle{}, fmt.Errorf("download bundle: %w", err)
	}
	if len(data) == 0 {
		return Bundle{}, errors.New("download bundle: empty file")
	}
	return Bundle{Name: name, Data: data}, nil
}

// OpenDrafter switches to the drafter tab.
func (p *ScriptedPortal) OpenDrafter(ctx context.Context, s Session) error {
	if err := mustClick(ctx, s, p.cfg.Drafter.Tab); err != nil {
		return fmt.Errorf("open drafter: %w", err)
	}
	return nil
}

// SaveDrafter saves the drafter tab.
func (p *ScriptedPortal) SaveDrafter(ctx context.Context, s Session) error {
	if err := mustClick(ctx, s, p.cfg.Drafter.Save); err != nil {
		return fmt.Errorf("save drafter: %w", err)
	}
	return nil
}

// MobileApp fills the blank fields of the mobile app tab from values and
// saves. Fields that already hold a value are left alone.
func (p *ScriptedPortal) MobileApp(ctx context.Context, s Session, values map[string]string) (StageReport, error) {
	c := p.cfg.MobileApp
	rep := StageReport{Stage: "mobile_app", Fields: len(c.Fields)}
	if err := mustClick(ctx, s, c.Tab); err != nil {
		return rep, fmt.Errorf("mobile app: %w", err)
	}

	for _, f := range c.Fields {
		cur, found, err := s.ReadField(ctx, f.Label)
		if err != nil {
			return rep, fmt.Errorf("mobile app: read %q: %w", f.Label, err)
		}
		if !found {
			rep.Failed = append(rep.Failed, f.Label)
			continue
		}
		if strings.TrimSpace(cur) != "" {
			continue
		}
		rep.Blank = append(rep.Blank, f.Label)

		v := strings.TrimSpace(values[f.Source])
		if v == "" {
			continue
		}
		var ok bool
		if f.Type == "dropdown" {
			ok, err = s.LocateAndSelect(ctx, f.Label, v)
		} else {
			ok, err = s.LocateAndFill(ctx, f.Label, v)
		}
		if err != nil || !ok {
			rep.Failed = append(rep.Failed, f.Label)
			continue
		}
		rep.Filled = append(rep.Filled, f.Label)
	}

	if err := mustClick(ctx, s, c.Save); err != nil {
		return rep, fmt.Errorf("mobile app: %w", err)
	}
	rep.Saved = true
	return rep, nil
}

// DocumentFields ticks the case photos by title, respecting the per-title
// limits, and saves.
func (p *ScriptedPortal) DocumentFields(ctx context.Context, s Session) (StageReport, error) {
	c := p.cfg.DocumentFields
	rep := StageReport{Stage: "document_field"}
	cl, ok := s.(Checklist)
	if !ok {
		return rep, errors.New("session cannot list checkboxes")
	}
	if err := mustClick(ctx, s, c.Tab); err != nil {
		return rep, fmt.Errorf("document fields: %w", err)
	}

	titles, err := cl.Checkboxes(ctx)
	if err != nil {
		return rep, fmt.Errorf("document fields: %w", err)
	}
	if len(titles) == 0 {
		return rep, errors.New("document fields: no checkboxes found")
	}
	rep.Fields = len(titles)

	counts := map[string]int{}
	for i, raw := range titles {
		title, ok := PhotoTitle(raw)
		if !ok {
			rep.Skipped = append(rep.Skipped, raw)
			continue
		}
		if counts[title] >= c.Limits[title] {
			rep.Skipped = append(rep.Skipped, raw)
			continue
		}
		ticked, err := cl.Check(ctx, i)
		if err != nil || !ticked {
			rep.Failed = append(rep.Failed, raw)
			continue
		}
		counts[title]++
		rep.Selected = append(rep.Selected, title)
	}

	if err := mustClick(ctx, s, c.Save); err != nil {
		return rep, fmt.Errorf("document fields: %w", err)
	}
	rep.Saved = true
	return rep, nil
}

func mustFill(ctx context.Context, s Session, field, value string) error {
	ok, err := s.LocateAndFill(ctx, field, value)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("field %q not found", field)
	}
	return nil
}

func mustClick(ctx context.Context, s Session, target string) error {
	ok, err := s.Click(ctx, target)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%q not found", target)
	}
	return nil
}

func mustRead(ctx context.Context, s Session, field string) (string, error) {
	v, ok, err := s.ReadField(ctx, field)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("field %q not found", field)
	}
	return v, nil
}
