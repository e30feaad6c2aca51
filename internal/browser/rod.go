package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// RodConfig configures Chrome and the portal login.
type RodConfig struct {
	// ControlURL connects to an already running Chrome. Empty launches one.
	ControlURL string
	// Bin is the Chrome binary used when launching. Empty lets rod pick one.
	Bin      string
	Headless bool
	// NavigationTimeout bounds page loads.
	NavigationTimeout time.Duration
	// ElementTimeout bounds the wait for a field or click target to appear.
	ElementTimeout time.Duration
	// DownloadDir receives browser downloads before they are read back.
	DownloadDir string
	Username    string
	Password    string
	Portal      PortalConfig
}

func (c RodConfig) withDefaults() RodConfig {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.ElementTimeout <= 0 {
		c.ElementTimeout = 10 * time.Second
	}
	if c.DownloadDir == "" {
		c.DownloadDir = filepath.Join(os.TempDir(), "casefill-downloads")
	}
	return c
}

// RodLauncher opens Chrome sessions and logs into the portal.
type RodLauncher struct {
	cfg RodConfig
	log *zap.Logger
}

// NewRodLauncher creates a RodLauncher.
func NewRodLauncher(cfg RodConfig, log *zap.Logger) *RodLauncher {
	if log == nil {
		log = zap.NewNop()
	}
	return &RodLauncher{cfg: cfg.withDefaults(), log: log}
}

// Open starts or connects to Chrome, opens a tab and logs in when
// credentials are configured.
func (l *RodLauncher) Open(ctx context.Context) (Session, error) {
	controlURL := l.cfg.ControlURL
	if controlURL == "" {
		launch := launcher.New().Headless(l.cfg.Headless)
		if l.cfg.Bin != "" {
			launch = launch.Bin(l.cfg.Bin)
		}
		u, err := launch.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	if err := os.MkdirAll(l.cfg.DownloadDir, 0o755); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	s := &RodSession{browser: b, page: page, cfg: l.cfg, log: l.log}
	if l.cfg.Username != "" {
		if err := Login(ctx, s, l.cfg.Portal, l.cfg.Username, l.cfg.Password); err != nil {
			_ = s.Close()
			return nil, err
		}
		l.log.Info("portal login succeeded", zap.String("user", l.cfg.Username))
	}
	return s, nil
}

// RodSession is a Session backed by one Chrome tab.
type RodSession struct {
	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
	cfg     RodConfig
	log     *zap.Logger
	closed  bool
}

func (s *RodSession) live() (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.page, nil
}

// Navigate loads url and waits for the page load event.
func (s *RodSession) Navigate(ctx context.Context, url string) error {
	page, err := s.live()
	if err != nil {
		return err
	}
	p := page.Context(ctx).Timeout(s.cfg.NavigationTimeout)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

// LocateAndFill types value into the input labelled field.
func (s *RodSession) LocateAndFill(ctx context.Context, field, value string) (bool, error) {
	return s.poll(ctx, func(page *rod.Page) (bool, error) {
		var found bool
		err := s.eval(ctx, page, fillJS, &found, field, value)
		return found, err
	})
}

// LocateAndSelect picks option in the dropdown labelled field. Native
// selects and ARIA comboboxes are supported.
func (s *RodSession) LocateAndSelect(ctx context.Context, field, option string) (bool, error) {
	var res struct {
		Found bool   `json:"found"`
		Error string `json:"error"`
	}
	found, err := s.poll(ctx, func(page *rod.Page) (bool, error) {
		err := s.eval(ctx, page, selectJS, &res, field, option)
		return res.Found, err
	})
	if err != nil || !found {
		return found, err
	}
	if res.Error != "" {
		return true, fmt.Errorf("select %q: %s", field, res.Error)
	}
	return true, nil
}

// ReadField returns the current value of the control labelled field.
// Placeholder dropdown values read as empty.
func (s *RodSession) ReadField(ctx context.Context, field string) (string, bool, error) {
	var res struct {
		Found bool   `json:"found"`
		Value string `json:"value"`
	}
	found, err := s.poll(ctx, func(page *rod.Page) (bool, error) {
		err := s.eval(ctx, page, readJS, &res, field)
		return res.Found, err
	})
	return res.Value, found, err
}

// Click activates target. Targets prefixed with "css=" or "xpath=" are
// selectors; anything else matches the visible text or label of a button,
// link or tab.
func (s *RodSession) Click(ctx context.Context, target string) (bool, error) {
	switch {
	case strings.HasPrefix(target, "css="), strings.HasPrefix(target, "xpath="):
		page, err := s.live()
		if err != nil {
			return false, err
		}
		p := page.Context(ctx).Timeout(s.cfg.ElementTimeout)
		var el *rod.Element
		if sel, ok := strings.CutPrefix(target, "css="); ok {
			el, err = p.Element(sel)
		} else {
			el, err = p.ElementX(strings.TrimPrefix(target, "xpath="))
		}
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				return false, nil
			}
			return false, fmt.Errorf("locate %s: %w", target, err)
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return true, fmt.Errorf("click %s: %w", target, err)
		}
		return true, nil
	default:
		return s.poll(ctx, func(page *rod.Page) (bool, error) {
			var clicked bool
			err := s.eval(ctx, page, clickJS, &clicked, target)
			return clicked, err
		})
	}
}

// CurrentURL returns the URL of the tab.
func (s *RodSession) CurrentURL(ctx context.Context) (string, error) {
	page, err := s.live()
	if err != nil {
		return "", err
	}
	info, err := page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

// Screenshot captures the full page as PNG.
func (s *RodSession) Screenshot(ctx context.Context) ([]byte, error) {
	page, err := s.live()
	if err != nil {
		return nil, err
	}
	return page.Context(ctx).Screenshot(true, nil)
}

// Download clicks target and returns the file the browser saved.
func (s *RodSession) Download(ctx context.Context, target string) (string, []byte, error) {
	if _, err := s.live(); err != nil {
		return "", nil, err
	}
	dctx, cancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout*4)
	defer cancel()

	wait := s.browser.Context(dctx).WaitDownload(s.cfg.DownloadDir)
	clicked, err := s.Click(ctx, target)
	if err != nil {
		return "", nil, err
	}
	if !clicked {
		return "", nil, fmt.Errorf("download target %q not found", target)
	}
	info := wait()
	if info == nil || dctx.Err() != nil {
		return "", nil, fmt.Errorf("download did not complete: %w", dctx.Err())
	}

	path := filepath.Join(s.cfg.DownloadDir, info.GUID)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read download: %w", err)
	}
	_ = os.Remove(path)
	name := info.SuggestedFilename
	if name == "" {
		name = info.GUID + ".zip"
	}
	return name, data, nil
}

// Checkboxes lists the checkbox titles of the current view in page order.
func (s *RodSession) Checkboxes(ctx context.Context) ([]string, error) {
	page, err := s.live()
	if err != nil {
		return nil, err
	}
	var titles []string
	if err := s.eval(ctx, page, checkboxesJS, &titles); err != nil {
		return nil, err
	}
	return titles, nil
}

// Check ticks the checkbox at index unless it is already ticked.
func (s *RodSession) Check(ctx context.Context, index int) (bool, error) {
	page, err := s.live()
	if err != nil {
		return false, err
	}
	var ok bool
	if err := s.eval(ctx, page, checkJS, &ok, index); err != nil {
		return false, err
	}
	return ok, nil
}

// Close closes the browser. Further calls return ErrSessionClosed.
func (s *RodSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.browser.Close(); err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// poll retries fn until it reports found or ElementTimeout elapses.
func (s *RodSession) poll(ctx context.Context, fn func(*rod.Page) (bool, error)) (bool, error) {
	deadline := time.Now().Add(s.cfg.ElementTimeout)
	for {
		page, err := s.live()
		if err != nil {
			return false, err
		}
		found, err := fn(page)
		if err != nil || found {
			return found, err
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (s *RodSession) eval(ctx context.Context, page *rod.Page, js string, out interface{}, args ...interface{}) error {
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	if res == nil || res.Value.Nil() {
		return nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// ---------------------------------------------------------------------------
// Page scripts
// ---------------------------------------------------------------------------

const jsHelpers = `
const norm = s => (s || '').replace(/\s+/g, ' ').trim().toLowerCase();
const visible = el => !!(el && (el.offsetWidth || el.offsetHeight || el.getClientRects().length));
const findControl = (label, kinds) => {
	const want = norm(label);
	const sel = kinds.join(',');
	for (const el of document.querySelectorAll(sel)) {
		if (norm(el.getAttribute('aria-label')) === want || norm(el.getAttribute('name')) === want) return el;
	}
	for (const lb of document.querySelectorAll('label, legend, span.slds-form-element__label')) {
		if (norm(lb.textContent).replace(/^\*\s*/, '') !== want) continue;
		if (lb.htmlFor) {
			const el = document.getElementById(lb.htmlFor);
			if (el && el.matches(sel)) return el;
		}
		const inner = lb.querySelector(sel);
		if (inner) return inner;
		let box = lb.parentElement;
		for (let i = 0; box && i < 3; i++, box = box.parentElement) {
			const el = box.querySelector(sel);
			if (el) return el;
		}
	}
	return null;
};
`

const fillJS = `(label, value) => {` + jsHelpers + `
	const el = findControl(label, ['input:not([type=hidden]):not([type=checkbox])', 'textarea']);
	if (!el) return false;
	el.focus();
	const proto = el.tagName === 'TEXTAREA' ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
	Object.getOwnPropertyDescriptor(proto, 'value').set.call(el, value);
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	el.blur();
	return true;
}`

const selectJS = `async (label, option) => {` + jsHelpers + `
	const el = findControl(label, ['select', '[role=combobox]']);
	if (!el) return { found: false };
	const want = norm(option);
	if (el.tagName === 'SELECT') {
		const opt = Array.from(el.options).find(o => norm(o.textContent) === want || norm(o.value) === want);
		if (!opt) return { found: true, error: 'option not available: ' + option };
		el.value = opt.value;
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return { found: true };
	}
	el.click();
	for (let i = 0; i < 30; i++) {
		const opt = Array.from(document.querySelectorAll('[role=option]'))
			.find(o => norm(o.textContent) === want || norm(o.getAttribute('data-value')) === want);
		if (opt) {
			opt.click();
			return { found: true };
		}
		await new Promise(r => setTimeout(r, 100));
	}
	return { found: true, error: 'option not available: ' + option };
}`

const readJS = `(label) => {` + jsHelpers + `
	const el = findControl(label, ['input:not([type=hidden])', 'textarea', 'select', '[role=combobox]']);
	if (!el) return { found: false };
	let v;
	if (el.tagName === 'SELECT') v = el.selectedIndex >= 0 ? el.options[el.selectedIndex].textContent : '';
	else if (el.tagName === 'INPUT' || el.tagName === 'TEXTAREA') v = el.value;
	else v = el.getAttribute('data-value') || el.textContent;
	v = (v || '').trim();
	if (v === '--None--' || v === 'Select an Option') v = '';
	return { found: true, value: v };
}`

const clickJS = `(target) => {` + jsHelpers + `
	const want = norm(target);
	const cands = document.querySelectorAll('button, a, [role=tab], [role=button], input[type=submit], input[type=button]');
	for (const el of cands) {
		if (!visible(el)) continue;
		const names = [el.textContent, el.value, el.title, el.getAttribute('aria-label'), el.getAttribute('data-label')];
		if (names.some(n => norm(n) === want)) {
			el.click();
			return true;
		}
	}
	return false;
}`

const checkboxesJS = `() => {
	const boxes = document.querySelectorAll('input[type=checkbox]');
	return Array.from(boxes).map(cb => {
		const box = cb.closest('tr, li, [role=row], .slds-file, div') || cb.parentElement;
		const text = (box ? box.innerText : '') || cb.getAttribute('aria-label') || '';
		return text.split('\n').map(s => s.trim()).filter(Boolean)[0] || '';
	});
}`

const checkJS = `(index) => {
	const cb = document.querySelectorAll('input[type=checkbox]')[index];
	if (!cb) return false;
	if (!cb.checked) cb.click();
	return true;
}`
