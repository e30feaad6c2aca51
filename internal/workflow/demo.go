package workflow

import (
	"archive/zip"
	"bytes"

	"github.com/yangwenmai/casefill/internal/browser"
	"github.com/yangwenmai/casefill/internal/reconcile"
)

// DemoLauncher returns a launcher of in-memory sessions modelling a portal
// described by cfg. Every drafter field starts blank and bundle is served as
// the case download; a nil bundle serves DemoBundle.
func DemoLauncher(cfg browser.PortalConfig, bundle []byte) *browser.FakeLauncher {
	if bundle == nil {
		bundle = DemoBundle()
	}
	var labels []string
	dropdowns := map[string][]string{}
	for _, k := range reconcile.TemplateKeys() {
		d, ok := reconcile.Lookup(k)
		if !ok {
			labels = append(labels, reconcile.Label(k))
			continue
		}
		labels = append(labels, d.Label)
		if len(d.Options) > 0 {
			dropdowns[d.Label] = d.Options
		}
	}
	for _, f := range cfg.MobileApp.Fields {
		if f.Type != "dropdown" {
			continue
		}
		if d, ok := reconcile.Lookup(f.Source); ok {
			dropdowns[f.Label] = d.Options
		}
	}
	return &browser.FakeLauncher{New: func() *browser.FakeSession {
		s := browser.DemoPortalSession(cfg, labels, dropdowns, bundle)
		s.URL = cfg.BaseURL
		return s
	}}
}

// DemoBundle is a small case archive with one deed, one photograph and one
// site plan.
func DemoBundle() []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"sale_deed.pdf":      "%PDF-1.4 demo deed",
		"front_view.jpg":     "\xff\xd8\xff demo photo",
		"site_plan_copy.jpg": "\xff\xd8\xff demo site plan",
	} {
		w, err := zw.Create(name)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			panic(err)
		}
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
