package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yangwenmai/casefill/internal/browser"
	"github.com/yangwenmai/casefill/internal/extract"
	"github.com/yangwenmai/casefill/internal/gate"
	"github.com/yangwenmai/casefill/internal/model"
	"github.com/yangwenmai/casefill/internal/reconcile"
	"github.com/yangwenmai/casefill/internal/store"
)

// Stage names recorded in modules_completed.
const (
	StageDrafterField   = "drafter_field"
	StageManualInput    = "manual_input"
	StageMobileApp      = "mobile_app"
	StageDocumentFields = "document_fields"
)

func (m *Machine) initialSteps() []Step {
	return []Step{
		step{name: "open_session", fatal: true, fn: m.openSession},
		step{name: "search_case", fatal: true, fn: m.searchCase},
		step{name: "capture_case_url", fn: captureURL},
		step{name: "read_geolocation", fn: m.readGeolocation},
		step{name: "download_bundle", fn: m.downloadBundle},
		step{name: "unpack_bundle", fn: unpackBundle},
		step{name: "analyse_bundle", fatal: true, fn: m.analyseBundle},
		step{name: "reconcile", fatal: true, fn: m.reconcileRecords},
		step{name: "open_drafter", fatal: true, fn: m.openDrafter},
		step{name: "fill_fields", fatal: true, fn: m.fillFields},
		step{name: "save_drafter", fn: m.saveDrafter},
		step{name: "write_completion_status", fn: m.writeCompletionStatus},
		step{name: "capture_form_url", fn: captureURL},
	}
}

func (m *Machine) continueSteps() []Step {
	return []Step{
		step{name: "open_session", fatal: true, fn: m.openSession},
		step{name: "restore_page", fatal: true, fn: m.restorePage},
		step{name: "open_drafter", fatal: true, fn: m.openDrafter},
		step{name: "replay_inputs", fatal: true, fn: m.replayInputs},
		step{name: "save_drafter", fn: m.saveDrafter},
		step{name: "manual_input_report", fn: m.writeManualReport},
		step{name: "mobile_app", fn: m.mobileApp},
		step{name: "document_fields", fn: m.documentFields},
		step{name: "final_status", fn: m.writeFinalStatus},
	}
}

// sessionLost reports errors after which no further browser work is possible.
func sessionLost(ctx context.Context, err error) bool {
	return errors.Is(err, browser.ErrSessionClosed) || ctx.Err() != nil
}

// ---------------------------------------------------------------------------
// Shared steps
// ---------------------------------------------------------------------------

func (m *Machine) openSession(ctx context.Context, st *StepState) (string, error) {
	s, err := m.launcher.Open(ctx)
	if err != nil {
		return "", fmt.Errorf("open browser: %w", err)
	}
	st.Session = s
	return "", nil
}

func captureURL(ctx context.Context, st *StepState) (string, error) {
	u, err := st.Session.CurrentURL(ctx)
	if err != nil {
		return "", fmt.Errorf("read current url: %w", err)
	}
	st.URL = u
	return u, nil
}

func (m *Machine) openDrafter(ctx context.Context, st *StepState) (string, error) {
	return "", m.portal.OpenDrafter(ctx, st.Session)
}

func (m *Machine) saveDrafter(ctx context.Context, st *StepState) (string, error) {
	if err := m.portal.SaveDrafter(ctx, st.Session); err != nil {
		m.screenshot(ctx, st, "drafter_save_failed")
		return "", err
	}
	m.screenshot(ctx, st, "drafter_saved")
	st.Stages[StageDrafterField] = true
	return "", nil
}

// fill sets one record field on the page, using a select for dropdowns.
func fill(ctx context.Context, s browser.Session, label, value string, dropdown bool) (bool, error) {
	if dropdown {
		return s.LocateAndSelect(ctx, label, value)
	}
	return s.LocateAndFill(ctx, label, value)
}

// ---------------------------------------------------------------------------
// Initial phase
// ---------------------------------------------------------------------------

func (m *Machine) searchCase(ctx context.Context, st *StepState) (string, error) {
	return "", m.portal.SearchCase(ctx, st.Session, st.WC.CaseID)
}

type geolocationFile struct {
	CaseID    string `json:"case_id"`
	Namespace string `json:"namespace"`
	browser.Geolocation
}

func (m *Machine) readGeolocation(ctx context.Context, st *StepState) (string, error) {
	g, err := m.portal.ReadGeolocation(ctx, st.Session)
	if err != nil {
		return "", err
	}
	if _, err := st.Case.UploadJSON(ctx, model.GeolocationFile, geolocationFile{
		CaseID: st.WC.CaseID, Namespace: st.WC.Namespace, Geolocation: g,
	}); err != nil {
		return "", err
	}
	return g.Latitude + "," + g.Longitude, nil
}

func (m *Machine) downloadBundle(ctx context.Context, st *StepState) (string, error) {
	b, err := m.portal.DownloadBundle(ctx, st.Session)
	if err != nil {
		return "", err
	}
	name := b.Name
	if name == "" {
		name = st.Case.TimestampedName("bundle", ".zip")
	}
	if _, err := st.Case.Upload(ctx, model.CategoryDownloads, name, b.Data, model.ContentTypeZip); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s (%d bytes)", name, len(b.Data)), nil
}

// unpackBundle opens the newest zip in downloads and stores every file it
// holds under extracted_files.
func unpackBundle(ctx context.Context, st *StepState) (string, error) {
	info, found, err := st.Case.Latest(ctx, model.CategoryDownloads, ".zip")
	if err != nil {
		return "", err
	}
	if found == store.Absent {
		return "", errors.New("no bundle downloaded")
	}
	data, found, err := st.Case.Download(ctx, string(model.CategoryDownloads)+"/"+info.Filename)
	if err != nil {
		return "", err
	}
	if found == store.Absent {
		return "", fmt.Errorf("bundle %s disappeared", info.Filename)
	}

	files, err := extract.OpenBundle(data)
	if err != nil {
		return "", err
	}
	st.Files = files

	var failed int
	for _, f := range files {
		if _, err := st.Case.Upload(ctx, model.CategoryExtractedFiles, f.Name, f.Data, f.MIMEType); err != nil {
			st.Log.Warn("extracted file not stored", zap.String("file", f.Name), zap.Error(err))
			failed++
		}
	}
	if failed > 0 {
		return "", fmt.Errorf("%d of %d files not stored", failed, len(files))
	}
	return fmt.Sprintf("%d files from %s", len(files), info.Filename), nil
}

func (m *Machine) analyseBundle(ctx context.Context, st *StepState) (string, error) {
	if len(st.Files) == 0 {
		return "", warnf("no bundle files to analyse")
	}
	a := extract.NewAdapter(m.docs, m.images, m.cfg.Extract, st.Logger("extraction", m.zl))
	res, err := a.Run(ctx, st.Case, st.Files)
	if err != nil {
		return "", err
	}
	st.Extraction = res
	detail := fmt.Sprintf("%d document calls, %d image calls", res.DocumentCalls, res.ImageCalls)
	if len(res.Failed) > 0 {
		return "", warnf("%s, fallback used for %s", detail, strings.Join(res.Failed, ", "))
	}
	return detail, nil
}

func (m *Machine) reconcileRecords(ctx context.Context, st *StepState) (string, error) {
	res, err := reconcile.NewEngine(st.Logger("reconcile", m.zl)).Reconcile(ctx, st.Case)
	if err != nil {
		return "", err
	}
	st.Reconciled = res
	return fmt.Sprintf("%d mapped, %d blank", len(res.Mapped), len(res.BlankKeys)), nil
}

func (m *Machine) fillFields(ctx context.Context, st *StepState) (string, error) {
	rec := st.Reconciled.Record

	start := model.NewStatusReport(model.StatusStarted, st.WC.CaseID, st.WC.Namespace)
	start.Phase = model.PhaseInitial
	start.Message = fmt.Sprintf("filling %d of %d fields", len(rec.Keys())-len(st.Reconciled.BlankKeys), len(rec.Keys()))
	if err := m.writeStatus(ctx, st, model.StartStatusFile, start); err != nil {
		st.Log.Warn("start status not persisted", zap.Error(err))
	}

	var filled, missed []string
	for _, k := range rec.Keys() {
		if rec.IsBlank(k) {
			continue
		}
		ok, err := fill(ctx, st.Session, reconcile.Label(k), rec.Get(k), reconcile.IsDropdown(k))
		if err != nil && sessionLost(ctx, err) {
			return "", err
		}
		if err != nil || !ok {
			st.Log.Warn("field not filled", zap.String("key", k), zap.Bool("found", ok), zap.Error(err))
			missed = append(missed, k)
			continue
		}
		filled = append(filled, k)
	}
	if len(missed) > 0 {
		m.screenshot(ctx, st, "fill_fields")
		return "", warnf("%d of %d fields not filled: %s", len(missed), len(filled)+len(missed), strings.Join(missed, ", "))
	}
	return fmt.Sprintf("%d fields filled", len(filled)), nil
}

func (m *Machine) writeCompletionStatus(ctx context.Context, st *StepState) (string, error) {
	done := model.NewStatusReport(model.StatusCompleted, st.WC.CaseID, st.WC.Namespace)
	done.Phase = model.PhaseInitial
	done.Message = fmt.Sprintf("%d fields left blank", len(st.Reconciled.BlankKeys))
	return "", m.writeStatus(ctx, st, model.CompletionStatusFile, done)
}

// ---------------------------------------------------------------------------
// Continuing phase
// ---------------------------------------------------------------------------

// restorePage returns to the saved case page, falling back to a case search
// when there is no saved URL or it cannot be opened.
func (m *Machine) restorePage(ctx context.Context, st *StepState) (string, error) {
	if u := st.WC.LastURL; u != "" {
		err := st.Session.Navigate(ctx, u)
		if err == nil {
			st.URL = u
			return "reopened " + u, nil
		}
		if sessionLost(ctx, err) {
			return "", err
		}
		st.Log.Warn("saved url unreachable, searching case", zap.String("url", u), zap.Error(err))
	}
	if err := m.portal.SearchCase(ctx, st.Session, st.WC.CaseID); err != nil {
		return "", fmt.Errorf("case search fallback: %w", err)
	}
	if u, err := st.Session.CurrentURL(ctx); err == nil {
		st.URL = u
	}
	return "case search fallback", nil
}

// ReplayReport lists the outcome of replaying operator answers.
type ReplayReport struct {
	Filled []string `json:"filled"`
	Failed []string `json:"failed,omitempty"`
}

// replayOrder returns the keys of inputs in descriptor order, then any
// remaining keys sorted.
func replayOrder(descs []model.BlankFieldDescriptor, inputs map[string]string) []string {
	seen := make(map[string]bool, len(inputs))
	var keys []string
	for _, d := range descs {
		if _, ok := inputs[d.Key]; ok && !seen[d.Key] {
			keys = append(keys, d.Key)
			seen[d.Key] = true
		}
	}
	var rest []string
	for k := range inputs {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func (m *Machine) replayInputs(ctx context.Context, st *StepState) (string, error) {
	inputs := st.WC.ManualInputs
	st.Replay = ReplayReport{Filled: []string{}}
	if len(inputs) == 0 {
		return "no manual inputs", nil
	}
	descs := make(map[string]model.BlankFieldDescriptor, len(st.WC.Descriptors))
	for _, d := range st.WC.Descriptors {
		descs[d.Key] = d
	}

	for _, k := range replayOrder(st.WC.Descriptors, inputs) {
		label, dropdown := reconcile.Label(k), reconcile.IsDropdown(k)
		if d, ok := descs[k]; ok {
			label, dropdown = d.Label, d.Type == model.FieldTypeDropdown
		}
		ok, err := fill(ctx, st.Session, label, inputs[k], dropdown)
		if err != nil && sessionLost(ctx, err) {
			return "", err
		}
		if err != nil || !ok {
			st.Log.Warn("manual input not replayed", zap.String("key", k), zap.Bool("found", ok), zap.Error(err))
			st.Replay.Failed = append(st.Replay.Failed, k)
			continue
		}
		st.Replay.Filled = append(st.Replay.Filled, k)
	}
	if len(st.Replay.Failed) > 0 {
		m.screenshot(ctx, st, "replay_inputs")
		return "", warnf("%d of %d inputs not replayed: %s", len(st.Replay.Failed), len(inputs), strings.Join(st.Replay.Failed, ", "))
	}
	return fmt.Sprintf("%d inputs replayed", len(st.Replay.Filled)), nil
}

type manualInputReport struct {
	CaseID       string            `json:"case_id"`
	Namespace    string            `json:"namespace"`
	GeneratedAt  string            `json:"generated_at"`
	ManualInputs map[string]string `json:"manual_inputs"`
	Replay       ReplayReport      `json:"replay"`
	Summary      gate.Summary      `json:"blank_fields"`
}

func (m *Machine) writeManualReport(ctx context.Context, st *StepState) (string, error) {
	st.Stages[StageManualInput] = len(st.Replay.Failed) == 0
	inputs := st.WC.ManualInputs
	if inputs == nil {
		inputs = map[string]string{}
	}
	_, err := st.Case.UploadJSON(ctx, model.ManualInputReportFile(st.WC.Namespace), manualInputReport{
		CaseID:       st.WC.CaseID,
		Namespace:    st.WC.Namespace,
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
		ManualInputs: inputs,
		Replay:       st.Replay,
		Summary:      gate.Summarize(gate.Present(st.WC.Descriptors)),
	})
	return "", err
}

// stageValues is the target record overlaid with the operator's answers.
func stageValues(ctx context.Context, st *StepState) map[string]string {
	values := map[string]string{}
	rec, found, err := reconcile.LoadRecord(ctx, st.Case)
	switch {
	case err != nil:
		st.Log.Warn("target record unreadable", zap.Error(err))
	case found == store.Found:
		values = rec.Map()
	}
	for k, v := range st.WC.ManualInputs {
		values[k] = v
	}
	return values
}

func (m *Machine) mobileApp(ctx context.Context, st *StepState) (string, error) {
	rep, err := m.portal.MobileApp(ctx, st.Session, stageValues(ctx, st))
	st.Reports[StageMobileApp] = rep
	st.Stages[StageMobileApp] = err == nil && rep.Saved
	if err != nil {
		m.screenshot(ctx, st, StageMobileApp)
		return "", err
	}
	detail := fmt.Sprintf("%d of %d blank fields filled", len(rep.Filled), len(rep.Blank))
	if len(rep.Failed) > 0 {
		return "", warnf("%s, not found: %s", detail, strings.Join(rep.Failed, ", "))
	}
	return detail, nil
}

func (m *Machine) documentFields(ctx context.Context, st *StepState) (string, error) {
	rep, err := m.portal.DocumentFields(ctx, st.Session)
	st.Reports[StageDocumentFields] = rep
	st.Stages[StageDocumentFields] = err == nil && rep.Saved
	if err != nil {
		m.screenshot(ctx, st, StageDocumentFields)
		return "", err
	}
	return fmt.Sprintf("%d selected, %d skipped", len(rep.Selected), len(rep.Skipped)), nil
}

type finalStatus struct {
	model.StatusReport
	StageReports map[string]browser.StageReport `json:"stage_reports,omitempty"`
}

func (m *Machine) writeFinalStatus(ctx context.Context, st *StepState) (string, error) {
	for _, s := range []string{StageDrafterField, StageManualInput, StageMobileApp, StageDocumentFields} {
		if _, ok := st.Stages[s]; !ok {
			st.Stages[s] = false
		}
	}
	report := model.NewStatusReport(model.StatusCompleted, st.WC.CaseID, st.WC.Namespace)
	report.Phase = model.PhaseContinuing
	report.ModulesCompleted = st.Stages
	report.Settings = map[string]string{
		"require_human_checkpoint": strconv.FormatBool(m.cfg.RequireHumanCheckpoint),
		"manual_inputs":            strconv.Itoa(len(st.WC.ManualInputs)),
		"resumed_from":             resumedFrom(st),
	}
	return "", m.writeStatus(ctx, st, model.FinalStatusFile, finalStatus{StatusReport: report, StageReports: st.Reports})
}

func resumedFrom(st *StepState) string {
	if st.WC.LastURL != "" && st.URL == st.WC.LastURL {
		return "saved_url"
	}
	return "case_search"
}
