package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yangwenmai/casefill/internal/model"
	"github.com/yangwenmai/casefill/internal/store"
)

type nopLogger struct{ warnings []string }

func (l *nopLogger) Info(string, ...zap.Field)      {}
func (l *nopLogger) Warn(msg string, f ...zap.Field) { l.warnings = append(l.warnings, msg) }

// memCaseStore keeps json artifacts in memory.
type memCaseStore struct {
	objects map[string][]byte
	putErr  error
}

func newMemCaseStore() *memCaseStore { return &memCaseStore{objects: map[string][]byte{}} }

func (m *memCaseStore) Namespace() string { return "C-1" }
func (m *memCaseStore) CaseID() string    { return "C-1" }
func (m *memCaseStore) DownloadStructured(_ context.Context, relKey string, v interface{}) (store.Lookup, error) {
	b, ok := m.objects[relKey]
	if !ok {
		return store.Absent, nil
	}
	return store.Found, json.Unmarshal(b, v)
}
func (m *memCaseStore) UploadJSON(_ context.Context, filename string, v interface{}) (model.ArtifactInfo, error) {
	if m.putErr != nil {
		return model.ArtifactInfo{}, m.putErr
	}
	b, err := json.Marshal(v)
	if err != nil {
		return model.ArtifactInfo{}, err
	}
	m.objects["json_data/"+filename] = b
	return model.ArtifactInfo{Filename: filename}, nil
}

func TestMerge_BothAbsentYieldsTemplate(t *testing.T) {
	rec, mapped := Merge(nil, nil)
	assert.Empty(t, mapped)

	want := DefaultTemplate()
	if diff := cmp.Diff(want.Map(), rec.Map()); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Yes", rec.Get(KeyBasicAmenities))
	assert.Equal(t, "ft", rec.Get(KeyDimensionUnit))
	assert.Len(t, BlankKeys(rec), len(templateKeys)-len(templateDefaults))
}

func TestMerge_DocumentOutranksImage(t *testing.T) {
	doc := &model.DocumentExtraction{
		DocumentType: model.Known("Copy of Sale Deed"),
		Boundaries:   model.Boundaries{East: model.Known("Road"), West: model.Unknown()},
		Dimensions:   model.Dimensions{Unit: model.Known("mt"), North: model.Known("30")},
	}
	img := &model.ImageExtraction{
		FlatsOnEachFloor: model.Known("4"),
		Boundaries: model.Boundaries{
			East: model.Known("House of Mr Ram"),
			West: model.Known("Open Land"),
		},
		DrafterFields: map[string]model.FieldValue{
			KeyDocumentProvided: model.Known("Site Plan"),
			KeyResidualAge:      model.Known("40"),
			"Not A Field":       model.Known("x"),
		},
	}

	rec, _ := Merge(doc, img)

	assert.Equal(t, "Copy of Sale Deed", rec.Get(KeyDocumentProvided), "image must not overwrite document")
	assert.Equal(t, "Road", rec.Get(KeyBoundaryEast))
	assert.Equal(t, "Open Land", rec.Get(KeyBoundaryWest), "unknown document value leaves the field blank for image")
	assert.Equal(t, "mt", rec.Get(KeyDimensionUnit), "document unit replaces the default")
	assert.Equal(t, "30", rec.Get(KeyDimensionNorth))
	assert.Equal(t, "4", rec.Get(KeyFlatsOnEachFloor))
	assert.Equal(t, "40", rec.Get(KeyResidualAge))
	assert.False(t, rec.Has("Not A Field"))
}

func TestMerge_UnknownNeverCopied(t *testing.T) {
	doc := &model.DocumentExtraction{HoldingStatus: model.Unknown(), Pincode: model.ParseField("NA")}
	img := &model.ImageExtraction{ClassOfLocality: model.Unknown()}

	rec, mapped := Merge(doc, img)
	assert.Empty(t, mapped)
	assert.True(t, rec.IsBlank(KeyHoldingStatus))
	assert.True(t, rec.IsBlank(KeyPincode))
	assert.True(t, rec.IsBlank(KeyClassOfLocality))
}

func TestMerge_CompositeAddress(t *testing.T) {
	doc := &model.DocumentExtraction{
		PlotNo:      model.Known("12"),
		StreetName:  model.Known("MG Road"),
		VillageCity: model.Known("Jaipur"),
		Pincode:     model.Known("302001"),
	}
	rec, _ := Merge(doc, nil)
	assert.Equal(t, "12, MG Road, Jaipur, 302001", rec.Get(KeyAddress))
	assert.NotContains(t, BlankKeys(rec), KeyAddress, "a composed address is never put to the operator")

	empty, _ := Merge(&model.DocumentExtraction{}, nil)
	assert.True(t, empty.IsBlank(KeyAddress))
	assert.Contains(t, BlankKeys(empty), KeyAddress)
}

func TestBlankKeys_WhitespaceIsBlank(t *testing.T) {
	rec := DefaultTemplate()
	rec.Set(KeyDocumentProvided, " ")
	rec.Set(KeyPincode, "302001")

	blank := BlankKeys(rec)
	assert.Contains(t, blank, KeyDocumentProvided)
	assert.NotContains(t, blank, KeyPincode)
	assert.NotContains(t, blank, KeyBasicAmenities)
	assert.Equal(t, KeyDocumentProvided, blank[0], "template order is kept")
}

func TestEngine_ClassifyDropsUnknownKeys(t *testing.T) {
	log := &nopLogger{}
	e := NewEngine(log)

	descs := e.Classify([]string{KeyClassOfLocality, "Mystery", KeyPincode})
	require.Len(t, descs, 2)
	assert.Equal(t, model.FieldTypeDropdown, descs[0].Type)
	assert.True(t, descs[0].Required)
	assert.Contains(t, descs[0].Options, "Middle")
	assert.Equal(t, CategoryDocumentedAddress, descs[1].Category)
	assert.Len(t, log.warnings, 1)
}

func TestCatalog_CoversTemplate(t *testing.T) {
	for _, k := range templateKeys {
		_, ok := Lookup(k)
		assert.True(t, ok, "template key %q missing from catalog", k)
	}
}

func TestEngine_ReconcilePersistsArtifacts(t *testing.T) {
	cs := newMemCaseStore()
	cs.objects["json_data/"+model.DocumentAnalysisFile("C-1")] = []byte(`{
		"Document_Type": "Lease Agreement",
		"Holding_status": "Lease Hold",
		"property_boundaries": {"east": "Road", "west": "NA"}
	}`)

	res, err := NewEngine(&nopLogger{}).Reconcile(context.Background(), cs)
	require.NoError(t, err)
	assert.True(t, res.DocumentFound)
	assert.False(t, res.ImageFound)
	assert.Equal(t, "Lease Hold", res.Record.Get(KeyHoldingStatus))
	assert.Contains(t, res.BlankKeys, KeyBoundaryWest)
	assert.Len(t, res.Descriptors, len(res.BlankKeys))

	rec, found, err := LoadRecord(context.Background(), cs)
	require.NoError(t, err)
	assert.Equal(t, store.Found, found)
	assert.Equal(t, "Lease Agreement", rec.Get(KeyDocumentProvided))

	_, ok := cs.objects["json_data/"+model.BlankFieldsFile("C-1")]
	assert.True(t, ok, "blank field report should be written")
}

func TestEngine_ReconcileToleratesWriteFailure(t *testing.T) {
	cs := newMemCaseStore()
	cs.putErr = errors.New("denied")
	log := &nopLogger{}

	res, err := NewEngine(log).Reconcile(context.Background(), cs)
	require.NoError(t, err)
	assert.False(t, res.DocumentFound)
	assert.NotEmpty(t, res.BlankKeys)
	assert.GreaterOrEqual(t, len(log.warnings), 2)
}
