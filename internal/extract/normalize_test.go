package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwenmai/casefill/internal/model"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"chatter", "Here you go: {\"a\":1} hope it helps", `{"a":1}`},
		{"no object", "nothing", "nothing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanJSON(tt.in); got != tt.want {
				t.Errorf("cleanJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeDocument_InvalidYieldsFallback(t *testing.T) {
	d, err := NormalizeDocument([]byte("not json at all"))
	require.Error(t, err)
	for _, f := range documentFields(&d) {
		assert.True(t, f.IsUnknown())
	}
}

func TestNormalizeImage_AliasesAndNestedFields(t *testing.T) {
	raw := []byte("```json\n" + `{
		"drafter_field": {
			"FlatsOnEachFloor": "4",
			"Occupancy Status": "Self Occupied",
			"Remarks": ""
		},
		"OccupancyPercent": "80",
		"ClassOfLocality": "na",
		"site_plan_boundaries": {"north": "Road"}
	}` + "\n```")

	img, err := NormalizeImage(raw)
	require.NoError(t, err)
	assert.Equal(t, "4", img.FlatsOnEachFloor.Value())
	assert.Equal(t, "80", img.OccupancyPercent.Value())
	assert.True(t, img.ClassOfLocality.IsUnknown())
	assert.True(t, img.PropertyUsage.IsAbsent())
	assert.Equal(t, "Road", img.Boundaries.North.Value())
	assert.Equal(t, map[string]model.FieldValue{"Occupancy Status": model.Known("Self Occupied")}, img.DrafterFields)
}

func TestAggregateDocuments_Priority(t *testing.T) {
	survey := model.DocumentExtraction{DocumentType: model.Known("Survey Report"), OwnerName: model.Known("Surveyor"), Pincode: model.Known("302001")}
	lease := model.DocumentExtraction{DocumentType: model.Known("Lease Agreement"), OwnerName: model.Known("Lessee"), Pincode: model.Unknown()}
	deed := model.DocumentExtraction{DocumentType: model.Known("Copy of Sale Deed"), OwnerName: model.Known("Owner"), Pincode: model.Unknown()}

	got := AggregateDocuments([]model.DocumentExtraction{survey, lease, deed})
	assert.Equal(t, "Copy of Sale Deed", got.DocumentType.Value())
	assert.Equal(t, "Owner", got.OwnerName.Value())
	assert.Equal(t, "302001", got.Pincode.Value())
	assert.True(t, got.District.IsAbsent())
}

func TestAggregateDocuments_EmptyIsFallback(t *testing.T) {
	got := AggregateDocuments(nil)
	assert.True(t, got.OwnerName.IsUnknown())
}

func TestAggregateImages(t *testing.T) {
	imgs := []model.ImageExtraction{
		{FlatsOnEachFloor: model.Known("2"), OccupancyPercent: model.Known("50"), ClassOfLocality: model.Known("Middle"), PropertyUsage: model.Unknown()},
		{FlatsOnEachFloor: model.Known("4"), OccupancyPercent: model.Known("75%"), ClassOfLocality: model.Known("Upper"), PropertyUsage: model.Known("Residential")},
		{FlatsOnEachFloor: model.Unknown(), OccupancyPercent: model.Unknown(), ClassOfLocality: model.Known("Upper"),
			Boundaries: model.Boundaries{North: model.Known("Road"), South: model.Unknown()}},
		{Boundaries: model.Boundaries{North: model.Known("Lane"), South: model.Known("Park")}},
	}

	got := AggregateImages(imgs)
	assert.Equal(t, "4", got.FlatsOnEachFloor.Value())
	assert.Equal(t, "63", got.OccupancyPercent.Value())
	assert.Equal(t, "Upper", got.ClassOfLocality.Value())
	assert.Equal(t, "Residential", got.PropertyUsage.Value())
	assert.Equal(t, "Road", got.Boundaries.North.Value(), "first known site plan value wins")
	assert.Equal(t, "Park", got.Boundaries.South.Value())
	assert.True(t, got.Boundaries.East.IsAbsent())
}

func TestAggregateImages_AllUnknown(t *testing.T) {
	got := AggregateImages([]model.ImageExtraction{FallbackImage(), FallbackImage()})
	assert.True(t, got.FlatsOnEachFloor.IsUnknown())
	assert.True(t, got.OccupancyPercent.IsUnknown())
	assert.True(t, got.ClassOfLocality.IsUnknown())
	assert.True(t, got.Boundaries.West.IsUnknown())
}

func TestClassify(t *testing.T) {
	b := Classify([]File{
		{Name: "deed.PDF"},
		{Name: "front.jpeg"},
		{Name: "Site Plan.png"},
		{Name: "page.html"},
		{Name: "sheet.xlsx"},
	})
	require.Len(t, b.Documents, 2)
	assert.Equal(t, "application/pdf", b.Documents[0].MIMEType)
	assert.Equal(t, "text/html", b.Documents[1].MIMEType)
	require.Len(t, b.Images, 1)
	require.Len(t, b.SitePlans, 1)
	assert.Equal(t, []string{"sheet.xlsx"}, b.Skipped)
}
