package reconcile

import (
	"sort"
	"strings"

	"github.com/yangwenmai/casefill/internal/model"
)

// DefaultTemplate returns the target record with every key blank except the
// pre-seeded defaults.
func DefaultTemplate() model.TargetRecord {
	rec := model.NewTargetRecord(templateKeys)
	for k, v := range templateDefaults {
		rec.Set(k, v)
	}
	return rec
}

type docMapping struct {
	target string
	source string
	value  func(*model.DocumentExtraction) model.FieldValue
}

// documentMappings maps document extraction fields onto target keys.
// Nested groups are mapped one sub-key at a time.
var documentMappings = []docMapping{
	{KeyPropertySituated, "Property_Situated", func(d *model.DocumentExtraction) model.FieldValue { return d.PropertySituated }},
	{KeyDocumentProvided, "Document_Type", func(d *model.DocumentExtraction) model.FieldValue { return d.DocumentType }},
	{KeyHoldingStatus, "Holding_status", func(d *model.DocumentExtraction) model.FieldValue { return d.HoldingStatus }},
	{KeyTypeOfProperty, "Type_of_Property_As_per_document", func(d *model.DocumentExtraction) model.FieldValue { return d.TypeOfProperty }},
	{KeyPlotNo, "Plot_No/House_No", func(d *model.DocumentExtraction) model.FieldValue { return d.PlotNo }},
	{KeyFloorNo, "Floor_No", func(d *model.DocumentExtraction) model.FieldValue { return d.FloorNo }},
	{KeyBuildingName, "Building/Wing_Name", func(d *model.DocumentExtraction) model.FieldValue { return d.BuildingName }},
	{KeyStreetName, "Street_No/Road_Name", func(d *model.DocumentExtraction) model.FieldValue { return d.StreetName }},
	{KeySchemeName, "Scheme_Name", func(d *model.DocumentExtraction) model.FieldValue { return d.SchemeName }},
	{KeyVillageCity, "Village/City", func(d *model.DocumentExtraction) model.FieldValue { return d.VillageCity }},
	{KeyPincode, "pincode", func(d *model.DocumentExtraction) model.FieldValue { return d.Pincode }},
	{KeyLocality, "Locality", func(d *model.DocumentExtraction) model.FieldValue { return d.Locality }},

	{KeySetbackFront, "setbacks.front", func(d *model.DocumentExtraction) model.FieldValue { return d.Setbacks.Front }},
	{KeySetbackBack, "setbacks.back", func(d *model.DocumentExtraction) model.FieldValue { return d.Setbacks.Back }},
	{KeySetbackSide1, "setbacks.side1", func(d *model.DocumentExtraction) model.FieldValue { return d.Setbacks.Side1 }},
	{KeySetbackSide2, "setbacks.side2", func(d *model.DocumentExtraction) model.FieldValue { return d.Setbacks.Side2 }},

	{KeyBoundaryEast, "property_boundaries.east", func(d *model.DocumentExtraction) model.FieldValue { return d.Boundaries.East }},
	{KeyBoundaryWest, "property_boundaries.west", func(d *model.DocumentExtraction) model.FieldValue { return d.Boundaries.West }},
	{KeyBoundaryNorth, "property_boundaries.north", func(d *model.DocumentExtraction) model.FieldValue { return d.Boundaries.North }},
	{KeyBoundarySouth, "property_boundaries.south", func(d *model.DocumentExtraction) model.FieldValue { return d.Boundaries.South }},

	{KeyDimensionEast, "property_dimensions.east", func(d *model.DocumentExtraction) model.FieldValue { return d.Dimensions.East }},
	{KeyDimensionWest, "property_dimensions.west", func(d *model.DocumentExtraction) model.FieldValue { return d.Dimensions.West }},
	{KeyDimensionNorth, "property_dimensions.north", func(d *model.DocumentExtraction) model.FieldValue { return d.Dimensions.North }},
	{KeyDimensionSouth, "property_dimensions.south", func(d *model.DocumentExtraction) model.FieldValue { return d.Dimensions.South }},
	{KeyDimensionUnit, "property_dimensions.unit", func(d *model.DocumentExtraction) model.FieldValue { return d.Dimensions.Unit }},
}

type imageMapping struct {
	target string
	source string
	value  func(*model.ImageExtraction) model.FieldValue
}

var imageMappings = []imageMapping{
	{KeyFlatsOnEachFloor, "FlatOnEachFloor", func(i *model.ImageExtraction) model.FieldValue { return i.FlatsOnEachFloor }},
	{KeyOccupancyPercent, "OccupancyPercent", func(i *model.ImageExtraction) model.FieldValue { return i.OccupancyPercent }},
	{KeyClassOfLocality, "ClassOfLocality", func(i *model.ImageExtraction) model.FieldValue { return i.ClassOfLocality }},
	{KeyPropertyUsage, "PropertyUsage", func(i *model.ImageExtraction) model.FieldValue { return i.PropertyUsage }},

	{KeyBoundaryEast, "site_plan_boundaries.east", func(i *model.ImageExtraction) model.FieldValue { return i.Boundaries.East }},
	{KeyBoundaryWest, "site_plan_boundaries.west", func(i *model.ImageExtraction) model.FieldValue { return i.Boundaries.West }},
	{KeyBoundaryNorth, "site_plan_boundaries.north", func(i *model.ImageExtraction) model.FieldValue { return i.Boundaries.North }},
	{KeyBoundarySouth, "site_plan_boundaries.south", func(i *model.ImageExtraction) model.FieldValue { return i.Boundaries.South }},
	{KeyDimensionEast, "site_plan_dimensions.east", func(i *model.ImageExtraction) model.FieldValue { return i.Dimensions.East }},
	{KeyDimensionWest, "site_plan_dimensions.west", func(i *model.ImageExtraction) model.FieldValue { return i.Dimensions.West }},
	{KeyDimensionNorth, "site_plan_dimensions.north", func(i *model.ImageExtraction) model.FieldValue { return i.Dimensions.North }},
	{KeyDimensionSouth, "site_plan_dimensions.south", func(i *model.ImageExtraction) model.FieldValue { return i.Dimensions.South }},
}

// Mapped records one value copied into the target record.
type Mapped struct {
	Target string `json:"target"`
	Source string `json:"source"`
	Origin string `json:"origin"`
}

// Merge builds the target record. Known document values are applied first,
// then known image values only into fields that are still blank. The
// composite address is derived last when it is still blank.
func Merge(doc *model.DocumentExtraction, img *model.ImageExtraction) (model.TargetRecord, []Mapped) {
	rec := DefaultTemplate()
	var mapped []Mapped

	if doc != nil {
		for _, m := range documentMappings {
			v := m.value(doc)
			if !v.IsKnown() {
				continue
			}
			rec.Set(m.target, v.Value())
			mapped = append(mapped, Mapped{Target: m.target, Source: m.source, Origin: "document"})
		}
	}

	if img != nil {
		keys := make([]string, 0, len(img.DrafterFields))
		for k := range img.DrafterFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := img.DrafterFields[k]
			if !v.IsKnown() || !rec.Has(k) || !rec.IsBlank(k) {
				continue
			}
			rec.Set(k, v.Value())
			mapped = append(mapped, Mapped{Target: k, Source: "drafter_field." + k, Origin: "image"})
		}
		for _, m := range imageMappings {
			v := m.value(img)
			if !v.IsKnown() || !rec.IsBlank(m.target) {
				continue
			}
			rec.Set(m.target, v.Value())
			mapped = append(mapped, Mapped{Target: m.target, Source: m.source, Origin: "image"})
		}
	}

	if rec.IsBlank(KeyAddress) {
		if addr := CompositeAddress(rec); addr != "" {
			rec.Set(KeyAddress, addr)
			mapped = append(mapped, Mapped{Target: KeyAddress, Source: "composite", Origin: "derived"})
		}
	}
	return rec, mapped
}

// CompositeAddress joins the non-blank address sub-fields with ", ".
func CompositeAddress(rec model.TargetRecord) string {
	parts := make([]string, 0, len(addressParts))
	for _, k := range addressParts {
		if v := strings.TrimSpace(rec.Get(k)); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

// BlankKeys returns the blank keys of rec in template order.
func BlankKeys(rec model.TargetRecord) []string {
	var out []string
	for _, k := range rec.Keys() {
		if rec.IsBlank(k) {
			out = append(out, k)
		}
	}
	return out
}

// Describe maps blank keys to catalog descriptors. Keys the catalog does not
// know are returned separately and left out of the descriptors.
func Describe(keys []string) (descs []model.BlankFieldDescriptor, unknown []string) {
	descs = make([]model.BlankFieldDescriptor, 0, len(keys))
	for _, k := range keys {
		d, ok := Lookup(k)
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		descs = append(descs, d)
	}
	return descs, unknown
}
