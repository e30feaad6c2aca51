package reconcile

import "github.com/yangwenmai/casefill/internal/model"

// Target record keys.
const (
	KeyDocumentProvided  = "Document Provided for Valuation"
	KeyHoldingStatus     = "Status of holding"
	KeyTypeOfProperty    = "Type of Property As per Document"
	KeyPropertySituated  = "Property situated"
	KeyFlatsOnEachFloor  = "Flats(on each floor)"
	KeyOccupancyPercent  = "Occupancy percent"
	KeyResidualAge       = "Residual age of Property (years)"
	KeyRequestFrom       = "Request From/Allocated By"
	KeyPlotNo            = "Plot No/House No"
	KeyFloorNo           = "Floor No."
	KeyBuildingName      = "Building/Wing Name"
	KeyStreetName        = "Street No./Road Name"
	KeySchemeName        = "Scheme Name"
	KeyVillageCity       = "Village/City"
	KeyPincode           = "Pincode"
	KeyLocality          = "Locality"
	KeyAddress           = "Address as per Identifier Docs"
	KeyClassOfLocality   = "Class of Locality"
	KeyPropertyUsage     = "Property usage"
	KeyNegativeLocality  = "Any Negative Locality"
	KeyDLCLocation       = "Location- As per DLC Portal"
	KeyBasicAmenities    = "Basic amenities available? (Water, Road)"
	KeyMaintenanceLevels = "Maintenance Levels"
	KeyDeviationRemark   = "Deviation For AU-Remark"
	KeySetbackFront      = "Setbacks As per Rule-Front"
	KeySetbackBack       = "Setbacks As per Rule-Back"
	KeySetbackSide1      = "Setbacks As per Rule-Side 1"
	KeySetbackSide2      = "Setbacks As per Rule-Side 2"
	KeyBoundaryEast      = "East - As Per Document(Boundary)"
	KeyBoundaryWest      = "West - As Per Document(Boundary)"
	KeyBoundaryNorth     = "North - As Per Document(Boundary)"
	KeyBoundarySouth     = "South - As Per Document(Boundary)"
	KeyDimensionUnit     = "Unit For Dimension (Doc)"
	KeyDimensionEast     = "East - As Per Docs(Dimension)"
	KeyDimensionWest     = "West - As Per Docs(Dimension)"
	KeyDimensionNorth    = "North - As Per Docs(Dimension)"
	KeyDimensionSouth    = "South - As Per Docs(Dimension)"
)

// KeyAddressMatch is catalogued for manual entry but is not part of the template.
const KeyAddressMatch = "Doc address match as per actual address"

// templateKeys is the target record schema in form order.
var templateKeys = []string{
	KeyDocumentProvided, KeyHoldingStatus, KeyTypeOfProperty, KeyPropertySituated,
	KeyFlatsOnEachFloor, KeyOccupancyPercent, KeyResidualAge, KeyRequestFrom,

	KeyPlotNo, KeyFloorNo, KeyBuildingName, KeyStreetName, KeySchemeName,
	KeyVillageCity, KeyPincode, KeyLocality, KeyAddress,

	KeyClassOfLocality, KeyPropertyUsage, KeyNegativeLocality, KeyDLCLocation,

	KeyBasicAmenities, KeyMaintenanceLevels, KeyDeviationRemark,

	KeySetbackFront, KeySetbackBack, KeySetbackSide1, KeySetbackSide2,

	KeyBoundaryEast, KeyBoundaryWest, KeyBoundaryNorth, KeyBoundarySouth,

	KeyDimensionUnit, KeyDimensionEast, KeyDimensionWest, KeyDimensionNorth, KeyDimensionSouth,
}

// templateDefaults are pre-seeded so they never surface as blank.
var templateDefaults = map[string]string{
	KeyBasicAmenities: "Yes",
	KeyDimensionUnit:  "ft",
}

// addressParts are joined into KeyAddress when it is blank.
var addressParts = []string{
	KeyPlotNo, KeyFloorNo, KeyBuildingName, KeyStreetName,
	KeySchemeName, KeyLocality, KeyVillageCity, KeyPincode,
}

// Field categories shown by the Human Input Gate.
const (
	CategoryGeneral           = "General"
	CategoryPropertyCondition = "Property Condition"
	CategoryDocumentedAddress = "Documented Address"
	CategoryLocality          = "Locality Information"
	CategoryBoundary          = "Boundary"
	CategoryDimension         = "Dimension"
)

var (
	situatedOptions = []string{
		"Metro", "Urban", "Semi Urban or Rural (G P Limit)", "City Limit",
		"Development Authority Limit", "MC Limit", "GP Limit", "Nagar Panchayat Limit",
		"Nagar Palika/Parishad/Nigam Limit", "Outside MC Limits", "Lal dora", "Rural",
	}
	propertyTypeOptions = []string{"Residential", "Commercial", "Non Converted", "Industrial", "Mix Uses"}
	holdingOptions      = []string{"Free Hold", "Lease Hold"}
	yesNoOptions        = []string{"Yes", "No"}
	localityOptions     = []string{
		"High", "Middle", "Low", "Urban", "Mixed", "Rural", "Semi Urban",
		"Residential", "Commercial", "Industrial", "Agriculture & Mixed",
	}
	usageOptions = []string{
		"Commercial office", "Commercial shop", "Complete Commercial", "Vacant land",
		"Residential", "Industrial", "Mix Uses", "Non Converted", "Plot", "Under Construction", "Other",
	}
	negativeLocalityOptions = []string{
		"Crematoriums", "Slums", "gases", "Mining site", "riot prone",
		"High Tension Lines", "chemical hazards", "Waste Dump Site", "No",
	}
	unitOptions = []string{"ft", "mt"}
)

func text(key, label, category string, required bool) model.BlankFieldDescriptor {
	return model.BlankFieldDescriptor{Key: key, Label: label, Type: model.FieldTypeText, Required: required, Category: category}
}

func dropdown(key, label, category string, required bool, options []string) model.BlankFieldDescriptor {
	return model.BlankFieldDescriptor{Key: key, Label: label, Type: model.FieldTypeDropdown, Required: required, Category: category, Options: options}
}

// catalog holds the static descriptor of every field an operator may be asked for.
// Labels are the on-page spellings used to locate the form controls.
var catalog = func() map[string]model.BlankFieldDescriptor {
	fields := []model.BlankFieldDescriptor{
		text(KeyDocumentProvided, "Document Provided for Valuation", CategoryGeneral, true),
		dropdown(KeyPropertySituated, "Property situated", CategoryGeneral, true, situatedOptions),
		dropdown(KeyTypeOfProperty, "Type of Property As per document", CategoryGeneral, true, propertyTypeOptions),
		dropdown(KeyHoldingStatus, "Status of holding", CategoryGeneral, true, holdingOptions),

		dropdown(KeyAddressMatch, "Doc address match as per actual address", CategoryPropertyCondition, false, yesNoOptions),
		text(KeyFlatsOnEachFloor, "Flats(on each floor)", CategoryPropertyCondition, true),
		text(KeyOccupancyPercent, "Occupancy percent", CategoryPropertyCondition, false),
		text(KeyResidualAge, "Residual age of Property (years)", CategoryPropertyCondition, false),
		text(KeyRequestFrom, "Request From/Allocated By", CategoryPropertyCondition, false),

		text(KeyPlotNo, "Plot No/House No", CategoryDocumentedAddress, false),
		text(KeyFloorNo, "Floor No.", CategoryDocumentedAddress, false),
		text(KeyBuildingName, "Building/Wing Name", CategoryDocumentedAddress, false),
		text(KeyStreetName, "Street No./Road Name", CategoryDocumentedAddress, false),
		text(KeySchemeName, "Scheme Name", CategoryDocumentedAddress, false),
		text(KeyVillageCity, "Village/City", CategoryDocumentedAddress, false),
		text(KeyPincode, "Pincode", CategoryDocumentedAddress, false),
		text(KeyLocality, "Locality", CategoryDocumentedAddress, false),
		text(KeyAddress, "Address as per Identifier Docs", CategoryDocumentedAddress, false),

		dropdown(KeyClassOfLocality, "Class of Locality", CategoryLocality, true, localityOptions),
		dropdown(KeyPropertyUsage, "Property usage", CategoryLocality, false, usageOptions),
		dropdown(KeyNegativeLocality, "Any Negative Locality", CategoryLocality, true, negativeLocalityOptions),
		text(KeyDLCLocation, "Location- As per DLC Portal", CategoryLocality, false),

		text(KeyBoundaryEast, "East - As Per Document(Boundary)", CategoryBoundary, true),
		text(KeyBoundaryWest, "West - As Per Document(Boundary)", CategoryBoundary, true),
		text(KeyBoundaryNorth, "North - As per Document(Boundary)", CategoryBoundary, true),
		text(KeyBoundarySouth, "south - As per Document(Boundary)", CategoryBoundary, true),
		dropdown(KeyBasicAmenities, "Basic amenities available? (Water, Road)", CategoryBoundary, true, yesNoOptions),
		text(KeyMaintenanceLevels, "Maintenance Levels", CategoryBoundary, false),
		text(KeyDeviationRemark, "Deviation For AU-Remark", CategoryBoundary, false),

		dropdown(KeyDimensionUnit, "Unit for Dimension (Doc)", CategoryDimension, true, unitOptions),
		text(KeyDimensionEast, "East - As per Docs(Dimension)", CategoryDimension, true),
		text(KeyDimensionWest, "West - As per Docs(Dimension)", CategoryDimension, true),
		text(KeyDimensionNorth, "North - As per Docs(Dimension)", CategoryDimension, true),
		text(KeyDimensionSouth, "South - As per Docs(Dimension)", CategoryDimension, true),
		text(KeySetbackFront, "Setbacks As per Rule-Front", CategoryDimension, true),
		text(KeySetbackBack, "Setbacks As per Rule-Back", CategoryDimension, true),
		text(KeySetbackSide1, "Setbacks As per Rule-Side 1", CategoryDimension, true),
		text(KeySetbackSide2, "Setbacks As per Rule-Side 2", CategoryDimension, true),
	}
	m := make(map[string]model.BlankFieldDescriptor, len(fields))
	for _, f := range fields {
		m[f.Key] = f
	}
	return m
}()

// Lookup returns the catalog descriptor of key.
func Lookup(key string) (model.BlankFieldDescriptor, bool) {
	d, ok := catalog[key]
	if !ok {
		return model.BlankFieldDescriptor{}, false
	}
	d.Options = append([]string(nil), d.Options...)
	return d, true
}

// Label returns the on-page label of key, falling back to the key itself.
func Label(key string) string {
	if d, ok := catalog[key]; ok {
		return d.Label
	}
	return key
}

// IsDropdown reports whether key is filled through a select control.
func IsDropdown(key string) bool {
	d, ok := catalog[key]
	return ok && d.Type == model.FieldTypeDropdown
}

// TemplateKeys returns the target record schema in form order.
func TemplateKeys() []string {
	return append([]string(nil), templateKeys...)
}
