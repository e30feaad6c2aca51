package extract

import (
	"context"
	"encoding/json"
)

// StubService returns canned analysis results (for development/testing).
type StubService struct{}

func (s *StubService) Analyze(_ context.Context, kind Kind, files []File) (json.RawMessage, error) {
	switch kind {
	case KindImage:
		return json.RawMessage(`{
			"FlatOnEachFloor": "1",
			"OccupancyPercent": "0",
			"ClassOfLocality": "Middle",
			"PropertyUsage": "Residential"
		}`), nil
	case KindSitePlan:
		return json.RawMessage(`{
			"site_plan_boundaries": {"north": "Road", "south": "NA", "east": "Plot No 11", "west": "Plot No 13"},
			"site_plan_dimensions": {"unit": "ft", "north": "30", "south": "30", "east": "50", "west": "50"}
		}`), nil
	default:
		return json.RawMessage(`{
			"Document_Type": "Copy of Sale Deed",
			"Owner_Name": "Stub Owner",
			"Type_of_Property_As_per_document": "Residential",
			"Property_Situated": "Urban",
			"Holding_status": "Free Hold",
			"Plot_No/House_No": "12",
			"Street_No/Road_Name": "Station Road",
			"Village/City": "Jaipur",
			"Locality": "Sanganer",
			"pincode": "302001",
			"setbacks": {"Setbacks As per Rule-Front": "NA"},
			"property_boundaries": {"north": "Road", "south": "House of Mr Ram", "east": "NA", "west": "Open Land"},
			"property_dimensions": {"unit": "ft", "north": "30", "south": "30", "east": "NA", "west": "NA"}
		}`), nil
	}
}
