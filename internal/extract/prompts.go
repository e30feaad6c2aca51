package extract

const documentPrompt = `You are an OCR post-processor for Indian real-estate documents, often written in Hindi.
Read the attached property document and output exactly one JSON object with only the keys below.
Translate every value to English. Use "NA" for anything that is not written in the document.

{
  "Document_Type": "exact title such as 'Copy of Sale Deed', 'Lease Agreement' or 'Site Plan'",
  "Owner_Name": "full owner name as written",
  "Type_of_Property_As_per_document": "one of 'Residential', 'Commercial', 'Non Converted', 'Industrial', 'Mix Uses'",
  "Property_Situated": "one of 'Metro', 'Urban', 'Semi Urban or Rural (G P Limit)', 'City Limit', 'Development Authority Limit', 'MC Limit', 'GP Limit', 'Nagar Panchayat Limit', 'Nagar Palika/Parishad/Nigam Limit', 'Outside MC Limits', 'Lal dora', 'Rural'",
  "Property_Jurisdiction": "'Gram Panchayat', 'Nagar Palika', 'Housing Society', 'Housing Board', 'Development Authority', 'Private Land' or the colony name",
  "Title_of_Property": "jurisdiction followed by 'Limits', e.g. 'GP Limits'",
  "Holding_status": "'Free Hold' or 'Lease Hold'",
  "property_address": "full postal address",
  "Plot_No/House_No": "",
  "Floor_No": "",
  "Building/Wing_Name": "",
  "Street_No/Road_Name": "",
  "Scheme_Name": "",
  "Village/City": "",
  "Locality": "tehsil name",
  "District": "",
  "State": "",
  "pincode": "6-digit PIN code",
  "setbacks": {
    "Setbacks As per Rule-Front": "measurement like '3m' or '10 ft'",
    "Setbacks As per Rule-Back": "",
    "Setbacks As per Rule-Side 1": "",
    "Setbacks As per Rule-Side 2": ""
  },
  "property_boundaries": {"north": "", "south": "", "east": "", "west": ""},
  "property_dimensions": {"unit": "'ft' or 'mt'", "north": "", "south": "", "east": "", "west": ""}
}

Rules:
- Strict extraction, no inference.
- Boundaries are short English descriptions such as 'Road' or 'House of Mr Ram'.
- Dimensions are numbers only, e.g. '15 ft' becomes '15'.
- Output JSON only.`

const imagePrompt = `You are analysing photographs of a property for a valuation report.
Output exactly one JSON object with these keys and nothing else:

{
  "FlatOnEachFloor": "number of flats visible on each floor, '1' for an individual house",
  "OccupancyPercent": "'0' if the property is an individual house, otherwise estimated occupancy percent",
  "ClassOfLocality": "one of 'High', 'Middle', 'Low', 'Urban', 'Mixed', 'Rural', 'Semi Urban', 'Residential', 'Commercial', 'Industrial', 'Agriculture & Mixed'",
  "PropertyUsage": "one of 'Commercial office', 'Commercial shop', 'Complete Commercial', 'Vacant land', 'Residential', 'Industrial', 'Mix Uses', 'Non Converted', 'Plot', 'Under Construction', 'Other'"
}

Use "NA" for anything you cannot determine. Output JSON only.`

const sitePlanPrompt = `You are reading a site plan drawing of a property.
Output exactly one JSON object with these keys and nothing else:

{
  "site_plan_boundaries": {"north": "", "south": "", "east": "", "west": ""},
  "site_plan_dimensions": {"unit": "'ft' or 'mt'", "north": "", "south": "", "east": "", "west": ""}
}

Boundaries are short English descriptions such as 'Road' or 'Plot No 12'.
Dimensions are numbers only. Use "NA" for anything not shown. Output JSON only.`

func promptFor(kind Kind) string {
	switch kind {
	case KindImage:
		return imagePrompt
	case KindSitePlan:
		return sitePlanPrompt
	default:
		return documentPrompt
	}
}
