package browser

import "strings"

var photoExact = map[string]string{
	"bathroom":                     "Bathroom",
	"road map":                     "Road Map",
	"route map":                    "Road Map",
	"hybrid map":                   "Hybrid Map",
	"dlc rate photo":               "DLC Rate Photo",
	"dlc rate":                     "DLC Rate Photo",
	"e-meter no":                   "E-Meter No",
	"e-meter":                      "E-Meter No",
	"selfi":                        "Selfie",
	"selfie":                       "Selfie",
	"kitchen":                      "Kitchen",
	"internal photos":              "Internal Photos",
	"site plan":                    "Site Plan",
	"front elevation":              "Front Elevation",
	"approach road":                "Approach Road",
	"other":                        "Other",
	"selfie with customer outside": "Selfie with customer Outside",
	"selfie with customer inside":  "Selfie with customer Inside",
}

// photoKeywords is checked in order; longer titles come before their prefixes.
var photoKeywords = []struct {
	title    string
	keywords []string
}{
	{"Selfie with customer Outside", []string{"selfie with customer outside", "customer selfie outside", "outside selfie"}},
	{"Selfie with customer Inside", []string{"selfie with customer inside", "customer selfie inside", "inside selfie"}},
	{"Bathroom", []string{"bathroom", "toilet", "restroom"}},
	{"Road Map", []string{"road map", "route map", "street map"}},
	{"Hybrid Map", []string{"hybrid map", "hybrid"}},
	{"DLC Rate Photo", []string{"dlc rate", "dlc photo", "dlc"}},
	{"E-Meter No", []string{"e-meter", "electricity meter", "electric meter", "meter"}},
	{"Selfie", []string{"selfie", "selfi"}},
	{"Kitchen", []string{"kitchen"}},
	{"Internal Photos", []string{"internal photos", "internal photo", "internal", "inside photos"}},
	{"Site Plan", []string{"site plan", "site layout", "site map"}},
	{"Front Elevation", []string{"front elevation", "elevation", "front view"}},
	{"Approach Road", []string{"approach road", "approach", "access road"}},
	{"Other", []string{"other", "misc"}},
}

// PhotoTitle maps a checkbox caption to its photo category.
func PhotoTitle(caption string) (string, bool) {
	c := strings.ToLower(strings.TrimSpace(caption))
	if c == "" {
		return "", false
	}
	if t, ok := photoExact[c]; ok {
		return t, true
	}
	for _, p := range photoKeywords {
		for _, kw := range p.keywords {
			if strings.Contains(c, kw) {
				return p.title, true
			}
		}
	}
	return "", false
}
