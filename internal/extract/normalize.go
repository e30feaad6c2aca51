package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/yangwenmai/casefill/internal/model"
)

// cleanJSON strips markdown fences and any text around the outermost object.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return strings.TrimSpace(s)
}

func documentFields(d *model.DocumentExtraction) []*model.FieldValue {
	return []*model.FieldValue{
		&d.DocumentType, &d.OwnerName, &d.TypeOfProperty, &d.PropertySituated, &d.Jurisdiction,
		&d.Title, &d.HoldingStatus, &d.Address, &d.PlotNo, &d.FloorNo, &d.BuildingName,
		&d.StreetName, &d.SchemeName, &d.VillageCity, &d.Locality, &d.District, &d.State, &d.Pincode,
		&d.Setbacks.Front, &d.Setbacks.Back, &d.Setbacks.Side1, &d.Setbacks.Side2,
		&d.Boundaries.North, &d.Boundaries.South, &d.Boundaries.East, &d.Boundaries.West,
		&d.Dimensions.Unit, &d.Dimensions.North, &d.Dimensions.South, &d.Dimensions.East, &d.Dimensions.West,
	}
}

func sideFields(b *model.Boundaries, d *model.Dimensions) []*model.FieldValue {
	return []*model.FieldValue{
		&b.North, &b.South, &b.East, &b.West,
		&d.Unit, &d.North, &d.South, &d.East, &d.West,
	}
}

// FallbackDocument is the record used when a document could not be analysed:
// every field is explicitly unknown.
func FallbackDocument() model.DocumentExtraction {
	var d model.DocumentExtraction
	for _, f := range documentFields(&d) {
		*f = model.Unknown()
	}
	return d
}

// FallbackImage is the image counterpart of FallbackDocument.
func FallbackImage() model.ImageExtraction {
	u := model.Unknown()
	img := model.ImageExtraction{FlatsOnEachFloor: u, OccupancyPercent: u, ClassOfLocality: u, PropertyUsage: u}
	for _, f := range sideFields(&img.Boundaries, &img.Dimensions) {
		*f = u
	}
	return img
}

// NormalizeDocument decodes a raw document response.
func NormalizeDocument(raw []byte) (model.DocumentExtraction, error) {
	var d model.DocumentExtraction
	if err := json.Unmarshal([]byte(cleanJSON(string(raw))), &d); err != nil {
		return FallbackDocument(), fmt.Errorf("decode document record: %w", err)
	}
	return d, nil
}

var imageAliases = map[string][]string{
	"flats":     {"FlatOnEachFloor", "FlatsOnEachFloor"},
	"occupancy": {"OccupancyPercent"},
	"class":     {"ClassOfLocality"},
	"usage":     {"PropertyUsage"},
}

// NormalizeImage decodes a raw image or site plan response. Values may be
// top level or nested under "drafter_field"; nested keys that are not image
// source keys are kept as target record values.
func NormalizeImage(raw []byte) (model.ImageExtraction, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleanJSON(string(raw))), &top); err != nil {
		return FallbackImage(), fmt.Errorf("decode image record: %w", err)
	}

	var img model.ImageExtraction
	if b, ok := top["site_plan_boundaries"]; ok {
		_ = json.Unmarshal(b, &img.Boundaries)
	}
	if d, ok := top["site_plan_dimensions"]; ok {
		_ = json.Unmarshal(d, &img.Dimensions)
	}

	nested := map[string]json.RawMessage{}
	if df, ok := top["drafter_field"]; ok {
		_ = json.Unmarshal(df, &nested)
	}
	sourceKeys := map[string]bool{}
	for _, aliases := range imageAliases {
		for _, a := range aliases {
			sourceKeys[a] = true
		}
	}

	pick := func(name string) model.FieldValue {
		for _, src := range []map[string]json.RawMessage{nested, top} {
			for _, a := range imageAliases[name] {
				if b, ok := src[a]; ok {
					var v model.FieldValue
					if err := json.Unmarshal(b, &v); err == nil && !v.IsAbsent() {
						return v
					}
				}
			}
		}
		return model.FieldValue{}
	}
	img.FlatsOnEachFloor = pick("flats")
	img.OccupancyPercent = pick("occupancy")
	img.ClassOfLocality = pick("class")
	img.PropertyUsage = pick("usage")

	for k, b := range nested {
		if sourceKeys[k] {
			continue
		}
		var v model.FieldValue
		if err := json.Unmarshal(b, &v); err != nil || v.IsAbsent() {
			continue
		}
		if img.DrafterFields == nil {
			img.DrafterFields = map[string]model.FieldValue{}
		}
		img.DrafterFields[k] = v
	}
	return img, nil
}

// documentPriority orders documents by legal weight.
func documentPriority(d model.DocumentExtraction) int {
	t := strings.ToLower(d.DocumentType.Value())
	switch {
	case strings.Contains(t, "sale deed"):
		return 0
	case strings.Contains(t, "lease"):
		return 1
	case strings.Contains(t, "survey"):
		return 2
	default:
		return 3
	}
}

// AggregateDocuments combines per-document records. The highest priority
// document wins; fields it does not know are taken from the next documents.
func AggregateDocuments(docs []model.DocumentExtraction) model.DocumentExtraction {
	if len(docs) == 0 {
		return FallbackDocument()
	}
	ordered := append([]model.DocumentExtraction(nil), docs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return documentPriority(ordered[i]) < documentPriority(ordered[j])
	})
	out := ordered[0]
	dst := documentFields(&out)
	for _, d := range ordered[1:] {
		src := documentFields(&d)
		fill(dst, src)
	}
	return out
}

func fill(dst, src []*model.FieldValue) {
	for i := range dst {
		switch {
		case dst[i].IsKnown():
		case src[i].IsKnown():
			*dst[i] = *src[i]
		case dst[i].IsAbsent() && src[i].IsUnknown():
			*dst[i] = *src[i]
		}
	}
}

// AggregateImages combines per-image records: the largest flat count, the
// mean occupancy, the most common locality class and usage, and the first
// known site plan values.
func AggregateImages(imgs []model.ImageExtraction) model.ImageExtraction {
	if len(imgs) == 0 {
		return FallbackImage()
	}
	var out model.ImageExtraction

	var (
		maxFlats   = math.Inf(-1)
		flatsText  model.FieldValue
		occSum     float64
		occN       int
		occText    model.FieldValue
		classVotes []string
		usageVotes []string
		anyUnknown = map[string]bool{}
	)
	for _, img := range imgs {
		if v := img.FlatsOnEachFloor; v.IsKnown() {
			if n, err := strconv.ParseFloat(v.Value(), 64); err == nil {
				if n > maxFlats {
					maxFlats = n
					flatsText = v
				}
			} else if flatsText.IsAbsent() {
				flatsText = v
			}
		} else if v.IsUnknown() {
			anyUnknown["flats"] = true
		}

		if v := img.OccupancyPercent; v.IsKnown() {
			if n, err := strconv.ParseFloat(strings.TrimSuffix(v.Value(), "%"), 64); err == nil {
				occSum += n
				occN++
			} else if occText.IsAbsent() {
				occText = v
			}
		} else if v.IsUnknown() {
			anyUnknown["occupancy"] = true
		}

		if v := img.ClassOfLocality; v.IsKnown() {
			classVotes = append(classVotes, v.Value())
		} else if v.IsUnknown() {
			anyUnknown["class"] = true
		}
		if v := img.PropertyUsage; v.IsKnown() {
			usageVotes = append(usageVotes, v.Value())
		} else if v.IsUnknown() {
			anyUnknown["usage"] = true
		}

		fill(sideFields(&out.Boundaries, &out.Dimensions), sideFields(&img.Boundaries, &img.Dimensions))

		for k, v := range img.DrafterFields {
			if cur, ok := out.DrafterFields[k]; ok && cur.IsKnown() {
				continue
			}
			if out.DrafterFields == nil {
				out.DrafterFields = map[string]model.FieldValue{}
			}
			out.DrafterFields[k] = v
		}
	}

	out.FlatsOnEachFloor = orUnknown(flatsText, anyUnknown["flats"])
	if occN > 0 {
		out.OccupancyPercent = model.Known(strconv.FormatFloat(math.Round(occSum/float64(occN)), 'f', -1, 64))
	} else {
		out.OccupancyPercent = orUnknown(occText, anyUnknown["occupancy"])
	}
	out.ClassOfLocality = orUnknown(mode(classVotes), anyUnknown["class"])
	out.PropertyUsage = orUnknown(mode(usageVotes), anyUnknown["usage"])
	return out
}

func orUnknown(v model.FieldValue, unknown bool) model.FieldValue {
	if v.IsAbsent() && unknown {
		return model.Unknown()
	}
	return v
}

// mode returns the most common value. On ties the value that reached the
// count first wins.
func mode(votes []string) model.FieldValue {
	if len(votes) == 0 {
		return model.FieldValue{}
	}
	counts := map[string]int{}
	best, bestN := "", 0
	for _, v := range votes {
		counts[v]++
		if counts[v] > bestN {
			best, bestN = v, counts[v]
		}
	}
	return model.Known(best)
}
