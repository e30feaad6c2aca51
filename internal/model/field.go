package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// UnknownSentinel is the value extraction services emit when a field could not be read.
const UnknownSentinel = "NA"

// FieldState distinguishes the three states an extracted value can be in.
type FieldState int

const (
	FieldAbsent FieldState = iota
	FieldUnknown
	FieldKnown
)

// FieldValue is an extracted value that is either absent, explicitly unknown or known.
// The zero value is absent.
type FieldValue struct {
	state FieldState
	value string
}

// Known returns a known value. Use ParseField for untrusted input.
func Known(v string) FieldValue { return FieldValue{state: FieldKnown, value: v} }

// Unknown returns an explicitly unknown value.
func Unknown() FieldValue { return FieldValue{state: FieldUnknown} }

// ParseField maps raw extraction text to a FieldValue.
// Empty text is absent and "NA"/"N/A" (any case) is unknown.
func ParseField(raw string) FieldValue {
	s := strings.TrimSpace(raw)
	if s == "" {
		return FieldValue{}
	}
	if strings.EqualFold(s, UnknownSentinel) || strings.EqualFold(s, "N/A") {
		return Unknown()
	}
	return Known(s)
}

func (f FieldValue) State() FieldState { return f.state }
func (f FieldValue) IsKnown() bool     { return f.state == FieldKnown }
func (f FieldValue) IsUnknown() bool   { return f.state == FieldUnknown }
func (f FieldValue) IsAbsent() bool    { return f.state == FieldAbsent }

// Value returns the known text, or "" for absent and unknown values.
func (f FieldValue) Value() string {
	if f.state != FieldKnown {
		return ""
	}
	return f.value
}

func (f FieldValue) String() string {
	switch f.state {
	case FieldKnown:
		return f.value
	case FieldUnknown:
		return UnknownSentinel
	default:
		return ""
	}
}

// MarshalJSON encodes absent as "", unknown as "NA" and known as its text.
func (f FieldValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON accepts strings, numbers and null.
func (f *FieldValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = FieldValue{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = ParseField(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = ParseField(n.String())
		return nil
	}
	// Objects or arrays are not meaningful field values.
	*f = Unknown()
	return nil
}

// Setbacks as extracted from documents.
type Setbacks struct {
	Front FieldValue `json:"Setbacks As per Rule-Front"`
	Back  FieldValue `json:"Setbacks As per Rule-Back"`
	Side1 FieldValue `json:"Setbacks As per Rule-Side 1"`
	Side2 FieldValue `json:"Setbacks As per Rule-Side 2"`
}

// Boundaries describes what lies on each side of the property.
type Boundaries struct {
	North FieldValue `json:"north"`
	South FieldValue `json:"south"`
	East  FieldValue `json:"east"`
	West  FieldValue `json:"west"`
}

// Dimensions are the side lengths of the property.
type Dimensions struct {
	Unit  FieldValue `json:"unit"`
	North FieldValue `json:"north"`
	South FieldValue `json:"south"`
	East  FieldValue `json:"east"`
	West  FieldValue `json:"west"`
}

// DocumentExtraction is the normalized output of the document pipeline.
type DocumentExtraction struct {
	DocumentType     FieldValue `json:"Document_Type"`
	OwnerName        FieldValue `json:"Owner_Name"`
	TypeOfProperty   FieldValue `json:"Type_of_Property_As_per_document"`
	PropertySituated FieldValue `json:"Property_Situated"`
	Jurisdiction     FieldValue `json:"Property_Jurisdiction"`
	Title            FieldValue `json:"Title_of_Property"`
	HoldingStatus    FieldValue `json:"Holding_status"`
	Address          FieldValue `json:"property_address"`
	PlotNo           FieldValue `json:"Plot_No/House_No"`
	FloorNo          FieldValue `json:"Floor_No"`
	BuildingName     FieldValue `json:"Building/Wing_Name"`
	StreetName       FieldValue `json:"Street_No/Road_Name"`
	SchemeName       FieldValue `json:"Scheme_Name"`
	VillageCity      FieldValue `json:"Village/City"`
	Locality         FieldValue `json:"Locality"`
	District         FieldValue `json:"District"`
	State            FieldValue `json:"State"`
	Pincode          FieldValue `json:"pincode"`
	Setbacks         Setbacks   `json:"setbacks"`
	Boundaries       Boundaries `json:"property_boundaries"`
	Dimensions       Dimensions `json:"property_dimensions"`
}

// ImageExtraction is the normalized output of the image pipeline.
type ImageExtraction struct {
	FlatsOnEachFloor FieldValue `json:"FlatOnEachFloor"`
	OccupancyPercent FieldValue `json:"OccupancyPercent"`
	ClassOfLocality  FieldValue `json:"ClassOfLocality"`
	PropertyUsage    FieldValue `json:"PropertyUsage"`
	Boundaries       Boundaries `json:"site_plan_boundaries"`
	Dimensions       Dimensions `json:"site_plan_dimensions"`
	// DrafterFields holds values the image service reported directly under target keys.
	DrafterFields map[string]FieldValue `json:"drafter_field,omitempty"`
}

// Field type constants for BlankFieldDescriptor.Type.
const (
	FieldTypeText     = "text"
	FieldTypeDropdown = "dropdown"
)

// BlankFieldDescriptor describes a target field the operator must supply.
type BlankFieldDescriptor struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Category string   `json:"category"`
	Options  []string `json:"options,omitempty"`
}

// TargetRecord is the fixed-schema record the web form is filled from.
// Keys keep their template order.
type TargetRecord struct {
	keys   []string
	values map[string]string
}

// NewTargetRecord creates a record with the given keys, all blank.
func NewTargetRecord(keys []string) TargetRecord {
	r := TargetRecord{keys: make([]string, 0, len(keys)), values: make(map[string]string, len(keys))}
	for _, k := range keys {
		if _, ok := r.values[k]; ok {
			continue
		}
		r.keys = append(r.keys, k)
		r.values[k] = ""
	}
	return r
}

// Keys returns the record keys in order.
func (r TargetRecord) Keys() []string { return append([]string(nil), r.keys...) }

// Has reports whether key is part of the schema.
func (r TargetRecord) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Get returns the value of key.
func (r TargetRecord) Get(key string) string { return r.values[key] }

// Set assigns a value to a schema key. Keys outside the schema are ignored.
func (r TargetRecord) Set(key, value string) bool {
	if _, ok := r.values[key]; !ok {
		return false
	}
	r.values[key] = value
	return true
}

// IsBlank reports whether key holds only whitespace.
func (r TargetRecord) IsBlank(key string) bool {
	return strings.TrimSpace(r.values[key]) == ""
}

// Clone returns an independent copy.
func (r TargetRecord) Clone() TargetRecord {
	out := TargetRecord{keys: append([]string(nil), r.keys...), values: make(map[string]string, len(r.values))}
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// Map returns the values as a plain map.
func (r TargetRecord) Map() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// MarshalJSON writes the record as an object in key order.
func (r TargetRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, preserving the key order of the input.
func (r *TargetRecord) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("target record: expected JSON object")
	}
	out := TargetRecord{values: map[string]string{}}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := kt.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			v = strings.Trim(string(raw), `"`)
			if v == "null" {
				v = ""
			}
		}
		if _, ok := out.values[key]; !ok {
			out.keys = append(out.keys, key)
		}
		out.values[key] = v
	}
	*r = out
	return nil
}
