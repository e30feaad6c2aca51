// Package gate collects and validates the operator's answers for the fields
// automation could not fill.
package gate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yangwenmai/casefill/internal/model"
)

// Group is the descriptors of one category.
type Group struct {
	Category string                       `json:"category"`
	Fields   []model.BlankFieldDescriptor `json:"fields"`
}

// Form is the operator-facing view of a blank field list.
type Form struct {
	Groups   []Group                      `json:"by_category"`
	Required []model.BlankFieldDescriptor `json:"required"`
	Optional []model.BlankFieldDescriptor `json:"optional"`
}

// Empty reports whether the form has no fields.
func (f Form) Empty() bool { return len(f.Required)+len(f.Optional) == 0 }

// Present groups descriptors by category in first-seen order and splits
// them into required and optional.
func Present(descs []model.BlankFieldDescriptor) Form {
	form := Form{
		Required: []model.BlankFieldDescriptor{},
		Optional: []model.BlankFieldDescriptor{},
	}
	index := map[string]int{}
	for _, d := range descs {
		i, ok := index[d.Category]
		if !ok {
			i = len(form.Groups)
			index[d.Category] = i
			form.Groups = append(form.Groups, Group{Category: d.Category})
		}
		form.Groups[i].Fields = append(form.Groups[i].Fields, d)
		if d.Required {
			form.Required = append(form.Required, d)
		} else {
			form.Optional = append(form.Optional, d)
		}
	}
	return form
}

// ValidationError lists the reasons a submission was rejected.
type ValidationError struct {
	// Missing are required keys without a value.
	Missing []string
	// Invalid are "key: reason" entries for values that cannot be used.
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid fields: "+strings.Join(e.Invalid, "; "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validate checks values against descs. Every required descriptor needs a
// non-blank value, dropdown values must be one of the options and keys
// outside descs are rejected.
func Validate(descs []model.BlankFieldDescriptor, values map[string]string) error {
	known := make(map[string]model.BlankFieldDescriptor, len(descs))
	for _, d := range descs {
		known[d.Key] = d
	}

	ve := &ValidationError{}
	for _, d := range descs {
		v := strings.TrimSpace(values[d.Key])
		if v == "" {
			if d.Required {
				ve.Missing = append(ve.Missing, d.Key)
			}
			continue
		}
		if d.Type == model.FieldTypeDropdown && len(d.Options) > 0 && !hasOption(d.Options, v) {
			ve.Invalid = append(ve.Invalid, fmt.Sprintf("%s: %q is not an allowed option", d.Key, v))
		}
	}

	var extra []string
	for k := range values {
		if _, ok := known[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		ve.Invalid = append(ve.Invalid, k+": unknown field")
	}

	if len(ve.Missing) > 0 || len(ve.Invalid) > 0 {
		return ve
	}
	return nil
}

// Accept validates values and returns the answers to replay: trimmed, with
// empty optional answers dropped and dropdown values in their catalog
// spelling. An empty descriptor list accepts nothing and returns an empty map.
func Accept(descs []model.BlankFieldDescriptor, values map[string]string) (map[string]string, error) {
	out := map[string]string{}
	if len(descs) == 0 {
		return out, nil
	}
	if err := Validate(descs, values); err != nil {
		return nil, err
	}
	for _, d := range descs {
		v := strings.TrimSpace(values[d.Key])
		if v == "" {
			continue
		}
		if d.Type == model.FieldTypeDropdown {
			v = canonicalOption(d.Options, v)
		}
		out[d.Key] = v
	}
	return out, nil
}

func hasOption(options []string, v string) bool {
	for _, o := range options {
		if strings.EqualFold(o, v) {
			return true
		}
	}
	return false
}

func canonicalOption(options []string, v string) string {
	for _, o := range options {
		if strings.EqualFold(o, v) {
			return o
		}
	}
	return v
}

// Summary is the categorized view stored in the manual input report.
type Summary struct {
	Required   []model.BlankFieldDescriptor            `json:"Required"`
	Optional   []model.BlankFieldDescriptor            `json:"Optional"`
	ByCategory map[string][]model.BlankFieldDescriptor `json:"By_Category"`
}

// Summarize converts a form into its report shape.
func Summarize(f Form) Summary {
	s := Summary{Required: f.Required, Optional: f.Optional, ByCategory: map[string][]model.BlankFieldDescriptor{}}
	for _, g := range f.Groups {
		s.ByCategory[g.Category] = g.Fields
	}
	return s
}
