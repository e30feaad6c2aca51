package gate

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwenmai/casefill/internal/model"
)

func descriptors() []model.BlankFieldDescriptor {
	return []model.BlankFieldDescriptor{
		{Key: "Status of holding", Label: "Status of holding", Type: model.FieldTypeDropdown, Required: true, Category: "General", Options: []string{"Free Hold", "Lease Hold"}},
		{Key: "Scheme Name", Label: "Scheme Name", Type: model.FieldTypeText, Required: false, Category: "Documented Address"},
		{Key: "Residual age of Property (years)", Label: "Residual age of Property (years)", Type: model.FieldTypeText, Required: true, Category: "General"},
		{Key: "North - As Per Document(Boundary)", Label: "North - As Per Document(Boundary)", Type: model.FieldTypeText, Required: true, Category: "Boundary"},
	}
}

func TestPresent_GroupsInFirstSeenOrder(t *testing.T) {
	form := Present(descriptors())

	require.Len(t, form.Groups, 3)
	assert.Equal(t, "General", form.Groups[0].Category)
	assert.Len(t, form.Groups[0].Fields, 2)
	assert.Equal(t, "Documented Address", form.Groups[1].Category)
	assert.Equal(t, "Boundary", form.Groups[2].Category)
	assert.Len(t, form.Required, 3)
	assert.Len(t, form.Optional, 1)
	assert.False(t, form.Empty())

	assert.True(t, Present(nil).Empty())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		values      map[string]string
		wantMissing []string
		wantInvalid int
	}{
		{
			name: "all required answered",
			values: map[string]string{
				"Status of holding":                 "free hold",
				"Residual age of Property (years)":  "40",
				"North - As Per Document(Boundary)": "Road",
			},
		},
		{
			name: "whitespace is missing",
			values: map[string]string{
				"Status of holding":                 "Free Hold",
				"Residual age of Property (years)":  "   ",
				"North - As Per Document(Boundary)": "Road",
			},
			wantMissing: []string{"Residual age of Property (years)"},
		},
		{
			name: "bad option and unknown key",
			values: map[string]string{
				"Status of holding":                 "Rented",
				"Residual age of Property (years)":  "40",
				"North - As Per Document(Boundary)": "Road",
				"Made Up Field":                     "x",
			},
			wantInvalid: 2,
		},
		{
			name:        "nothing answered",
			values:      nil,
			wantMissing: []string{"Status of holding", "Residual age of Property (years)", "North - As Per Document(Boundary)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(descriptors(), tt.values)
			if tt.wantMissing == nil && tt.wantInvalid == 0 {
				require.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "want *ValidationError, got %v", err)
			assert.Equal(t, tt.wantMissing, ve.Missing)
			assert.Len(t, ve.Invalid, tt.wantInvalid)
		})
	}
}

func TestAccept_TrimsAndCanonicalizes(t *testing.T) {
	got, err := Accept(descriptors(), map[string]string{
		"Status of holding":                 "  lease hold ",
		"Residual age of Property (years)":  " 40 ",
		"North - As Per Document(Boundary)": "Road",
		"Scheme Name":                       "  ",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Status of holding":                 "Lease Hold",
		"Residual age of Property (years)":  "40",
		"North - As Per Document(Boundary)": "Road",
	}, got)
}

func TestAccept_EmptyDescriptorsShortCircuit(t *testing.T) {
	got, err := Accept(nil, map[string]string{"anything": "x"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestAccept_RejectsMissingRequired(t *testing.T) {
	_, err := Accept(descriptors(), map[string]string{"Scheme Name": "Vaishali"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Missing, 3)
	assert.Contains(t, err.Error(), "missing required fields")
}

func TestSummarize(t *testing.T) {
	s := Summarize(Present(descriptors()))
	assert.Len(t, s.Required, 3)
	assert.Len(t, s.ByCategory["General"], 2)
}

func TestTerminalPrompter(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		"",       // required dropdown left blank, asked again
		"Rented", // not an option, asked again
		"2",      // Lease Hold
		"40",
		"", // optional scheme skipped
		"Road",
	}, "\n") + "\n")
	var out bytes.Buffer

	got, err := NewTerminalPrompter(in, &out).Prompt(context.Background(), Present(descriptors()))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Status of holding":                 "Lease Hold",
		"Residual age of Property (years)":  "40",
		"North - As Per Document(Boundary)": "Road",
	}, got)
	assert.Contains(t, out.String(), "a value is required")
	assert.Contains(t, out.String(), "choose one of the listed options")
	require.NoError(t, Validate(descriptors(), got))
}

func TestTerminalPrompter_InputClosed(t *testing.T) {
	_, err := NewTerminalPrompter(strings.NewReader("Free Hold\n"), &bytes.Buffer{}).Prompt(context.Background(), Present(descriptors()))
	require.Error(t, err)
}

func TestStaticPrompter(t *testing.T) {
	p := StaticPrompter{"Scheme Name": "Vaishali", "Unrelated": "x"}
	got, err := p.Prompt(context.Background(), Present(descriptors()))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Scheme Name": "Vaishali"}, got)
}
