package models

import (
	"math"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestAlertPatch_ApplySkipsAbsentAndBlankFields(t *testing.T) {
	media := "/uploads/1.png"
	alert := &Alert{
		OwnerID:       "owner-1",
		Title:         "Fire near main road",
		Description:   "Smoke visible",
		Category:      DefaultCategory,
		Severity:      DefaultSeverity,
		Latitude:      12.97,
		Longitude:     77.59,
		LocationLabel: "MG Road",
		MediaURL:      &media,
	}
	before := *alert

	AlertPatch{
		Title:       ptr("   "),
		Description: ptr(""),
		Severity:    ptr(SeverityHigh),
	}.Apply(alert)

	assert.Equal(t, SeverityHigh, alert.Severity)
	assert.Equal(t, before.Title, alert.Title)
	assert.Equal(t, before.Description, alert.Description)
	assert.Equal(t, before.Category, alert.Category)
	assert.Equal(t, before.LocationLabel, alert.LocationLabel)
	assert.Equal(t, before.Latitude, alert.Latitude)
	assert.Equal(t, before.Longitude, alert.Longitude)
	assert.Equal(t, before.MediaURL, alert.MediaURL)
	assert.Equal(t, before.OwnerID, alert.OwnerID)
}

func TestAlertPatch_ApplyCoordinates(t *testing.T) {
	alert := &Alert{Latitude: 1, Longitude: 2}

	AlertPatch{Latitude: ptr(0.0), Longitude: ptr(-180.0)}.Apply(alert)

	assert.Equal(t, 0.0, alert.Latitude)
	assert.Equal(t, -180.0, alert.Longitude)
}

func TestCanMutate(t *testing.T) {
	alert := &Alert{OwnerID: "owner-1"}

	assert.True(t, CanMutate(Identity{UserID: "owner-1", Role: RoleResident}, alert))
	assert.True(t, CanMutate(Identity{UserID: "someone", Role: RoleAdmin}, alert))
	assert.False(t, CanMutate(Identity{UserID: "someone", Role: RoleResident}, alert))
	assert.False(t, CanMutate(Identity{}, alert))
	assert.False(t, CanMutate(Identity{UserID: "owner-1"}, nil))
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole("")
	assert.True(t, ok)
	assert.Equal(t, RoleResident, role)

	role, ok = ParseRole("admin")
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, role)

	_, ok = ParseRole("superuser")
	assert.False(t, ok)
}

func TestValidator_AlertInput(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name   string
		input  AlertInput
		fields []string
	}{
		{
			name:  "valid",
			input: AlertInput{Title: "Fire", Description: "Smoke", Latitude: ptr(12.97), Longitude: ptr(77.59)},
		},
		{
			name:  "zero coordinates are valid",
			input: AlertInput{Title: "Fire", Description: "Smoke", Latitude: ptr(0.0), Longitude: ptr(0.0)},
		},
		{
			name:   "missing coordinates",
			input:  AlertInput{Title: "Fire", Description: "Smoke"},
			fields: []string{"latitude", "longitude"},
		},
		{
			name:   "out of range",
			input:  AlertInput{Title: "Fire", Description: "Smoke", Latitude: ptr(91.0), Longitude: ptr(-181.0)},
			fields: []string{"latitude", "longitude"},
		},
		{
			name:   "not finite",
			input:  AlertInput{Title: "Fire", Description: "Smoke", Latitude: ptr(math.NaN()), Longitude: ptr(math.Inf(1))},
			fields: []string{"latitude", "longitude"},
		},
		{
			name:   "blank text",
			input:  AlertInput{Title: "  ", Description: "", Latitude: ptr(1.0), Longitude: ptr(1.0)},
			fields: []string{"title", "description"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.input)
			if len(tt.fields) == 0 {
				require.NoError(t, err)
				return
			}
			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			var got []string
			for _, fe := range verrs {
				got = append(got, fe.Field())
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestValidator_AlertPatch(t *testing.T) {
	v := NewValidator()

	require.NoError(t, v.Struct(AlertPatch{}))
	require.NoError(t, v.Struct(AlertPatch{Severity: ptr(SeverityLow), Latitude: ptr(-90.0)}))

	err := v.Struct(AlertPatch{Severity: ptr("Critical")})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "severity", verrs[0].Field())
}
