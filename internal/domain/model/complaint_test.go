//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplaintFields_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fields  ComplaintFields
		wantErr string
	}{
		{
			name:   "valid complaint",
			fields: ComplaintFields{Category: "garbage-overflow", Description: "bin overflowing", Location: "Zone 3"},
		},
		{
			name:   "category is normalized",
			fields: ComplaintFields{Category: "  Garbage-Overflow ", Description: "bin overflowing", Location: "Zone 3"},
		},
		{
			name:    "missing category",
			fields:  ComplaintFields{Description: "bin overflowing", Location: "Zone 3"},
			wantErr: "category is required",
		},
		{
			name:    "unsupported category",
			fields:  ComplaintFields{Category: "noise", Description: "loud", Location: "Zone 3"},
			wantErr: "category is not supported",
		},
		{
			name:    "blank description",
			fields:  ComplaintFields{Category: "other", Description: "   ", Location: "Zone 3"},
			wantErr: "description is required",
		},
		{
			name:    "description too long",
			fields:  ComplaintFields{Category: "other", Description: strings.Repeat("a", 2001), Location: "Zone 3"},
			wantErr: "description cannot exceed 2000 characters",
		},
		{
			name:    "missing location",
			fields:  ComplaintFields{Category: "other", Description: "x"},
			wantErr: "location is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fields := tt.fields
			err := fields.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, fields.Category.Valid())
		})
	}
}

func TestEventFields_Validate(t *testing.T) {
	t.Parallel()

	zero := 0
	tests := []struct {
		name    string
		fields  EventFields
		wantErr string
	}{
		{
			name:   "valid event",
			fields: EventFields{Title: "Lake cleanup", Date: "2026-11-02", Location: "Ward 7"},
		},
		{
			name:    "missing title",
			fields:  EventFields{Date: "2026-11-02", Location: "Ward 7"},
			wantErr: "title is required",
		},
		{
			name:    "bad date",
			fields:  EventFields{Title: "Lake cleanup", Date: "02/11/2026", Location: "Ward 7"},
			wantErr: "date must be formatted as YYYY-MM-DD",
		},
		{
			name:    "missing location",
			fields:  EventFields{Title: "Lake cleanup", Date: "2026-11-02"},
			wantErr: "location is required",
		},
		{
			name:    "non-positive capacity",
			fields:  EventFields{Title: "Lake cleanup", Date: "2026-11-02", Location: "Ward 7", MaxParticipants: &zero},
			wantErr: "max_participants must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fields := tt.fields
			err := fields.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestEventFields_StoredDescription(t *testing.T) {
	t.Parallel()

	f := EventFields{Category: "Plantation", Description: "Plant 200 saplings"}
	require.NotNil(t, f.StoredDescription())
	assert.Equal(t, "Plantation: Plant 200 saplings", *f.StoredDescription())

	f.Organizer = "Ward Office"
	assert.Equal(t, "Plantation: Plant 200 saplings (organized by Ward Office)", *f.StoredDescription())

	assert.Nil(t, EventFields{}.StoredDescription())
}
