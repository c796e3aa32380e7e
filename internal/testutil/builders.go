// Package testutil provides testing utilities and fixtures for the portal.
package testutil

import (
	"github.com/swachh/portal-core/internal/domain/model"
)

// ComplaintBuilder provides a fluent interface for building complaint fields for tests.
type ComplaintBuilder struct {
	fields model.ComplaintFields
}

// NewComplaint creates a ComplaintBuilder with valid defaults.
func NewComplaint() *ComplaintBuilder {
	return &ComplaintBuilder{fields: model.ComplaintFields{
		Category:    model.CategoryGarbageOverflow,
		Description: "Bins near the market have not been emptied for three days.",
		Location:    "Ward 12, Market Road",
	}}
}

// WithCategory sets the complaint category.
func (b *ComplaintBuilder) WithCategory(c model.ComplaintCategory) *ComplaintBuilder {
	b.fields.Category = c
	return b
}

// WithDescription sets the complaint description.
func (b *ComplaintBuilder) WithDescription(d string) *ComplaintBuilder {
	b.fields.Description = d
	return b
}

// WithLocation sets the complaint location.
func (b *ComplaintBuilder) WithLocation(l string) *ComplaintBuilder {
	b.fields.Location = l
	return b
}

// Build returns the complaint fields.
func (b *ComplaintBuilder) Build() model.ComplaintFields {
	return b.fields
}

// EventBuilder provides a fluent interface for building event fields for tests.
type EventBuilder struct {
	fields model.EventFields
}

// NewEvent creates an EventBuilder with valid defaults.
func NewEvent() *EventBuilder {
	return &EventBuilder{fields: model.EventFields{
		Title:     "Lake cleanup drive",
		Organizer: "Green Ward Collective",
		Category:  "cleanup",
		Date:      "2024-06-05",
		Time:      "07:30",
		Location:  "Ulsoor Lake, Gate 2",
	}}
}

// WithTitle sets the event title.
func (b *EventBuilder) WithTitle(title string) *EventBuilder {
	b.fields.Title = title
	return b
}

// WithDate sets the event date (YYYY-MM-DD).
func (b *EventBuilder) WithDate(date string) *EventBuilder {
	b.fields.Date = date
	return b
}

// WithMaxParticipants sets the participant cap.
func (b *EventBuilder) WithMaxParticipants(n int) *EventBuilder {
	b.fields.MaxParticipants = IntPtr(n)
	return b
}

// Build returns the event fields.
func (b *EventBuilder) Build() model.EventFields {
	return b.fields
}
