//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxEventTitleLen = 255
	eventDateLayout  = "2006-01-02"
)

// EventStatus is the lifecycle state of a community event. Empty means null.
type EventStatus string

const (
	EventUpcoming  EventStatus = "upcoming"
	EventOngoing   EventStatus = "ongoing"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
)

// Event is a community event (cleanup drive, plantation, awareness camp).
type Event struct {
	ID              string      `json:"id"                         db:"id"`
	Title           string      `json:"title"                      db:"title"`
	Description     *string     `json:"description,omitempty"      db:"description"`
	EventDate       string      `json:"event_date"                 db:"event_date"`
	EventTime       *string     `json:"event_time,omitempty"       db:"event_time"`
	Location        string      `json:"location"                   db:"location"`
	MaxParticipants *int        `json:"max_participants,omitempty" db:"max_participants"`
	Status          EventStatus `json:"status"                     db:"status"`
	CreatedBy       string      `json:"created_by"                 db:"created_by"`
	CreatedAt       time.Time   `json:"created_at"                 db:"created_at"`
}

// EventFields are the caller-supplied parts of an event submission.
// Category and Organizer are folded into the stored description.
type EventFields struct {
	Title           string `json:"title"`
	Organizer       string `json:"organizer,omitempty"`
	Category        string `json:"category,omitempty"`
	Description     string `json:"description,omitempty"`
	Date            string `json:"date"`
	Time            string `json:"time,omitempty"`
	Location        string `json:"location"`
	MaxParticipants *int   `json:"max_participants,omitempty"`
}

// Validate trims and validates the event fields.
func (f *EventFields) Validate() error {
	f.Title = strings.TrimSpace(f.Title)
	f.Organizer = strings.TrimSpace(f.Organizer)
	f.Category = strings.TrimSpace(f.Category)
	f.Description = strings.TrimSpace(f.Description)
	f.Date = strings.TrimSpace(f.Date)
	f.Time = strings.TrimSpace(f.Time)
	f.Location = strings.TrimSpace(f.Location)

	if f.Title == "" {
		return errors.New("title is required")
	}
	if utf8.RuneCountInString(f.Title) > maxEventTitleLen {
		return errors.New("title cannot exceed 255 characters")
	}
	if f.Date == "" {
		return errors.New("date is required")
	}
	if _, err := time.Parse(eventDateLayout, f.Date); err != nil {
		return errors.New("date must be formatted as YYYY-MM-DD")
	}
	if f.Location == "" {
		return errors.New("location is required")
	}
	if f.MaxParticipants != nil && *f.MaxParticipants <= 0 {
		return errors.New("max_participants must be > 0")
	}
	return nil
}

// StoredDescription renders the description the way the events board shows it:
// "<category>: <description>", with the organizer appended when present.
func (f EventFields) StoredDescription() *string {
	desc := f.Description
	if f.Category != "" {
		desc = f.Category + ": " + desc
	}
	if f.Organizer != "" {
		if desc != "" {
			desc += " "
		}
		desc += "(organized by " + f.Organizer + ")"
	}
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return nil
	}
	return &desc
}

// EventRegistration links one user to one event. (UserID, EventID) is unique.
type EventRegistration struct {
	ID           string    `json:"id"            db:"id"`
	EventID      string    `json:"event_id"      db:"event_id"`
	UserID       string    `json:"user_id"       db:"user_id"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`
}

// RegistrationView is a registration joined with the event it refers to.
// Event is nil when the event is no longer visible.
type RegistrationView struct {
	EventRegistration
	Event *Event `json:"event,omitempty"`
}

// DashboardSummary aggregates the signed-in user's own records.
type DashboardSummary struct {
	TotalComplaints    int `json:"total_complaints"`
	PendingComplaints  int `json:"pending_complaints"`
	ResolvedComplaints int `json:"resolved_complaints"`
	Registrations      int `json:"registrations"`
}
