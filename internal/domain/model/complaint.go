//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxDescriptionLen = 2000
	maxLocationLen    = 500
)

// ComplaintCategory enumerates the complaint categories offered by the portal.
type ComplaintCategory string

const (
	CategoryGarbageOverflow  ComplaintCategory = "garbage-overflow"
	CategoryMissedCollection ComplaintCategory = "missed-collection"
	CategoryIllegalDumping   ComplaintCategory = "illegal-dumping"
	CategoryDrainBlockage    ComplaintCategory = "drain-blockage"
	CategoryDeadAnimal       ComplaintCategory = "dead-animal"
	CategoryStreetSweeping   ComplaintCategory = "street-sweeping"
	CategoryOther            ComplaintCategory = "other"
)

// Valid reports whether the category is supported.
func (c ComplaintCategory) Valid() bool {
	switch c {
	case CategoryGarbageOverflow, CategoryMissedCollection, CategoryIllegalDumping,
		CategoryDrainBlockage, CategoryDeadAnimal, CategoryStreetSweeping, CategoryOther:
		return true
	default:
		return false
	}
}

// ComplaintStatus is the operator workflow state of a complaint.
// The empty value represents a null status.
type ComplaintStatus string

const (
	ComplaintPending    ComplaintStatus = "pending"
	ComplaintInProgress ComplaintStatus = "in_progress"
	ComplaintResolved   ComplaintStatus = "resolved"
	ComplaintRejected   ComplaintStatus = "rejected"
)

// Complaint is a citizen report persisted by the remote store.
type Complaint struct {
	ID          string            `json:"id"          db:"id"`
	Category    ComplaintCategory `json:"category"    db:"category"`
	Description string            `json:"description" db:"description"`
	Location    string            `json:"location"    db:"location"`
	Status      ComplaintStatus   `json:"status"      db:"status"`
	UserID      string            `json:"user_id"     db:"user_id"`
	CreatedAt   time.Time         `json:"created_at"  db:"created_at"`
}

// ComplaintFields are the caller-supplied parts of a complaint.
// Owner and status are stamped by the submission coordinator.
type ComplaintFields struct {
	Category    ComplaintCategory `json:"category"`
	Description string            `json:"description"`
	Location    string            `json:"location"`
}

// Validate trims and validates the complaint fields.
func (f *ComplaintFields) Validate() error {
	f.Category = ComplaintCategory(strings.ToLower(strings.TrimSpace(string(f.Category))))
	f.Description = strings.TrimSpace(f.Description)
	f.Location = strings.TrimSpace(f.Location)

	if f.Category == "" {
		return errors.New("category is required")
	}
	if !f.Category.Valid() {
		return errors.New("category is not supported")
	}
	if f.Description == "" {
		return errors.New("description is required")
	}
	if utf8.RuneCountInString(f.Description) > maxDescriptionLen {
		return errors.New("description cannot exceed 2000 characters")
	}
	if f.Location == "" {
		return errors.New("location is required")
	}
	if utf8.RuneCountInString(f.Location) > maxLocationLen {
		return errors.New("location cannot exceed 500 characters")
	}
	return nil
}
