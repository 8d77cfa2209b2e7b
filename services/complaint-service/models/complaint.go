package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusResolved   = "RESOLVED"
	StatusRejected   = "REJECTED"
)

// Complaint is a filed civic issue. Upvotes is a denormalized counter
// that must always equal the number of ComplaintUpvote rows for the
// complaint; only the ledger transaction may touch it.
type Complaint struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	Reference   string    `gorm:"uniqueIndex;not null" json:"reference"`
	CitizenID   string    `gorm:"index;not null" json:"citizen_id"`
	Description string    `gorm:"not null" json:"description"`
	Category    string    `json:"category,omitempty"`
	Location    string    `json:"location,omitempty"`
	Department  string    `json:"department,omitempty"`
	District    string    `json:"district,omitempty"`
	Status      string    `gorm:"default:'PENDING'" json:"status"`
	Upvotes     int       `gorm:"not null;default:0" json:"upvotes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c *Complaint) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ComplaintUpvote is the ledger row behind one-vote-per-voter. The
// composite unique index is the authority; handlers never pre-check.
type ComplaintUpvote struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	ComplaintID string    `gorm:"uniqueIndex:idx_complaint_voter;not null" json:"complaint_id"`
	CitizenID   string    `gorm:"uniqueIndex:idx_complaint_voter;not null" json:"citizen_id"`
	CreatedAt   time.Time `json:"created_at"`
}
