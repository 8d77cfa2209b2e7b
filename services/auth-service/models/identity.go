package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Citizen signs up with a phone number and becomes usable only after
// OTP verification. The OTP pair (code, expiry) is either both set or
// both null; validation clears both in the same update that flips
// Verified.
type Citizen struct {
	ID           string     `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string     `gorm:"not null" json:"name"`
	Phone        string     `gorm:"uniqueIndex;not null" json:"phone"`
	Password     string     `gorm:"not null" json:"-"`
	Verified     bool       `gorm:"not null;default:false" json:"verified"`
	OTPCode      *string    `gorm:"column:otp_code" json:"-"`
	OTPExpiresAt *time.Time `gorm:"column:otp_expires_at" json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (c *Citizen) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Admin accounts are keyed by employee id. Duplicate phones are
// allowed; only EmpID carries a unique constraint.
type Admin struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string    `gorm:"not null" json:"name"`
	EmpID      string    `gorm:"column:emp_id;uniqueIndex;not null" json:"emp_id"`
	Department string    `json:"department,omitempty"`
	District   string    `json:"district,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Password   string    `gorm:"not null" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (a *Admin) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
