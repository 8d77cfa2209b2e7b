package main

import (
	"errors"

	"civic-complaints-portal/pkg/database"
	"civic-complaints-portal/services/complaint-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrVoterRequired     = errors.New("voter id required")
	ErrComplaintNotFound = errors.New("complaint not found")
	ErrAlreadyVoted      = errors.New("already upvoted")
)

// complaintLookup scopes a query to the primary id or the public
// reference. The id column is uuid-typed, so a non-uuid value must
// never be bound to it: Postgres rejects the bind outright (22P02)
// before the reference alternative is even considered.
func complaintLookup(tx *gorm.DB, idOrRef string) *gorm.DB {
	if _, err := uuid.Parse(idOrRef); err == nil {
		return tx.Where("id = ? OR reference = ?", idOrRef, idOrRef)
	}
	return tx.Where("reference = ?", idOrRef)
}

// findComplaint resolves a complaint by primary id or by its public
// reference key.
func findComplaint(tx *gorm.DB, idOrRef string) (*models.Complaint, error) {
	var complaint models.Complaint
	err := complaintLookup(tx, idOrRef).First(&complaint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrComplaintNotFound
	}
	if err != nil {
		return nil, err
	}
	return &complaint, nil
}

// upvoteComplaint records one vote and bumps the counter as a single
// transaction. Insert and increment commit or roll back together, so
// the counter always equals the number of ledger rows. A duplicate
// vote aborts before the increment and leaves the counter untouched.
func upvoteComplaint(gdb *gorm.DB, idOrRef, voterID string) (*models.Complaint, error) {
	if voterID == "" {
		return nil, ErrVoterRequired
	}

	var updated *models.Complaint
	err := gdb.Transaction(func(tx *gorm.DB) error {
		complaint, err := findComplaint(tx, idOrRef)
		if err != nil {
			return err
		}

		if err := tx.Create(&models.ComplaintUpvote{
			ComplaintID: complaint.ID,
			CitizenID:   voterID,
		}).Error; err != nil {
			if database.IsDuplicateKey(err) {
				return ErrAlreadyVoted
			}
			return err
		}

		if err := tx.Model(&models.Complaint{}).
			Where("id = ?", complaint.ID).
			UpdateColumn("upvotes", gorm.Expr("upvotes + 1")).Error; err != nil {
			return err
		}

		updated, err = findComplaint(tx, complaint.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// upvoteCount is a plain projection of the counter.
func upvoteCount(gdb *gorm.DB, idOrRef string) (int, error) {
	complaint, err := findComplaint(gdb, idOrRef)
	if err != nil {
		return 0, err
	}
	return complaint.Upvotes, nil
}
