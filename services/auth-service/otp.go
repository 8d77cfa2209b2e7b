package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"civic-complaints-portal/pkg/middleware"
	"civic-complaints-portal/services/auth-service/models"

	"gorm.io/gorm"
)

var (
	ErrCitizenNotFound = errors.New("citizen not found")
	ErrAlreadyVerified = errors.New("phone already verified")
	ErrNoActiveCode    = errors.New("no active code, request a resend")
	ErrOTPExpired      = errors.New("code expired")
	ErrOTPMismatch     = errors.New("incorrect code")
	ErrResendTooSoon   = errors.New("resend requested too soon")
)

// smsSender is the external notification channel. Delivery failures
// are logged and swallowed; OTP dispatch is fire-and-forget.
type smsSender interface {
	Send(phone, code string) error
}

// otpEngine owns the one-time-passcode lifecycle: issue, resend with
// cooldown, and validate. At most one active code exists per phone; a
// new issuance overwrites the previous one.
type otpEngine struct {
	db           *gorm.DB
	sender       smsSender
	ttl          time.Duration
	resendWindow time.Duration
}

// generateOTP draws a uniform 6-digit code. Leading zeros are part of
// the code, so it lives as a string end to end.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Issue generates a fresh code for the phone, overwriting any previous
// one, and hands it to the delivery channel. The code is never
// returned to the caller.
func (e *otpEngine) Issue(phone string) error {
	code, err := generateOTP()
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(e.ttl)

	result := e.db.Model(&models.Citizen{}).
		Where("phone = ?", phone).
		Updates(map[string]interface{}{
			"otp_code":       code,
			"otp_expires_at": expiresAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCitizenNotFound
	}

	if err := e.sender.Send(phone, code); err != nil {
		middleware.LogError("", "OTP dispatch failed", err)
	}
	return nil
}

// Resend behaves like Issue but refuses while the previous code still
// has more than resendWindow of validity left. That approximates a
// one-minute cooldown without storing a last-sent timestamp.
func (e *otpEngine) Resend(phone string) error {
	var citizen models.Citizen
	if err := e.db.Where("phone = ?", phone).First(&citizen).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCitizenNotFound
		}
		return err
	}

	if citizen.Verified {
		return ErrAlreadyVerified
	}

	if citizen.OTPExpiresAt != nil {
		if remaining := time.Until(*citizen.OTPExpiresAt); remaining > e.resendWindow {
			return ErrResendTooSoon
		}
	}

	return e.Issue(phone)
}

// Validate consumes the code: on success the citizen is marked
// verified and the code+expiry pair is cleared in a single update.
// Both fields come from one row read, so a concurrent resend cannot
// produce a torn code/expiry pair here.
func (e *otpEngine) Validate(phone, code string) error {
	var citizen models.Citizen
	if err := e.db.Where("phone = ?", phone).First(&citizen).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCitizenNotFound
		}
		return err
	}

	if citizen.Verified {
		return ErrAlreadyVerified
	}
	if citizen.OTPCode == nil || citizen.OTPExpiresAt == nil {
		return ErrNoActiveCode
	}
	// Expiry is strict and checked before the mismatch test, so an
	// expired wrong code reports expiry.
	if time.Now().After(*citizen.OTPExpiresAt) {
		return ErrOTPExpired
	}
	if *citizen.OTPCode != code {
		return ErrOTPMismatch
	}

	return e.db.Model(&models.Citizen{}).
		Where("id = ?", citizen.ID).
		Updates(map[string]interface{}{
			"verified":       true,
			"otp_code":       nil,
			"otp_expires_at": nil,
		}).Error
}
