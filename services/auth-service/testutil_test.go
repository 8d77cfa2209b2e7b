package main

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"civic-complaints-portal/pkg/config"
	"civic-complaints-portal/pkg/middleware"
	"civic-complaints-portal/pkg/password"
	"civic-complaints-portal/pkg/token"
	"civic-complaints-portal/services/auth-service/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// stubSender records every dispatched code instead of publishing to
// the queue.
type stubSender struct {
	mu   sync.Mutex
	sent []struct{ Phone, Code string }
}

func (s *stubSender) Send(phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, struct{ Phone, Code string }{phone, code})
	return nil
}

func (s *stubSender) lastCode(phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].Phone == phone {
			return s.sent[i].Code
		}
	}
	return ""
}

func (s *stubSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Named shared-memory database so the whole pool sees one store;
	// a single connection serializes writes the way postgres row locks
	// would.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(&models.Citizen{}, &models.Admin{}))
	return gdb
}

// setupAuthTest wires the package globals the handlers read. Tests
// sharing these globals must not run in parallel.
func setupAuthTest(t *testing.T) (*stubSender, *middleware.Authenticator) {
	t.Helper()

	db = openTestDB(t)
	cfg = &config.Config{
		JWTSecret:       "test-secret",
		TokenTTL:        7 * 24 * time.Hour,
		CookieName:      "auth_token",
		OTPTTL:          10 * time.Minute,
		OTPResendWindow: 9 * time.Minute,
		BcryptCost:      4,
	}
	tokens = token.NewService(cfg.JWTSecret, cfg.TokenTTL)
	hasher = password.NewHasher(cfg.BcryptCost)

	sender := &stubSender{}
	engine = &otpEngine{
		db:           db,
		sender:       sender,
		ttl:          cfg.OTPTTL,
		resendWindow: cfg.OTPResendWindow,
	}

	return sender, middleware.NewAuthenticator(tokens, cfg.CookieName)
}

// shiftOTPExpiry rewrites the stored expiry so cooldown and expiry
// windows can be crossed without sleeping.
func shiftOTPExpiry(t *testing.T, phone string, expiresAt time.Time) {
	t.Helper()
	err := db.Model(&models.Citizen{}).
		Where("phone = ?", phone).
		Update("otp_expires_at", expiresAt).Error
	require.NoError(t, err)
}
