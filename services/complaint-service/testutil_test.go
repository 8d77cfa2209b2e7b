package main

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"civic-complaints-portal/pkg/config"
	"civic-complaints-portal/pkg/middleware"
	"civic-complaints-portal/pkg/token"
	"civic-complaints-portal/services/complaint-service/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// recordingPublisher captures events instead of talking to the broker.
type recordingPublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (p *recordingPublisher) Publish(payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, payload)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(&models.Complaint{}, &models.ComplaintUpvote{}))
	return gdb
}

// setupComplaintTest wires the package globals the handlers read.
// Tests sharing these globals must not run in parallel.
func setupComplaintTest(t *testing.T) (*recordingPublisher, *middleware.Authenticator, *token.Service) {
	t.Helper()

	db = openTestDB(t)
	cfg = &config.Config{
		JWTSecret:  "test-secret",
		TokenTTL:   7 * 24 * time.Hour,
		CookieName: "auth_token",
	}
	store = nil // cache disabled in tests

	publisher := &recordingPublisher{}
	notifier = publisher

	tokens := token.NewService(cfg.JWTSecret, cfg.TokenTTL)
	return publisher, middleware.NewAuthenticator(tokens, cfg.CookieName), tokens
}

func seedComplaint(t *testing.T, reference string) *models.Complaint {
	t.Helper()
	complaint := &models.Complaint{
		Reference:   reference,
		CitizenID:   "citizen-1",
		Description: "Streetlight out on 4th cross",
		Category:    "Streetlight",
		District:    "North",
		Status:      models.StatusPending,
	}
	require.NoError(t, db.Create(complaint).Error)
	return complaint
}
