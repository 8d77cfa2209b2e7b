package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"civic-complaints-portal/pkg/cache"
	"civic-complaints-portal/pkg/config"
	"civic-complaints-portal/pkg/middleware"
	"civic-complaints-portal/pkg/response"
	"civic-complaints-portal/services/complaint-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	db       *gorm.DB
	cfg      *config.Config
	store    *cache.Cache
	notifier eventPublisher
)

const (
	topCacheKey = "complaints:top"
	topCacheTTL = 30 * time.Second
	topCacheMax = 50
)

var validStatuses = map[string]bool{
	models.StatusPending:    true,
	models.StatusInProgress: true,
	models.StatusResolved:   true,
	models.StatusRejected:   true,
}

// newReference builds the public tracking key handed to the citizen.
func newReference() string {
	return "CMP-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func publishEvent(traceID string, payload interface{}) {
	if notifier == nil {
		return
	}
	if err := notifier.Publish(payload); err != nil {
		middleware.LogError(traceID, "Failed to publish event", err)
	}
}

func fileComplaintHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	var input struct {
		Description string `json:"description"`
		Category    string `json:"category"`
		Location    string `json:"location"`
		Department  string `json:"department"`
		District    string `json:"district"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", "")
		return
	}
	if strings.TrimSpace(input.Description) == "" {
		response.Error(w, http.StatusBadRequest, "Description is required", "")
		return
	}

	complaint := models.Complaint{
		Reference:   newReference(),
		CitizenID:   claims.UserID,
		Description: strings.TrimSpace(input.Description),
		Category:    input.Category,
		Location:    input.Location,
		Department:  input.Department,
		District:    input.District,
		Status:      models.StatusPending,
	}
	if err := db.Create(&complaint).Error; err != nil {
		middleware.LogError(middleware.GetTraceID(r), "Failed to save complaint", err)
		response.ServerError(w, "Failed to save complaint")
		return
	}

	store.Invalidate(r.Context(), topCacheKey)
	response.Success(w, http.StatusCreated, "Complaint filed successfully", complaint)
}

func listComplaintsHandler(w http.ResponseWriter, r *http.Request) {
	query := db.Order("created_at DESC")
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var complaints []models.Complaint
	if err := query.Find(&complaints).Error; err != nil {
		middleware.LogError(middleware.GetTraceID(r), "Failed to fetch complaints", err)
		response.ServerError(w, "Failed to fetch complaints")
		return
	}

	response.Success(w, http.StatusOK, "Complaints fetched successfully", complaints)
}

// topComplaintsHandler serves the most-upvoted projection, cached for
// a short window since it backs a public landing page.
func topComplaintsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= topCacheMax {
			limit = n
		}
	}

	var top []models.Complaint
	if !store.Get(r.Context(), topCacheKey, &top) {
		if err := db.Order("upvotes DESC, created_at ASC").Limit(topCacheMax).Find(&top).Error; err != nil {
			middleware.LogError(middleware.GetTraceID(r), "Failed to fetch top complaints", err)
			response.ServerError(w, "Failed to fetch complaints")
			return
		}
		store.Set(r.Context(), topCacheKey, top, topCacheTTL)
	}

	if len(top) > limit {
		top = top[:limit]
	}
	response.Success(w, http.StatusOK, "Top complaints fetched successfully", top)
}

func trackComplaintHandler(w http.ResponseWriter, r *http.Request, idOrRef string) {
	complaint, err := findComplaint(db, idOrRef)
	if errors.Is(err, ErrComplaintNotFound) {
		response.Error(w, http.StatusNotFound, "Complaint not found", "")
		return
	}
	if err != nil {
		middleware.LogError(middleware.GetTraceID(r), "Failed to fetch complaint", err)
		response.ServerError(w, "Failed to fetch complaint")
		return
	}

	response.Success(w, http.StatusOK, "Complaint fetched successfully", complaint)
}

func upvoteComplaintHandler(w http.ResponseWriter, r *http.Request, idOrRef string) {
	claims, ok := middleware.ClaimsFrom(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Login required to upvote", "")
		return
	}

	complaint, err := upvoteComplaint(db, idOrRef, claims.UserID)
	switch {
	case err == nil:
		store.Invalidate(r.Context(), topCacheKey)
		response.Success(w, http.StatusOK, "Upvote recorded", map[string]interface{}{
			"id":        complaint.ID,
			"reference": complaint.Reference,
			"upvotes":   complaint.Upvotes,
		})
	case errors.Is(err, ErrVoterRequired):
		response.Error(w, http.StatusUnauthorized, "Login required to upvote", "")
	case errors.Is(err, ErrComplaintNotFound):
		response.Error(w, http.StatusNotFound, "Complaint not found", "")
	case errors.Is(err, ErrAlreadyVoted):
		response.Error(w, http.StatusConflict, "You already upvoted this complaint", "")
	default:
		middleware.LogError(middleware.GetTraceID(r), "Upvote failed", err)
		response.ServerError(w, "Failed to record upvote")
	}
}

func updateStatusHandler(w http.ResponseWriter, r *http.Request, idOrRef string) {
	var input struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", "")
		return
	}
	if !validStatuses[input.Status] {
		response.Error(w, http.StatusBadRequest, "Invalid status", "")
		return
	}

	complaint, err := findComplaint(db, idOrRef)
	if errors.Is(err, ErrComplaintNotFound) {
		response.Error(w, http.StatusNotFound, "Complaint not found", "")
		return
	}
	if err != nil {
		middleware.LogError(middleware.GetTraceID(r), "Failed to fetch complaint", err)
		response.ServerError(w, "Failed to update status")
		return
	}

	if err := db.Model(complaint).Update("status", input.Status).Error; err != nil {
		middleware.LogError(middleware.GetTraceID(r), "Failed to update status", err)
		response.ServerError(w, "Failed to update status")
		return
	}

	store.Invalidate(r.Context(), topCacheKey)
	publishEvent(middleware.GetTraceID(r), statusEvent{
		Type:        "status_update",
		ComplaintID: complaint.ID,
		Reference:   complaint.Reference,
		CitizenID:   complaint.CitizenID,
		Status:      input.Status,
		UpdatedAt:   time.Now(),
	})

	response.Success(w, http.StatusOK, "Complaint status updated", nil)
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":  "UP",
		"service": "complaint-service",
	}

	sqlDB, err := db.DB()
	if err != nil || sqlDB.Ping() != nil {
		health["status"] = "DOWN"
		health["database"] = "disconnected"
		response.JSON(w, http.StatusServiceUnavailable, health)
		return
	}
	health["database"] = "connected"
	response.JSON(w, http.StatusOK, health)
}
