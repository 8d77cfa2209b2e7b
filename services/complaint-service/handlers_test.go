package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"civic-complaints-portal/pkg/middleware"
	"civic-complaints-portal/pkg/response"
	"civic-complaints-portal/pkg/token"
	"civic-complaints-portal/services/complaint-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doJSON(t *testing.T, handler http.HandlerFunc, method, path string, body interface{}, bearer string) (*httptest.ResponseRecorder, response.APIResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	handler(rec, req)

	var parsed response.APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&parsed))
	return rec, parsed
}

func TestUpvoteEndToEnd(t *testing.T) {
	_, authn, tokens := setupComplaintTest(t)
	complaint := seedComplaint(t, "CMP-TEST000042")

	voterToken, err := tokens.Issue("7", "Voter Seven", token.RoleCitizen)
	require.NoError(t, err)

	gated := authn.Middleware(middleware.RequireRole(token.RoleCitizen)(func(w http.ResponseWriter, r *http.Request) {
		upvoteComplaintHandler(w, r, complaint.ID)
	}))

	// First upvote lands and returns counter 1.
	rec, resp := doJSON(t, gated, http.MethodPost, "/api/complaints/42/upvote", nil, voterToken)
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.EqualValues(t, 1, data["upvotes"])

	// Second upvote by the same voter conflicts; counter stays 1.
	rec, _ = doJSON(t, gated, http.MethodPost, "/api/complaints/42/upvote", nil, voterToken)
	assert.Equal(t, http.StatusConflict, rec.Code)

	count, err := upvoteCount(db, complaint.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpvoteRequiresAuthentication(t *testing.T) {
	_, authn, _ := setupComplaintTest(t)
	complaint := seedComplaint(t, "CMP-TEST000042")

	gated := authn.Middleware(middleware.RequireRole(token.RoleCitizen)(func(w http.ResponseWriter, r *http.Request) {
		upvoteComplaintHandler(w, r, complaint.ID)
	}))

	rec, _ := doJSON(t, gated, http.MethodPost, "/api/complaints/42/upvote", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatusChangeRoleEnforcement(t *testing.T) {
	publisher, authn, tokens := setupComplaintTest(t)
	complaint := seedComplaint(t, "CMP-TEST000042")

	gated := func(idOrRef string) http.HandlerFunc {
		return authn.Middleware(middleware.RequireRole(token.RoleAdmin)(func(w http.ResponseWriter, r *http.Request) {
			updateStatusHandler(w, r, idOrRef)
		}))
	}

	citizenToken, err := tokens.Issue("7", "Voter Seven", token.RoleCitizen)
	require.NoError(t, err)
	adminToken, err := tokens.Issue("admin-1", "R. Iyer", token.RoleAdmin)
	require.NoError(t, err)

	// A citizen token is rejected before any mutation runs.
	rec, _ := doJSON(t, gated(complaint.ID), http.MethodPut, "/api/complaints/x/status",
		map[string]string{"status": models.StatusInProgress}, citizenToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Unknown status is a validation error.
	rec, _ = doJSON(t, gated(complaint.ID), http.MethodPut, "/api/complaints/x/status",
		map[string]string{"status": "DONE"}, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown complaint.
	rec, _ = doJSON(t, gated("no-such-id"), http.MethodPut, "/api/complaints/x/status",
		map[string]string{"status": models.StatusInProgress}, adminToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Admin succeeds and a status event goes out.
	rec, _ = doJSON(t, gated(complaint.ID), http.MethodPut, "/api/complaints/x/status",
		map[string]string{"status": models.StatusInProgress}, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, publisher.count())

	var stored models.Complaint
	require.NoError(t, db.First(&stored, "id = ?", complaint.ID).Error)
	assert.Equal(t, models.StatusInProgress, stored.Status)
}

func TestFileAndTrackComplaint(t *testing.T) {
	_, authn, tokens := setupComplaintTest(t)

	citizenToken, err := tokens.Issue("citizen-9", "Asha Rao", token.RoleCitizen)
	require.NoError(t, err)

	gated := authn.Middleware(middleware.RequireRole(token.RoleCitizen)(fileComplaintHandler))
	rec, resp := doJSON(t, gated, http.MethodPost, "/api/complaints", map[string]string{
		"description": "Overflowing garbage bin near the market",
		"category":    "Sanitation",
		"district":    "South",
	}, citizenToken)
	require.Equal(t, http.StatusCreated, rec.Code)

	data := resp.Data.(map[string]interface{})
	reference, _ := data["reference"].(string)
	require.True(t, strings.HasPrefix(reference, "CMP-"), "reference %q", reference)
	assert.Equal(t, "citizen-9", data["citizen_id"])
	assert.Equal(t, models.StatusPending, data["status"])

	// Track resolves the public reference.
	rec, resp = doJSON(t, func(w http.ResponseWriter, r *http.Request) {
		trackComplaintHandler(w, r, reference)
	}, http.MethodGet, "/api/complaints/"+reference+"/track", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	tracked := resp.Data.(map[string]interface{})
	assert.Equal(t, reference, tracked["reference"])
	assert.EqualValues(t, 0, tracked["upvotes"])
}

func TestTrackUnknownComplaint(t *testing.T) {
	setupComplaintTest(t)

	rec, _ := doJSON(t, func(w http.ResponseWriter, r *http.Request) {
		trackComplaintHandler(w, r, "CMP-MISSING")
	}, http.MethodGet, "/api/complaints/CMP-MISSING/track", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTopComplaintsOrdering(t *testing.T) {
	setupComplaintTest(t)

	low := seedComplaint(t, "CMP-LOW0000001")
	high := seedComplaint(t, "CMP-HIGH000001")
	for i := 0; i < 3; i++ {
		_, err := upvoteComplaint(db, high.ID, "voter-"+string(rune('a'+i)))
		require.NoError(t, err)
	}
	_, err := upvoteComplaint(db, low.ID, "voter-z")
	require.NoError(t, err)

	rec, resp := doJSON(t, topComplaintsHandler, http.MethodGet, "/api/complaints/top?limit=2", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	list, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, list, 2)
	first := list[0].(map[string]interface{})
	assert.Equal(t, "CMP-HIGH000001", first["reference"])
	assert.EqualValues(t, 3, first["upvotes"])
}
