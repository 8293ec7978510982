package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nis-portal/portal-api/internal/models"
)

func TestCreateAuditLog(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(12, 3, models.RoleOfficer)

	w := env.do(http.MethodPost, "/audit", map[string]interface{}{
		"action_type": "view",
		"entity_type": "request",
		"entity_id":   "5",
		"description": "Viewed request details",
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.AuditCreated
	decode(t, w, &created)
	assert.Positive(t, created.LogID)

	entries := env.repo.AuditEntries()
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].UserID)
	assert.Equal(t, int64(12), *entries[0].UserID, "actor defaults to the caller")
	assert.Equal(t, "VIEW", entries[0].ActionType)
	require.NotNil(t, entries[0].EntityID)
	assert.Equal(t, int64(5), *entries[0].EntityID)

	t.Run("missing action type", func(t *testing.T) {
		w := env.do(http.MethodPost, "/audit", map[string]string{"entity_type": "REQUEST"}, token)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, errorMessage(t, w), "action_type")
	})
}

func TestListAuditLogs(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken()

	for _, body := range []map[string]interface{}{
		{"action_type": "VIEW", "entity_type": "REQUEST", "entity_id": 1},
		{"action_type": "VIEW", "entity_type": "REQUEST", "entity_id": 2},
		{"action_type": "EXPORT", "entity_type": "REPORT"},
	} {
		require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/audit", body, admin).Code)
	}

	t.Run("requires ViewAudit", func(t *testing.T) {
		w := env.do(http.MethodGet, "/audit", nil, env.officerToken())
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("newest first", func(t *testing.T) {
		w := env.do(http.MethodGet, "/audit", nil, admin)
		require.Equal(t, http.StatusOK, w.Code)
		var entries []models.AuditLogEntry
		decode(t, w, &entries)
		require.Len(t, entries, 3)
		assert.Equal(t, "EXPORT", entries[0].ActionType)
	})

	t.Run("filters", func(t *testing.T) {
		w := env.do(http.MethodGet, "/audit?entity_type=request&entity_id=2", nil, admin)
		require.Equal(t, http.StatusOK, w.Code)
		var entries []models.AuditLogEntry
		decode(t, w, &entries)
		require.Len(t, entries, 1)
		assert.Equal(t, int64(2), *entries[0].EntityID)
	})

	t.Run("limit", func(t *testing.T) {
		w := env.do(http.MethodGet, "/audit?limit=2", nil, admin)
		var entries []models.AuditLogEntry
		decode(t, w, &entries)
		assert.Len(t, entries, 2)
	})

	t.Run("invalid parameters", func(t *testing.T) {
		for _, q := range []string{"?limit=abc", "?limit=0", "?entity_id=x"} {
			w := env.do(http.MethodGet, "/audit"+q, nil, admin)
			assert.Equal(t, http.StatusBadRequest, w.Code, q)
		}
	})
}
