package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardsync/pkg/api"
)

func TestClient_Snapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/sessions/board-1", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(api.SnapshotResponse{
			SessionID: "board-1",
			TakenAt:   time.Now().UTC(),
			Participants: []api.ParticipantInfo{
				{UserID: "alice", DisplayName: "Alice"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-token")
	snap, err := c.Snapshot(context.Background(), "board-1")
	require.NoError(t, err)
	assert.Equal(t, "board-1", snap.SessionID)
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, "alice", snap.Participants[0].UserID)
}

func TestClient_SnapshotServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "session_not_found"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-token")
	_, err := c.Snapshot(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session_not_found")
	assert.Contains(t, err.Error(), "404")
}

func TestClient_CreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/sessions", r.URL.Path)

		var req api.CreateSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "board-1", req.SessionID)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(api.CreateSessionResponse{
			SessionID: req.SessionID,
			CreatedAt: time.Now().UTC(),
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-token")
	resp, err := c.CreateSession(context.Background(), "board-1")
	require.NoError(t, err)
	assert.Equal(t, "board-1", resp.SessionID)
}

func TestClient_HistoryLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sessions/board-1/history", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode(api.HistoryResponse{SessionID: "board-1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-token")
	_, err := c.History(context.Background(), "board-1", 25)
	require.NoError(t, err)
}

func TestClient_ForceRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/sessions/board-1/locks/shape-7/release", r.URL.Path)
		_ = json.NewEncoder(w).Encode(api.ForceReleaseResponse{
			SessionID:  "board-1",
			ResourceID: "shape-7",
			Released:   true,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-token")
	resp, err := c.ForceRelease(context.Background(), "board-1", "shape-7")
	require.NoError(t, err)
	assert.True(t, resp.Released)
}
