package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardsync/internal/server/handlers"
	"github.com/iudanet/boardsync/internal/server/jwt"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError,
	}
	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}

var testSecret = []byte("test-secret-key")

func testToken(t *testing.T, userID, displayName string, admin bool) string {
	t.Helper()
	token, err := jwt.Generate(testSecret, jwt.Claims{
		UserID:      userID,
		DisplayName: displayName,
		Role:        "editor",
		Admin:       admin,
	}, 15*time.Minute)
	require.NoError(t, err)
	return token
}

// identityHandler is a simple handler that checks context values
func identityHandler(t *testing.T, expectedUserID, expectedName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := handlers.GetIdentity(r.Context())
		require.True(t, ok, "identity should be in context")
		assert.Equal(t, expectedUserID, identity.UserID)
		assert.Equal(t, expectedName, identity.DisplayName)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

func TestAuth_Success(t *testing.T) {
	logger := setupTestLogger()
	token := testToken(t, "user123", "Alice", false)

	wrapped := Auth(logger, testSecret)(identityHandler(t, "user123", "Alice"))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestAuth_QueryParamToken(t *testing.T) {
	// Браузерный WebSocket API не умеет ставить заголовки,
	// поэтому токен принимается и через query-параметр
	logger := setupTestLogger()
	token := testToken(t, "user123", "Alice", false)

	wrapped := Auth(logger, testSecret)(identityHandler(t, "user123", "Alice"))

	req := httptest.NewRequest(http.MethodGet, "/test?token="+token, nil)
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_MissingToken(t *testing.T) {
	logger := setupTestLogger()

	wrapped := Auth(logger, testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_InvalidToken(t *testing.T) {
	logger := setupTestLogger()

	wrapped := Auth(logger, testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")

	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_WrongSecret(t *testing.T) {
	logger := setupTestLogger()

	token, err := jwt.Generate([]byte("other-secret"), jwt.Claims{UserID: "user123"}, time.Minute)
	require.NoError(t, err)

	wrapped := Auth(logger, testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_MalformedAuthHeader(t *testing.T) {
	logger := setupTestLogger()

	wrapped := Auth(logger, testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	for _, header := range []string{"Basic abc", "Bearer", "token-without-scheme"} {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", header)

		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
	}
}

func TestAuth_AdminClaimPropagated(t *testing.T) {
	logger := setupTestLogger()
	token := testToken(t, "admin1", "Root", true)

	wrapped := Auth(logger, testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := handlers.GetIdentity(r.Context())
		require.True(t, ok)
		assert.True(t, identity.Admin)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
