package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"
	"homehub/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type fakeAdapter struct {
	provider      domain.Provider
	connectErr    error
	challengeErr  error
	cancelErr     error
	disconnectErr error
	connected     bool

	lastCreds domain.Credentials
	lastCode  string
}

func (f *fakeAdapter) Provider() domain.Provider { return f.provider }

func (f *fakeAdapter) Connect(_ context.Context, _ domain.UserID, creds domain.Credentials) error {
	f.lastCreds = creds
	return f.connectErr
}

func (f *fakeAdapter) SubmitChallenge(_ context.Context, _ domain.UserID, code string) error {
	f.lastCode = code
	return f.challengeErr
}

func (f *fakeAdapter) CancelChallenge(_ context.Context, _ domain.UserID) error {
	return f.cancelErr
}

func (f *fakeAdapter) ConnectWithStoredCredentials(_ context.Context, _ domain.UserID) (bool, error) {
	return false, nil
}

func (f *fakeAdapter) Disconnect(_ context.Context, _ domain.UserID) error {
	return f.disconnectErr
}

func (f *fakeAdapter) IsConnected(_ domain.UserID) bool { return f.connected }

func newProviderTestRouter(t *testing.T, adapter *fakeAdapter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zaptest.NewLogger(t).Sugar()
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("user_id", domain.UserID("alice"))
		c.Next()
	})
	router.Use(middleware.ErrorHandlerMiddleware(log))

	handler := NewProviderHandler([]ports.ProviderAdapter{adapter})
	handler.SetupRoutes(router.Group("/api/v1"))
	return router
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestProviderHandler_ConnectSuccess(t *testing.T) {
	adapter := &fakeAdapter{provider: domain.ProviderVacuum}
	router := newProviderTestRouter(t, adapter)

	resp := doJSON(router, http.MethodPost, "/api/v1/providers/vacuum/connect",
		`{"username":"alice@example.com","password":"hunter2"}`)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"connected":true`)
	assert.Equal(t, "alice@example.com", adapter.lastCreds.Username)
	assert.Equal(t, "hunter2", adapter.lastCreds.Password)
}

func TestProviderHandler_ConnectMissingBody(t *testing.T) {
	adapter := &fakeAdapter{provider: domain.ProviderVacuum}
	router := newProviderTestRouter(t, adapter)

	resp := doJSON(router, http.MethodPost, "/api/v1/providers/vacuum/connect", `{"username":"a"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestProviderHandler_UnknownProviderIs404(t *testing.T) {
	adapter := &fakeAdapter{provider: domain.ProviderVacuum}
	router := newProviderTestRouter(t, adapter)

	resp := doJSON(router, http.MethodPost, "/api/v1/providers/toaster/connect",
		`{"username":"a","password":"b"}`)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestProviderHandler_VendorErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		connectErr error
		wantStatus int
	}{
		{"challenge required is 202", domain.ErrChallengeRequired, http.StatusAccepted},
		{"rejected credentials are 401", domain.ErrAuthRejected, http.StatusUnauthorized},
		{"vendor outage is 502", domain.ErrVendorUnavailable, http.StatusBadGateway},
		{"decryption failure is 409", domain.ErrDecryptionFailed, http.StatusConflict},
		{"missing credential is 404", domain.ErrCredentialNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := &fakeAdapter{provider: domain.ProviderDoorbell, connectErr: tt.connectErr}
			router := newProviderTestRouter(t, adapter)

			resp := doJSON(router, http.MethodPost, "/api/v1/providers/doorbell/connect",
				`{"username":"a","password":"b"}`)
			assert.Equal(t, tt.wantStatus, resp.Code)
		})
	}
}

func TestProviderHandler_ChallengeFlow(t *testing.T) {
	adapter := &fakeAdapter{provider: domain.ProviderDoorbell}
	router := newProviderTestRouter(t, adapter)

	resp := doJSON(router, http.MethodPost, "/api/v1/providers/doorbell/challenge", `{"code":"123456"}`)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "123456", adapter.lastCode)

	// Codes failing validation never reach the adapter.
	adapter.lastCode = ""
	resp = doJSON(router, http.MethodPost, "/api/v1/providers/doorbell/challenge", `{"code":"ab"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, adapter.lastCode)

	adapter.challengeErr = domain.ErrNoPendingChallenge
	resp = doJSON(router, http.MethodPost, "/api/v1/providers/doorbell/challenge", `{"code":"123456"}`)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestProviderHandler_CancelChallenge(t *testing.T) {
	adapter := &fakeAdapter{provider: domain.ProviderDoorbell}
	router := newProviderTestRouter(t, adapter)

	resp := doJSON(router, http.MethodDelete, "/api/v1/providers/doorbell/challenge", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"cancelled":true`)

	adapter.cancelErr = domain.ErrNoPendingChallenge
	resp = doJSON(router, http.MethodDelete, "/api/v1/providers/doorbell/challenge", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestProviderHandler_DisconnectAndStatus(t *testing.T) {
	adapter := &fakeAdapter{provider: domain.ProviderVacuum, connected: true}
	router := newProviderTestRouter(t, adapter)

	resp := doJSON(router, http.MethodGet, "/api/v1/providers/vacuum/status", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"connected":true`)

	resp = doJSON(router, http.MethodPost, "/api/v1/providers/vacuum/disconnect", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"connected":false`)

	adapter.disconnectErr = domain.ErrSessionNotFound
	resp = doJSON(router, http.MethodPost, "/api/v1/providers/vacuum/disconnect", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
