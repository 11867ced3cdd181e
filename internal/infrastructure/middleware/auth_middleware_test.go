package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"homehub/internal/core/domain"
	"homehub/internal/core/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthTestRouter(t *testing.T) (*gin.Engine, services.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	authService := services.NewAuthService("test-secret", 15*time.Minute, time.Hour, 5*time.Minute)
	router := gin.New()

	api := router.Group("/api")
	api.Use(AuthMiddleware(authService))
	api.GET("/whoami", func(c *gin.Context) {
		userID, _ := c.Get("user_id")
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})

	admin := api.Group("/admin")
	admin.Use(RoleMiddleware(authService, domain.RoleAdmin))
	admin.GET("/panel", func(c *gin.Context) { c.Status(http.StatusOK) })

	live := router.Group("/live")
	live.Use(StreamAuthMiddleware(authService))
	live.GET("/segment", func(c *gin.Context) {
		userID, _ := c.Get("user_id")
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})

	return router, authService
}

func doRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_RequiresBearer(t *testing.T) {
	router, authService := newAuthTestRouter(t)

	req, _ := http.NewRequest(http.MethodGet, "/api/whoami", nil)
	assert.Equal(t, http.StatusUnauthorized, doRequest(router, req).Code)

	req, _ = http.NewRequest(http.MethodGet, "/api/whoami", nil)
	req.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, http.StatusUnauthorized, doRequest(router, req).Code)

	token, err := authService.GenerateToken("u1", "alice", domain.RoleViewer)
	require.NoError(t, err)
	req, _ = http.NewRequest(http.MethodGet, "/api/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := doRequest(router, req)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "u1")
}

func TestAuthMiddleware_RejectsStreamToken(t *testing.T) {
	router, authService := newAuthTestRouter(t)

	streamToken, err := authService.GenerateStreamToken("u1")
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, "/api/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+streamToken)
	assert.Equal(t, http.StatusUnauthorized, doRequest(router, req).Code,
		"a stream-scoped token must not open the general API")
}

func TestRoleMiddleware(t *testing.T) {
	router, authService := newAuthTestRouter(t)

	viewerToken, err := authService.GenerateToken("u1", "alice", domain.RoleViewer)
	require.NoError(t, err)
	adminToken, err := authService.GenerateToken("u2", "root", domain.RoleAdmin)
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, "/api/admin/panel", nil)
	req.Header.Set("Authorization", "Bearer "+viewerToken)
	assert.Equal(t, http.StatusForbidden, doRequest(router, req).Code)

	req, _ = http.NewRequest(http.MethodGet, "/api/admin/panel", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	assert.Equal(t, http.StatusOK, doRequest(router, req).Code)
}

func TestStreamAuthMiddleware_ThreeTokenForms(t *testing.T) {
	router, authService := newAuthTestRouter(t)

	streamToken, err := authService.GenerateStreamToken("u1")
	require.NoError(t, err)

	t.Run("query parameter", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/live/segment?token="+streamToken, nil)
		assert.Equal(t, http.StatusOK, doRequest(router, req).Code)
	})

	t.Run("bearer header", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/live/segment", nil)
		req.Header.Set("Authorization", "Bearer "+streamToken)
		assert.Equal(t, http.StatusOK, doRequest(router, req).Code)
	})

	t.Run("session cookie", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/live/segment", nil)
		req.AddCookie(&http.Cookie{Name: StreamTokenCookie, Value: streamToken})
		assert.Equal(t, http.StatusOK, doRequest(router, req).Code)
	})

	t.Run("access token also accepted", func(t *testing.T) {
		accessToken, err := authService.GenerateToken("u1", "alice", domain.RoleViewer)
		require.NoError(t, err)
		req, _ := http.NewRequest(http.MethodGet, "/live/segment?token="+accessToken, nil)
		assert.Equal(t, http.StatusOK, doRequest(router, req).Code)
	})
}

func TestStreamAuthMiddleware_QueryTakesPrecedence(t *testing.T) {
	router, authService := newAuthTestRouter(t)

	goodToken, err := authService.GenerateStreamToken("u1")
	require.NoError(t, err)

	// A valid header does not rescue a bad query token; the first form
	// present wins.
	req, _ := http.NewRequest(http.MethodGet, "/live/segment?token=garbage", nil)
	req.Header.Set("Authorization", "Bearer "+goodToken)
	assert.Equal(t, http.StatusUnauthorized, doRequest(router, req).Code)
}

func TestStreamAuthMiddleware_MissingOrBadToken(t *testing.T) {
	router, _ := newAuthTestRouter(t)

	req, _ := http.NewRequest(http.MethodGet, "/live/segment", nil)
	assert.Equal(t, http.StatusUnauthorized, doRequest(router, req).Code)

	req, _ = http.NewRequest(http.MethodGet, "/live/segment", nil)
	req.AddCookie(&http.Cookie{Name: StreamTokenCookie, Value: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, doRequest(router, req).Code)
}
