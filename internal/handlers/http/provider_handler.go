package http

import (
	"errors"
	"net/http"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"
	apperrors "homehub/pkg/errors"
	"homehub/pkg/validation"

	"github.com/gin-gonic/gin"
)

// ProviderHandler exposes the vendor connection lifecycle: connect,
// answer or cancel a second-factor challenge, disconnect and status.
type ProviderHandler struct {
	adapters map[domain.Provider]ports.ProviderAdapter
}

func NewProviderHandler(adapters []ports.ProviderAdapter) *ProviderHandler {
	byProvider := make(map[domain.Provider]ports.ProviderAdapter, len(adapters))
	for _, adapter := range adapters {
		byProvider[adapter.Provider()] = adapter
	}
	return &ProviderHandler{adapters: byProvider}
}

func (h *ProviderHandler) SetupRoutes(authenticated *gin.RouterGroup) {
	api := authenticated.Group("/providers/:provider")
	{
		api.POST("/connect", h.Connect)
		api.POST("/challenge", h.SubmitChallenge)
		api.DELETE("/challenge", h.CancelChallenge)
		api.POST("/disconnect", h.Disconnect)
		api.GET("/status", h.Status)
	}
}

type ConnectRequest struct {
	Username string `json:"username" binding:"required,max=254"`
	Password string `json:"password" binding:"required,max=256"`
}

type ChallengeRequest struct {
	Code string `json:"code" binding:"required,max=12"`
}

func (h *ProviderHandler) Connect(c *gin.Context) {
	adapter, userID, ok := h.resolve(c)
	if !ok {
		return
	}

	var req ConnectRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	err := adapter.Connect(c.Request.Context(), userID, domain.Credentials{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		h.vendorError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"provider":  adapter.Provider(),
		"connected": true,
	})
}

func (h *ProviderHandler) SubmitChallenge(c *gin.Context) {
	adapter, userID, ok := h.resolve(c)
	if !ok {
		return
	}

	var req ChallengeRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}
	if err := validation.ValidateChallengeCode(req.Code); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	if err := adapter.SubmitChallenge(c.Request.Context(), userID, req.Code); err != nil {
		h.vendorError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"provider":  adapter.Provider(),
		"connected": true,
	})
}

func (h *ProviderHandler) CancelChallenge(c *gin.Context) {
	adapter, userID, ok := h.resolve(c)
	if !ok {
		return
	}

	if err := adapter.CancelChallenge(c.Request.Context(), userID); err != nil {
		h.vendorError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"provider":  adapter.Provider(),
		"cancelled": true,
	})
}

func (h *ProviderHandler) Disconnect(c *gin.Context) {
	adapter, userID, ok := h.resolve(c)
	if !ok {
		return
	}

	if err := adapter.Disconnect(c.Request.Context(), userID); err != nil {
		h.vendorError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"provider":  adapter.Provider(),
		"connected": false,
	})
}

func (h *ProviderHandler) Status(c *gin.Context) {
	adapter, userID, ok := h.resolve(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"provider":  adapter.Provider(),
		"connected": adapter.IsConnected(userID),
	})
}

func (h *ProviderHandler) resolve(c *gin.Context) (ports.ProviderAdapter, domain.UserID, bool) {
	provider := domain.Provider(c.Param("provider"))
	adapter, ok := h.adapters[provider]
	if !ok {
		c.Error(apperrors.NewNotFoundError("provider"))
		return nil, "", false
	}

	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return nil, "", false
	}
	return adapter, userID, true
}

// vendorError maps domain errors from the adapter to transport
// responses. A required challenge is not a failure: the client gets a
// 202 and is expected to submit the code.
func (h *ProviderHandler) vendorError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrChallengeRequired):
		c.JSON(http.StatusAccepted, gin.H{
			"challenge_required": true,
			"message":            "vendor requires a second factor",
		})
	case errors.Is(err, domain.ErrAuthRejected):
		c.Error(apperrors.NewAuthRejectedError("vendor rejected credentials"))
	case errors.Is(err, domain.ErrNoPendingChallenge):
		c.Error(apperrors.NewNotFoundError("pending challenge"))
	case errors.Is(err, domain.ErrSessionNotFound):
		c.Error(apperrors.NewNotFoundError("session"))
	case errors.Is(err, domain.ErrCredentialNotFound):
		c.Error(apperrors.NewNotFoundError("stored credential"))
	case errors.Is(err, domain.ErrDecryptionFailed):
		c.Error(apperrors.NewDecryptionFailedError())
	case errors.Is(err, domain.ErrVendorUnavailable):
		c.Error(apperrors.NewVendorUnavailableError("vendor temporarily unavailable"))
	default:
		c.Error(apperrors.NewInternalError(err.Error()))
	}
}
