package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/starnotary/internal/identity"
	"github.com/jmerrifield20/starnotary/internal/mempool"
	"go.uber.org/zap"
)

// Admission is the mempool surface used by the HTTP layer.
// *mempool.Mempool satisfies this interface.
type Admission interface {
	RequestValidation(address string) (*mempool.Request, error)
	ValidateRequestByWallet(address, signature string) (*mempool.Token, error)
	Stats() mempool.Stats
}

// ValidationHandler serves the two admission steps.
type ValidationHandler struct {
	pool   Admission
	tokens *identity.TokenIssuer
	logger *zap.Logger
}

// NewValidationHandler creates a ValidationHandler. tokens may be nil, in
// which case no registration token is returned.
func NewValidationHandler(pool Admission, tokens *identity.TokenIssuer, logger *zap.Logger) *ValidationHandler {
	return &ValidationHandler{pool: pool, tokens: tokens, logger: logger}
}

// Register mounts the admission routes on the given router group.
func (h *ValidationHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/requestValidation", h.RequestValidation)
	rg.POST("/message-signature/validate", h.Validate)
}

// RequestValidation handles POST /requestValidation.
//
// Request body: {"address": "<wallet address>"}
//
// Response: the request with the message the wallet must sign.
func (h *ValidationHandler) RequestValidation(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	vr, err := h.pool.RequestValidation(req.Address)
	if err != nil {
		writeError(c, h.logger, "request validation", err)
		return
	}
	SetMempoolGauges(h.pool.Stats())
	c.JSON(http.StatusOK, vr)
}

type validateResponse struct {
	*mempool.Token
	RegistrationToken string `json:"registrationToken,omitempty"`
}

// Validate handles POST /message-signature/validate.
//
// Request body: {"address": "...", "signature": "<base64 compact signature>"}
func (h *ValidationHandler) Validate(c *gin.Context) {
	var req struct {
		Address   string `json:"address" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	tok, err := h.pool.ValidateRequestByWallet(req.Address, req.Signature)
	if err != nil {
		writeError(c, h.logger, "validate signature", err)
		return
	}
	SetMempoolGauges(h.pool.Stats())

	resp := validateResponse{Token: tok}
	if h.tokens != nil {
		signed, err := h.tokens.Issue(req.Address, tok.Status.RequestTimeStamp, tokenTTL(tok.Remaining))
		if err != nil {
			h.logger.Error("issue registration token", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue registration token"})
			return
		}
		resp.RegistrationToken = signed
	}
	c.JSON(http.StatusOK, resp)
}

// tokenTTL rounds d up to whole seconds, the resolution of a JWT expiry, so
// that a live token shorter than a second still gets a usable JWT.
func tokenTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	return (d + time.Second - 1).Truncate(time.Second)
}
