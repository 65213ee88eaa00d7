package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/starnotary/internal/integrity"
	"go.uber.org/zap"
)

// IntegrityReporter exposes the most recent background sweep.
// *integrity.Checker satisfies this interface.
type IntegrityReporter interface {
	Last() (integrity.Report, bool)
}

// ChainHandler exposes read-only endpoints describing the whole chain.
type ChainHandler struct {
	chain     ChainReader
	integrity IntegrityReporter
	logger    *zap.Logger
}

// NewChainHandler creates a ChainHandler. reporter may be nil.
func NewChainHandler(chain ChainReader, reporter IntegrityReporter, logger *zap.Logger) *ChainHandler {
	return &ChainHandler{chain: chain, integrity: reporter, logger: logger}
}

// Register mounts the chain routes on the given router group.
func (h *ChainHandler) Register(rg *gin.RouterGroup) {
	ch := rg.Group("/chain")
	{
		ch.GET("", h.Overview)
		ch.GET("/verify", h.Verify)
		ch.GET("/integrity", h.Integrity)
		ch.GET("/blocks/:height/validate", h.ValidateBlock)
	}
}

// Overview handles GET /chain. It returns the tip height and hash.
func (h *ChainHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	height, err := h.chain.Height(ctx)
	if err != nil {
		writeError(c, h.logger, "ledger height", err)
		return
	}
	if height < 0 {
		c.JSON(http.StatusOK, gin.H{"height": height, "hash": ""})
		return
	}

	tip, err := h.chain.GetBlock(ctx, height)
	if err != nil {
		writeError(c, h.logger, "ledger tip", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"height": height, "hash": tip.Hash})
}

// Verify handles GET /chain/verify. It walks the full chain and reports every failing height.
func (h *ChainHandler) Verify(c *gin.Context) {
	failed, err := h.chain.ValidateChain(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "validate chain", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":         len(failed) == 0,
		"failedHeights": failed,
	})
}

// ValidateBlock handles GET /chain/blocks/:height/validate.
func (h *ChainHandler) ValidateBlock(c *gin.Context) {
	height, ok := parseHeight(c)
	if !ok {
		return
	}

	valid, err := h.chain.ValidateBlock(c.Request.Context(), height)
	if err != nil {
		writeError(c, h.logger, "validate block", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"height": height, "valid": valid})
}

// Integrity handles GET /chain/integrity. It returns the last background sweep.
func (h *ChainHandler) Integrity(c *gin.Context) {
	if h.integrity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "integrity sweep disabled"})
		return
	}
	r, ok := h.integrity.Last()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no integrity sweep has run yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": r.Valid(), "report": r})
}
