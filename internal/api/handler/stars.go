package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/starnotary/internal/star"
	"go.uber.org/zap"
)

// StarHandler serves star lookups by block hash or owner address.
type StarHandler struct {
	chain  ChainReader
	logger *zap.Logger
}

// NewStarHandler creates a StarHandler.
func NewStarHandler(chain ChainReader, logger *zap.Logger) *StarHandler {
	return &StarHandler{chain: chain, logger: logger}
}

// Register mounts the star routes on the given router group.
func (h *StarHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/stars/:selector", h.Lookup)
}

// Lookup handles GET /stars/hash:<hash> and GET /stars/address:<address>.
func (h *StarHandler) Lookup(c *gin.Context) {
	kind, value, ok := strings.Cut(c.Param("selector"), ":")
	if !ok || value == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "selector must be hash:<hash> or address:<address>"})
		return
	}

	ctx := c.Request.Context()
	switch kind {
	case "hash":
		rec, err := h.chain.GetBlockByHash(ctx, value)
		if err != nil {
			writeError(c, h.logger, "get block by hash", err)
			return
		}
		c.JSON(http.StatusOK, star.Decorate(rec))
	case "address":
		recs, err := h.chain.GetBlockByWalletAddress(ctx, value)
		if err != nil {
			writeError(c, h.logger, "get blocks by address", err)
			return
		}
		c.JSON(http.StatusOK, star.DecorateAll(recs))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown selector " + kind})
	}
}
