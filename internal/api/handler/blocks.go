package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/starnotary/internal/identity"
	"github.com/jmerrifield20/starnotary/internal/ledger"
	"github.com/jmerrifield20/starnotary/internal/star"
	"go.uber.org/zap"
)

// Submitter appends a star registration on behalf of a validated address.
// *mempool.Mempool satisfies this interface.
type Submitter interface {
	SubmitStar(ctx context.Context, address string, s star.Star) (*star.Block, error)
}

// ChainReader is the read side of *ledger.Ledger.
type ChainReader interface {
	Height(ctx context.Context) (int64, error)
	GetBlock(ctx context.Context, height int64) (*ledger.Record, error)
	GetBlockByHash(ctx context.Context, hash string) (*ledger.Record, error)
	GetBlockByWalletAddress(ctx context.Context, address string) ([]*ledger.Record, error)
	ValidateBlock(ctx context.Context, height int64) (bool, error)
	ValidateChain(ctx context.Context) ([]int64, error)
}

// BlockHandler serves star submission and block lookup.
type BlockHandler struct {
	pool         Submitter
	chain        ChainReader
	tokens       *identity.TokenIssuer
	requireToken bool
	logger       *zap.Logger
}

// NewBlockHandler creates a BlockHandler. When requireToken is set, POST
// /block must carry the registration token issued at validation.
func NewBlockHandler(pool Submitter, chain ChainReader, tokens *identity.TokenIssuer, requireToken bool, logger *zap.Logger) *BlockHandler {
	return &BlockHandler{pool: pool, chain: chain, tokens: tokens, requireToken: requireToken, logger: logger}
}

// Register mounts the block routes on the given router group.
func (h *BlockHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/block", h.Submit)
	rg.GET("/block/:height", h.Get)
}

// Submit handles POST /block.
//
// Request body: {"address": "...", "star": {"ra", "dec", "mag", "cen", "story"}}
func (h *BlockHandler) Submit(c *gin.Context) {
	var req struct {
		Address string    `json:"address" binding:"required"`
		Star    star.Star `json:"star"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if h.requireToken && !h.authorised(c, req.Address) {
		return
	}

	blk, err := h.pool.SubmitStar(c.Request.Context(), req.Address, req.Star)
	if err != nil {
		writeError(c, h.logger, "submit star", err)
		return
	}
	c.JSON(http.StatusCreated, blk)
}

// authorised checks the bearer registration token against address and
// writes a 401 when it does not match.
func (h *BlockHandler) authorised(c *gin.Context, address string) bool {
	raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || raw == "" || h.tokens == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "registration token required"})
		return false
	}
	claims, err := h.tokens.Verify(raw)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid registration token"})
		return false
	}
	if claims.Address() != address {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "registration token was issued for another address"})
		return false
	}
	return true
}

// Get handles GET /block/:height.
func (h *BlockHandler) Get(c *gin.Context) {
	height, ok := parseHeight(c)
	if !ok {
		return
	}

	rec, err := h.chain.GetBlock(c.Request.Context(), height)
	if err != nil {
		writeError(c, h.logger, "get block", err)
		return
	}
	c.JSON(http.StatusOK, star.Decorate(rec))
}

func parseHeight(c *gin.Context) (int64, bool) {
	height, err := strconv.ParseInt(c.Param("height"), 10, 64)
	if err != nil || height < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "height must be a non-negative integer"})
		return 0, false
	}
	return height, true
}
