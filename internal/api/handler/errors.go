package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/starnotary/internal/ledger"
	"github.com/jmerrifield20/starnotary/internal/mempool"
	"github.com/jmerrifield20/starnotary/internal/star"
	"go.uber.org/zap"
)

// writeError maps a domain error to its HTTP status and writes it.
func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	var (
		se  *ledger.StorageError
		mbe *http.MaxBytesError
	)
	switch {
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, mempool.ErrRequestNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, mempool.ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, mempool.ErrInvalidSignature):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, mempool.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, star.ErrPayloadTooLarge), errors.As(err, &mbe):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, star.ErrInvalidStar), errors.Is(err, mempool.ErrInvalidAddress):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, mempool.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service shutting down"})
	case errors.As(err, &se) && se.Timeout():
		logger.Error(op, zap.Error(err))
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "storage timed out"})
	default:
		logger.Error(op, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// bindError reports a request body that failed to decode.
func bindError(c *gin.Context, err error) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
