// Package handler holds the gin handlers of the HTTP API.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"phishbox/internal/ingest"
	"phishbox/internal/model"
	"phishbox/pkg/logger"
	"phishbox/pkg/outbox"
)

// Context keys set by the auth middleware.
const (
	ContextOperator = "operator"
	ContextRole     = "role"
)

// Operator returns the authenticated operator name, or "anonymous".
func Operator(c *gin.Context) string {
	if v, ok := c.Get(ContextOperator); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "anonymous"
}

// respondError maps domain errors onto status codes. Unexpected errors are
// logged and reported without detail.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrTaskNotFound), errors.Is(err, outbox.ErrEventNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrInvalidTeam), errors.Is(err, ingest.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.WithTrace(c.Request.Context(), log).Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func emailID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email id"})
		return 0, false
	}
	return id, true
}
