package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medgas-backend/internal/blob"
	"medgas-backend/internal/store"
)

var kindStatus = map[store.Kind]int{
	store.KindNotFound:   http.StatusNotFound,
	store.KindValidation: http.StatusBadRequest,
	store.KindReference:  http.StatusUnprocessableEntity,
	store.KindConflict:   http.StatusConflict,
}

// respondError writes the error body for err. Unclassified errors are logged and hidden.
func (h *Handler) respondError(c *gin.Context, err error) {
	if kind := store.KindOf(err); kind != "" {
		c.AbortWithStatusJSON(kindStatus[kind], gin.H{"error": err.Error(), "kind": string(kind)})
		return
	}
	if errors.Is(err, blob.ErrUnsupported) {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "not supported by the configured blob store", "kind": "unsupported"})
		return
	}
	h.log.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("route", c.FullPath()),
		zap.Error(err),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error", "kind": "internal"})
}

// badRequest reports a body or query that could not be bound.
func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": string(store.KindValidation)})
}
