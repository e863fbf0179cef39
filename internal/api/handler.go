package api

import (
	"go.uber.org/zap"

	"medgas-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store *store.Store
	log   *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s *store.Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		store: s,
		log:   log,
	}
}
