package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/kwonkwonn/chatting-sever/internal/service"
	"github.com/kwonkwonn/chatting-sever/internal/store"
	"github.com/kwonkwonn/chatting-sever/internal/stream"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	svc    *service.Service
	st     store.Store
	lg     stream.Log
	logger zerolog.Logger
}

// NewHandler creates a new Handler. The store and log are held alongside the
// service so health checks can ping each backend directly.
func NewHandler(svc *service.Service, st store.Store, lg stream.Log, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, st: st, lg: lg, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if len(name) > 100 {
		name = name[:100]
	}

	return name
}
