package handlers

import (
	"net/http"

	"github.com/kwonkwonn/chatting-sever/internal/crypto"
)

// ClientIDResponse represents the client handshake response.
type ClientIDResponse struct {
	ID string `json:"id"`
}

// ClientID hands out a fresh participant ID. Clients present it on the
// websocket path when they join a room.
func (h *Handler) ClientID(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, ClientIDResponse{ID: crypto.NewUUIDv7().String()})
}
