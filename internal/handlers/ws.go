package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kwonkwonn/chatting-sever/internal/ws"
)

// ServeWS upgrades the connection and joins the client to a room. The path
// carries the room ID and the participant ID from the /client handshake.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(chi.URLParam(r, "roomID"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return
	}

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	exists, err := h.svc.RoomExists(r.Context(), roomID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if !exists {
		h.Error(w, http.StatusNotFound, "room not found")
		return
	}

	conn, err := ws.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(conn, h.svc, roomID, userID.String(), h.logger)
	if err := client.Run(r.Context()); err != nil {
		h.logger.Warn().Err(err).Str("room", roomID.String()).Msg("websocket session rejected")
	}
}
