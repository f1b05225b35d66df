package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kwonkwonn/chatting-sever/internal/models"
	"github.com/kwonkwonn/chatting-sever/internal/service"
)

// CreateRoomRequest represents the room creation request.
type CreateRoomRequest struct {
	Name string `json:"name"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// RoomListResponse represents the room list response.
type RoomListResponse struct {
	Rooms []RoomResponse `json:"rooms"`
	Total int            `json:"total"`
}

// RoomMessagesResponse represents the get room messages response.
type RoomMessagesResponse struct {
	Room     RoomResponse         `json:"room"`
	Messages []models.ChatMessage `json:"messages"`
}

// CreateRoom handles room creation.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Name = sanitizeName(req.Name)
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	room, err := h.svc.CreateRoom(r.Context(), req.Name)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	h.JSON(w, http.StatusCreated, roomResponse(room))
}

// ListRooms handles listing all rooms.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.svc.ListRooms(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	resp := RoomListResponse{
		Rooms: make([]RoomResponse, len(rooms)),
		Total: len(rooms),
	}
	for i := range rooms {
		resp.Rooms[i] = roomResponse(&rooms[i])
	}

	h.JSON(w, http.StatusOK, resp)
}

// GetRoomMessages handles fetching recent messages from a room.
func (h *Handler) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	roomIDStr := chi.URLParam(r, "roomID")

	// Validate UUID
	roomID, err := uuid.Parse(roomIDStr)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return
	}

	// Check room exists
	room, err := h.st.GetRoom(r.Context(), roomID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if room == nil {
		h.Error(w, http.StatusNotFound, "room not found")
		return
	}

	// Parse query params
	limit := int64(service.DefaultHistoryLimit)
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.ParseInt(limitStr, 10, 64); err == nil && l > 0 {
			limit = l
		}
	}

	messages, err := h.svc.GetMessages(r.Context(), roomID, limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	h.JSON(w, http.StatusOK, RoomMessagesResponse{
		Room:     roomResponse(room),
		Messages: messages,
	})
}

func roomResponse(room *models.Room) RoomResponse {
	return RoomResponse{
		ID:        room.ID.String(),
		Name:      room.Name,
		CreatedAt: room.CreatedAt.UTC().Format(time.RFC3339),
	}
}
