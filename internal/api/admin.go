package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"wordflight/internal/chat"
	"wordflight/internal/models"
)

const adminUser = "admin"

type AdminHandler struct {
	chat *chat.Service
}

func NewAdminHandler(chatService *chat.Service) *AdminHandler {
	return &AdminHandler{chat: chatService}
}

type AddRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedBy   string `json:"createdBy,omitempty"`
}

type AddRoomResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	ID      string `json:"id,omitempty"`
}

func (h *AdminHandler) AddRoomHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AddRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = adminUser
	}

	id, _, err := h.chat.CreateRoom(r.Context(), chat.NewRoom{
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   createdBy,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chat.ErrBlankRoomName) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, AddRoomResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to create room: %v", err),
		})
		return
	}

	writeJSON(w, http.StatusOK, AddRoomResponse{Success: true, ID: id})
}

func (h *AdminHandler) DeleteRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("id")
	if roomID == "" {
		http.Error(w, "Room ID is required", http.StatusBadRequest)
		return
	}

	if _, err := h.chat.DeleteRoom(r.Context(), roomID); err != nil {
		writeJSON(w, http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to delete room: %v", err),
		})
		return
	}

	writeJSON(w, http.StatusOK, models.APIResponse{
		Success: true,
		Message: fmt.Sprintf("Room %s deleted", roomID),
	})
}
