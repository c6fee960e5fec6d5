package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"

	"wordflight/internal/chat"
	"wordflight/internal/content"
	"wordflight/internal/models"
	"wordflight/internal/notify"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/go-playground/validator/v10"
)

type API struct {
	chat     *chat.Service
	push     *notify.WebPush
	tone     []byte
	validate *validator.Validate
}

func New(chatService *chat.Service, push *notify.WebPush, tone []byte) *API {
	return &API{
		chat:     chatService,
		push:     push,
		tone:     tone,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RequireSameOrigin rejects state-changing requests whose Origin header
// points at another host.
func RequireSameOrigin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			u, err := url.Parse(origin)
			if err != nil || u.Host != r.Host {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func (a *API) RoomsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.chat.ListRooms(r.Context())
	if err != nil {
		log.Printf("failed to list rooms: %v", err)
		http.Error(w, "Failed to list rooms", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// MessagesHandler lists the messages of a room. With ?name= set, own and
// deletable flags are filled for that user.
func (a *API) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if roomID == "" {
		http.Error(w, "Room ID is required", http.StatusBadRequest)
		return
	}
	name := r.URL.Query().Get("name")

	messages, err := a.chat.ListMessages(r.Context(), roomID)
	if err != nil {
		log.Printf("failed to list messages of %s: %v", roomID, err)
		http.Error(w, "Failed to list messages", http.StatusInternalServerError)
		return
	}

	views := make([]models.MessageView, 0, len(messages))
	for _, msg := range messages {
		views = append(views, models.MessageView{
			Message:   msg,
			HTML:      content.Render(msg.Text),
			Own:       name != "" && msg.UserName == name,
			CanDelete: chat.CanDeleteMessage(msg, name, ""),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

type PushKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

func (a *API) PushKeyHandler(w http.ResponseWriter, r *http.Request) {
	if !a.push.Enabled() {
		http.Error(w, "Push notifications are disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, PushKeyResponse{PublicKey: a.push.PublicKey()})
}

type SubscribeRequest struct {
	Name         string           `json:"name" validate:"required,max=64"`
	Subscription PushSubscription `json:"subscription" validate:"required"`
}

// PushSubscription is the browser's PushSubscription.toJSON().
type PushSubscription struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required,base64rawurl|base64url"`
		Auth   string `json:"auth" validate:"required,base64rawurl|base64url"`
	} `json:"keys" validate:"required"`
}

func (a *API) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	name, err := content.DisplayName(req.Name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = a.push.Subscribe(name, webpush.Subscription{
		Endpoint: req.Subscription.Endpoint,
		Keys: webpush.Keys{
			P256dh: req.Subscription.Keys.P256dh,
			Auth:   req.Subscription.Keys.Auth,
		},
	})
	if errors.Is(err, notify.ErrPushDisabled) {
		http.Error(w, "Push notifications are disabled", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, models.APIResponse{Success: true})
}

type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
}

func (a *API) UnsubscribeHandler(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.push.Unsubscribe(req.Endpoint)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) ToneHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := w.Write(a.tone); err != nil {
		log.Printf("failed to write tone: %v", err)
	}
}
