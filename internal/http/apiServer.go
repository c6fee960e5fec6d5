package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"wordflight/internal/api"
	"wordflight/internal/notify"
	"wordflight/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(hub *ws.Hub, apiHandlers *api.API, addr string) *APIServer {
	server := ws.NewServer(hub)

	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("GET /api/rooms", apiHandlers.RoomsHandler)
	mux.HandleFunc("GET /api/rooms/{id}/messages", apiHandlers.MessagesHandler)
	mux.HandleFunc("GET /api/push/key", apiHandlers.PushKeyHandler)
	mux.HandleFunc("POST /api/push/subscriptions", api.RequireSameOrigin(apiHandlers.SubscribeHandler))
	mux.HandleFunc("DELETE /api/push/subscriptions", api.RequireSameOrigin(apiHandlers.UnsubscribeHandler))
	mux.HandleFunc("GET "+notify.SoundPath, apiHandlers.ToneHandler)

	// WebSocket endpoint
	mux.HandleFunc("/api/chat", server.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
