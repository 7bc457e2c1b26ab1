package http

import (
	"encoding/json"
	"net/http"

	"github.com/Wyydra/parley/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/parley/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

type Options struct {
	StaticDir      string
	SendBufferSize int
	EventRate      rate.Limit
	EventBurst     int
	AllowedOrigins []string
}

func DefaultOptions() Options {
	return Options{
		StaticDir:      "./static",
		SendBufferSize: 64,
		EventRate:      20,
		EventBurst:     40,
	}
}

type Handler struct {
	Presence  *service.PresenceService
	Chat      *service.ChatService
	Signaling *service.SignalingService
	Rooms     *service.RoomCoordinator
	Hub       *ws.Hub
	opts      Options
}

func NewHandler(
	presence *service.PresenceService,
	chat *service.ChatService,
	signaling *service.SignalingService,
	rooms *service.RoomCoordinator,
	hub *ws.Hub,
	opts Options,
) *Handler {
	return &Handler{
		Presence:  presence,
		Chat:      chat,
		Signaling: signaling,
		Rooms:     rooms,
		Hub:       hub,
		opts:      opts,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ws", h.ServeWS)
	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	fs := http.FileServer(http.Dir(h.opts.StaticDir))
	r.Handle("/*", fs)

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"connections": h.Hub.Count(),
		"online":      len(h.Presence.Online()),
		"rooms":       h.Rooms.Rooms(),
	})
}
