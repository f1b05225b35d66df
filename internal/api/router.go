package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kwonkwonn/chatting-sever/internal/api/middleware"
	"github.com/kwonkwonn/chatting-sever/internal/handlers"
	"github.com/kwonkwonn/chatting-sever/internal/service"
	"github.com/kwonkwonn/chatting-sever/internal/store"
	"github.com/kwonkwonn/chatting-sever/internal/stream"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, svc *service.Service, st store.Store, lg stream.Log) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(logger)
	r.Use(limiter.Middleware)

	// CORS - allow all origins (browser clients connect from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(svc, st, lg, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/client", h.ClientID)
	r.Get("/stats", h.Stats)

	r.Route("/rooms", func(r chi.Router) {
		r.Get("/", h.ListRooms)
		r.Post("/", h.CreateRoom)
		r.Get("/{roomID}/messages", h.GetRoomMessages)
	})

	r.Get("/ws/{roomID}/{userID}", h.ServeWS)

	return r
}
