package app

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/meddy-health/meddy/internal/api/handlers"
	appMiddleware "github.com/meddy-health/meddy/internal/api/middlewares"
	"github.com/meddy-health/meddy/internal/config"
	"github.com/meddy-health/meddy/internal/services"
)

// Services are the domain services the HTTP layer exposes.
type Services struct {
	Users       *services.UserService
	Chats       *services.ChatService
	Documents   *services.DocumentService
	Attachments *services.AttachmentService
}

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewRouter builds and wires all routes.
func NewRouter(cfg *config.Config, svc Services) http.Handler {
	authHandler := handlers.NewAuthHandler(svc.Users, cfg.JWTSecret, cfg.TokenTTL)
	chatHandler := handlers.NewChatHandler(svc.Chats)
	docHandler := handlers.NewDocumentHandler(svc.Documents)
	userHandler := handlers.NewUserHandler(svc.Users)
	fileHandler := handlers.NewAttachmentHandler(svc.Attachments)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Vercel-AI-Data-Stream"},
		AllowCredentials: true,
	}))

	// Serve static files from the web directory
	fileServer := http.FileServer(http.Dir(cfg.WebDir))
	r.Handle("/*", fileServer)

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Group(func(public chi.Router) {
			public.Use(middleware.Timeout(cfg.RequestTimeout))
			public.Post("/signup", authHandler.Signup)
			public.Post("/login", authHandler.Login)
			public.Get("/models", chatHandler.ListModels)
		})

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWT(cfg.JWTSecret))

			// long-lived data stream
			protected.Post("/chat", chatHandler.StreamChat)

			protected.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(cfg.RequestTimeout))
				r.Delete("/chat", chatHandler.DeleteChat)
				r.Get("/chat/{id}", chatHandler.GetChat)
				r.Patch("/chat/{id}/visibility", chatHandler.UpdateVisibility)
				r.Get("/history", chatHandler.History)
				r.Delete("/messages/{id}/trailing", chatHandler.DeleteTrailingMessages)

				r.Get("/document", docHandler.GetDocument)
				r.Post("/document", docHandler.SaveDocument)
				r.Patch("/document", docHandler.DeleteRevisions)
				r.Get("/suggestions", docHandler.GetSuggestions)

				r.Get("/user/{id}", userHandler.GetUser)

				r.Post("/files/upload", fileHandler.Upload)
				r.Get("/files", fileHandler.List)
			})
		})
	})

	return r
}

func NewServer(cfg *config.Config, svc Services) *Server {
	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: NewRouter(cfg, svc),
	}
	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
