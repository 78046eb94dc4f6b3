package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CrowderSoup/boardsync/config"
	"github.com/CrowderSoup/boardsync/database"
	"github.com/CrowderSoup/boardsync/handlers"
	"github.com/CrowderSoup/boardsync/logger"
	"github.com/CrowderSoup/boardsync/services"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API and realtime relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg

	// Initialize database
	db, err := database.InitDB(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	// Initialize services
	store := database.NewStore(db)
	authService := services.NewAuthService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpireHour)*time.Hour)

	// Initialize WebSocket hub
	hub := services.NewHub(store)
	go hub.Run()
	defer hub.Shutdown()

	limiter := services.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	limiter.StartCleanup(time.Minute, 10*time.Minute, ctx.Done())

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      newRouter(cfg, store, authService, hub, limiter),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("Server starting")
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newRouter builds the full HTTP surface: health check, REST API and the
// websocket endpoint, behind rate limiting, request logging and CORS.
func newRouter(cfg *config.Config, store *database.Store, authService *services.AuthService, hub *services.Hub, limiter *services.RateLimiter) http.Handler {
	// Setup router
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(limiter.Middleware)
	handlers.Register(api,
		handlers.NewAuthMiddleware(authService),
		handlers.NewBoardHandler(store, hub),
		handlers.NewWSHandler(authService, hub, cfg.Server.AllowedOrigins))

	// Setup CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	return c.Handler(logger.Middleware(r))
}
