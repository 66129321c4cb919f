package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/TagLab-io/taglab/internal/auth"
	"github.com/TagLab-io/taglab/internal/config"
	"github.com/TagLab-io/taglab/internal/logutil"
	"github.com/TagLab-io/taglab/internal/store"
)

// API ties the router to the store and the auth components. All handler
// dependencies are injected here; there is no package-level state.
type API struct {
	Config *config.Config
	Router *chi.Mux

	store  *store.Store
	tokens *auth.TokenManager
	hasher *auth.PasswordHasher
}

// New builds the API and its routes.
func New(cfg *config.Config, st *store.Store) (*API, error) {
	if cfg.APIPort == 0 {
		return nil, errors.New("must have at least a port to start API")
	}

	api := &API{
		Config: cfg,
		Router: chi.NewRouter(),
		store:  st,
		tokens: auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration),
		hasher: auth.NewPasswordHasher(0),
	}
	api.setupRoutes()
	return api, nil
}

func (api *API) setupRoutes() {
	r := api.Router

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   api.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", api.Health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", api.RegisterHandler)
		r.Post("/login", api.LoginHandler)
		r.Get("/status", api.StatusHandler)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate(api.tokens))
			r.Post("/logout", api.LogoutHandler)
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Authenticate(api.tokens))

		r.Get("/settings", api.ListSettingsHandler)
		r.Post("/settings", api.CreateSettingHandler)
		r.Put("/settings/{id}", api.UpdateSettingHandler)
		r.Delete("/settings/{id}", api.DeleteSettingHandler)

		r.Get("/events", api.ListEventsHandler)
		r.Post("/events", api.CreateEventHandler)
	})
}

// newServer builds the HTTP server. Request contexts carry the logger from
// ctx but not its cancellation, so in-flight requests keep the full shutdown
// grace period.
func (api *API) newServer(ctx context.Context) *http.Server {
	baseCtx := logutil.WithLogger(context.Background(), logutil.GetOrDefault(ctx))
	return &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", api.Config.APIPort),
		Handler:           api.Router,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		ReadHeaderTimeout: time.Minute,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       5 * time.Minute,
	}
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (api *API) Serve(ctx context.Context) error {
	server := api.newServer(ctx)

	log := logutil.GetOrDefault(ctx)
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("starting API server")
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		log.Info().Msg("shutting down API server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

func (api *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger := logutil.GetOrDefault(r.Context())
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError emits the one error body shape used across the API.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
