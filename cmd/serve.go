package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-av/leadscan/internal/model"
	"github.com/meridian-av/leadscan/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP surface for event submission and health checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		r := newRouter(st)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(st store.Store) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := "ok"
		code := http.StatusOK
		if err := st.Ping(req.Context()); err != nil {
			status = "store unavailable"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{
			"status":     status,
			"configured": configuredCollaborators(),
		})
	})

	r.Post("/api/ingest", func(w http.ResponseWriter, req *http.Request) {
		var in struct {
			URL         string    `json:"url"`
			Title       string    `json:"title"`
			Body        string    `json:"body"`
			PublishedAt time.Time `json:"published_at"`
			Language    string    `json:"language"`
			Origin      string    `json:"origin"`
		}
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if in.URL == "" || in.Title == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url and title are required"})
			return
		}
		if in.PublishedAt.IsZero() {
			in.PublishedAt = time.Now().UTC()
		}

		ev := &model.RawEvent{
			ID:          model.EventID(in.URL),
			URL:         in.URL,
			Title:       in.Title,
			Body:        in.Body,
			PublishedAt: in.PublishedAt,
			Language:    in.Language,
			Origin:      in.Origin,
		}
		inserted, err := st.InsertRawEvent(req.Context(), ev)
		if err != nil {
			zap.L().Error("api ingest failed", zap.String("url", in.URL), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store write failed"})
			return
		}

		code := http.StatusCreated
		if !inserted {
			code = http.StatusOK
		}
		writeJSON(w, code, map[string]any{"id": ev.ID, "inserted": inserted})
	})

	r.Get("/api/quarantine", func(w http.ResponseWriter, req *http.Request) {
		entries, err := st.ListQuarantine(req.Context(), 100)
		if err != nil {
			zap.L().Error("api quarantine list failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store read failed"})
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})

	return r
}

// configuredCollaborators reports which optional external pieces the
// current configuration wires in, so operators can spot a missing key or
// artifact path from the health endpoint alone.
func configuredCollaborators() map[string]bool {
	return map[string]bool{
		"anthropic_key": cfg.Anthropic.Key != "",
		"webhook":       cfg.Notify.WebhookURL != "",
		"artifact":      cfg.Reconcile.ArtifactPath != "",
		"mirror_store":  cfg.Store.SecondaryURL != "",
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
