package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clearclaim/docintel/internal/model"
	"github.com/clearclaim/docintel/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start webhook server for document processing requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(ctx, env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("server listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the HTTP surface over an initialized pipeline. Processing
// runs asynchronously against baseCtx so webhook callers get an immediate
// 202 and in-flight runs survive slow clients but not server shutdown.
func newRouter(baseCtx context.Context, env *pipelineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/webhook/process", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			TenantID  string `json:"tenant_id"`
			Kind      string `json:"kind"`
			ClaimType string `json:"claim_type"`
			MediaType string `json:"media_type"`
			Document  string `json:"document"` // base64
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if body.TenantID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant_id is required"})
			return
		}
		kind := model.DocumentKind(body.Kind)
		if !kind.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid kind"})
			return
		}
		doc, err := base64.StdEncoding.DecodeString(body.Document)
		if err != nil || len(doc) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document must be non-empty base64"})
			return
		}

		mediaType := body.MediaType
		if mediaType == "" {
			mediaType = "application/pdf"
		}

		ref := uuid.New().String()
		if err := env.Store.PutDocument(req.Context(), ref, mediaType, doc); err != nil {
			zap.L().Error("webhook: store document", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not store document"})
			return
		}

		run, err := env.Store.CreateRun(req.Context(), &model.PipelineRun{
			TenantID:    body.TenantID,
			DocumentRef: ref,
			Kind:        kind,
			ClaimType:   body.ClaimType,
		})
		if err != nil {
			zap.L().Error("webhook: create run", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not create run"})
			return
		}

		go func() {
			final, err := env.Runner.Process(baseCtx, run.ID)
			if err != nil {
				zap.L().Error("webhook processing failed",
					zap.String("run_id", run.ID),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("webhook processing finished",
				zap.String("run_id", run.ID),
				zap.String("status", string(final.Status)),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "accepted",
			"run_id": run.ID,
		})
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		runs, err := env.Store.ListRuns(req.Context(), store.RunFilter{
			Status:   model.RunStatus(q.Get("status")),
			TenantID: q.Get("tenant_id"),
		})
		if err != nil {
			zap.L().Error("list runs", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not list runs"})
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		run, err := env.Store.GetRun(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
				return
			}
			zap.L().Error("get run", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load run"})
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	r.Post("/runs/{id}/retry", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		run, err := env.Store.GetRun(req.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
				return
			}
			zap.L().Error("get run for retry", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load run"})
			return
		}
		if !run.Status.CanProcess() {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "run is " + string(run.Status) + " and cannot be retried"})
			return
		}

		go func() {
			if _, err := env.Runner.Process(baseCtx, id); err != nil {
				zap.L().Error("retry processing failed", zap.String("run_id", id), zap.Error(err))
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "accepted",
			"run_id": id,
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
