package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/routelab/routeplan-cli/internal/model"
	"github.com/routelab/routeplan-cli/internal/pipeline"
	"github.com/routelab/routeplan-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP planning service",
	Long:  "Accepts stop spreadsheets over HTTP and returns the delivery archive. Used by chat-bot integrations.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPlanEnv(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newServeMux(env),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newServeMux(env *planEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/v1/plan", handlePlan(env))
	r.Get("/api/v1/runs", handleListRuns(env))
	r.Get("/api/v1/runs/{id}", handleGetRun(env))

	return r
}

// handlePlan accepts a multipart upload ("file", optional "title"),
// runs the pipeline synchronously, and streams the archive back.
func handlePlan(env *planEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := req.ParseMultipartForm(16 << 20); err != nil {
			writeError(w, model.NewError(model.KindMalformedInput, "upload", err))
			return
		}
		file, header, err := req.FormFile("file")
		if err != nil {
			writeError(w, model.NewError(model.KindMalformedInput, "upload", eris.Wrap(err, "missing file field")))
			return
		}
		defer file.Close()

		// Stage the upload; ingest dispatches on the extension.
		dir, err := os.MkdirTemp("", "routeplan-upload-*")
		if err != nil {
			writeError(w, eris.Wrap(err, "stage upload"))
			return
		}
		defer os.RemoveAll(dir)

		inputPath := filepath.Join(dir, filepath.Base(header.Filename))
		dst, err := os.Create(inputPath)
		if err != nil {
			writeError(w, eris.Wrap(err, "stage upload"))
			return
		}
		if _, err := io.Copy(dst, file); err != nil {
			dst.Close()
			writeError(w, eris.Wrap(err, "stage upload"))
			return
		}
		if err := dst.Close(); err != nil {
			writeError(w, eris.Wrap(err, "stage upload"))
			return
		}

		title := req.FormValue("title")
		if title == "" {
			title = "Route plan"
		}

		outPath := filepath.Join(dir, "route.zip")
		result, err := env.Planner.Run(req.Context(), pipeline.Request{
			InputPath:  inputPath,
			Title:      title,
			OutputPath: outPath,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		archive, err := os.Open(result.ArchivePath)
		if err != nil {
			writeError(w, eris.Wrap(err, "open archive"))
			return
		}
		defer archive.Close()

		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", `attachment; filename="route.zip"`)
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, archive); err != nil {
			zap.L().Warn("serve: archive stream interrupted", zap.Error(err))
		}
	}
}

func handleListRuns(env *planEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		filter := store.RunFilter{
			Status: model.RunStatus(req.URL.Query().Get("status")),
		}
		if limit := req.URL.Query().Get("limit"); limit != "" {
			n, err := strconv.Atoi(limit)
			if err != nil {
				writeError(w, model.NewError(model.KindMalformedInput, "limit", err))
				return
			}
			filter.Limit = n
		}

		runs, err := env.Store.ListRuns(req.Context(), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		if runs == nil {
			runs = []model.Run{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	}
}

func handleGetRun(env *planEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		run, err := env.Store.GetRun(req.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		stages, err := env.Store.ListStages(req.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if stages == nil {
			stages = []model.RunStage{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"run": run, "stages": stages})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps pipeline error kinds onto HTTP statuses: caller
// faults are 4xx, provider faults are 502.
func writeError(w http.ResponseWriter, err error) {
	kind := model.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case model.KindMalformedInput:
		status = http.StatusBadRequest
	case model.KindGeocodeNotFound, model.KindRoutingNoRoute:
		status = http.StatusUnprocessableEntity
	case model.KindGeocodeRateLimited:
		status = http.StatusTooManyRequests
	case model.KindGeocodeUnavailable, model.KindRoutingUnavailable,
		model.KindRoutingInconsistent, model.KindPolylineMalformed:
		status = http.StatusBadGateway
	case model.KindCancelled:
		status = 499
	}

	body := map[string]string{"error": err.Error()}
	if kind != "" {
		body["kind"] = string(kind)
		if hint := kind.Hint(); hint != "" {
			body["hint"] = hint
		}
	}
	writeJSON(w, status, body)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
