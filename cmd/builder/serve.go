package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/moduleforge/builder/internal/config"
	"github.com/moduleforge/builder/internal/events"
	"github.com/moduleforge/builder/internal/idtypes"
	"github.com/moduleforge/builder/internal/manifest"
	"github.com/moduleforge/builder/internal/orchestrator"
	"github.com/moduleforge/builder/internal/policy"
)

func newServeCmd() *cobra.Command {
	var (
		addr          string
		configPath    string
		temporalHost  string
		taskQueue     string
		maxQueued     int
		logLevel      string
		logFormat     string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the build intake HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(serveOptions{
				addr:         addr,
				configPath:   configPath,
				temporalHost: temporalHost,
				taskQueue:    taskQueue,
				maxQueued:    maxQueued,
				logLevel:     logLevel,
				logFormat:    logFormat,
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address")
	cmd.Flags().StringVar(&configPath, "config", "/etc/builder/config.yaml", "path to config.yaml")
	cmd.Flags().StringVar(&temporalHost, "temporal-host", "localhost:7233", "Temporal frontend address")
	cmd.Flags().StringVar(&taskQueue, "task-queue", "builder-jobs", "Temporal task queue")
	cmd.Flags().IntVar(&maxQueued, "max-queued", 100, "maximum pending build submissions")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "zap log level")
	cmd.Flags().StringVar(&logFormat, "log-format", "json", "log encoding: json or console")
	return cmd
}

type serveOptions struct {
	addr, configPath, temporalHost, taskQueue, logLevel, logFormat string
	maxQueued                                                      int
}

func runServe(opts serveOptions) error {
	log, err := events.NewLogger(opts.logLevel, opts.logFormat)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defaultProfile, ok := cfg.Profiles["default"]
	if !ok {
		return fmt.Errorf("config %s: missing required %q profile", opts.configPath, "default")
	}

	temporalClient, err := client.Dial(client.Options{HostPort: opts.temporalHost})
	if err != nil {
		return fmt.Errorf("dial temporal: %w", err)
	}
	defer temporalClient.Close()

	intake := orchestrator.NewIntake(temporalClient, opts.taskQueue, opts.maxQueued)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "Idempotency-Key"},
	}))

	h := &intakeHandler{intake: intake, log: log, defaultProfile: defaultProfile}
	router.Get("/healthz", h.handleHealth)
	router.Post("/builds", h.handleSubmit)
	router.Get("/builds/{idempotency_key}", h.handleStatus)

	log.Info("serve starting", zap.String("addr", opts.addr))
	return http.ListenAndServe(opts.addr, router)
}

type intakeHandler struct {
	intake         *orchestrator.Intake
	log            *zap.Logger
	defaultProfile policy.Profile
}

// submitRequest is the wire shape POST /builds accepts.
type submitRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	ModuleID       string `json:"module_id"`
	Intent         string `json:"intent"`
	SchemaID       string `json:"schema_id"`
	EntryPoint     string `json:"entry_point"`
}

func (h *intakeHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *intakeHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IdempotencyKey == "" || req.ModuleID == "" || req.Intent == "" {
		writeJSONError(w, http.StatusBadRequest, "idempotency_key, module_id, and intent are required")
		return
	}

	moduleID, err := idtypes.ParseModuleID(req.ModuleID)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := orchestrator.BuildJob{
		JobID:         idtypes.NewJobID(),
		CorrelationID: idtypes.NewCorrelationID(),
		ModuleID:      moduleID,
		Intent:        req.Intent,
		Profile:       h.defaultProfile,
		Stage:         orchestrator.StageInit,
	}
	wfReq := orchestrator.BuildWorkflowRequest{
		Job:        job,
		Prompt:     req.Intent,
		SchemaID:   req.SchemaID,
		EntryPoint: req.EntryPoint,
		Manifest:   manifest.Manifest{},
	}

	result, err := h.intake.Submit(r.Context(), req.IdempotencyKey, wfReq)
	if err != nil {
		h.log.Warn("submit rejected", zap.String("idempotency_key", req.IdempotencyKey), zap.Error(err))
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":  result.JobID.String(),
		"deduped": result.Deduped,
	})
}

func (h *intakeHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "idempotency_key")
	status, err := h.intake.Status(r.Context(), key)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	if status.Running {
		writeJSON(w, http.StatusOK, map[string]any{"running": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"running":        false,
		"stage":          status.Stage,
		"attestation_id": status.AttestedID,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
