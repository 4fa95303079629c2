package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/drivesink/drivesink/internal/config"
	"github.com/drivesink/drivesink/internal/logging"
	"github.com/drivesink/drivesink/internal/sync"
	"github.com/drivesink/drivesink/internal/types"
	"github.com/drivesink/drivesink/internal/utils"
)

// Runner is the engine surface the trigger needs.
type Runner interface {
	Run(ctx context.Context, cfg sync.RunConfig) (*types.RunStatistics, error)
}

// Server exposes the sync trigger over HTTP.
type Server struct {
	runner  Runner
	baseCfg sync.RunConfig
	logger  logging.Logger
}

// NewServer wraps an engine. baseCfg carries the configured defaults that
// per-request overrides are applied on top of.
func NewServer(runner Runner, baseCfg sync.RunConfig, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Server{runner: runner, baseCfg: baseCfg, logger: logger}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	if r.URL.Path == "/v1/sync" && (r.Method == http.MethodGet || r.Method == http.MethodPost) {
		s.handleSync(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
}

type syncResponse struct {
	Status     string               `json:"status"`
	ExitCode   int                  `json:"exitCode"`
	Statistics *types.RunStatistics `json:"statistics,omitempty"`
	Message    string               `json:"message,omitempty"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.requestConfig(r)
	if err != nil {
		// Bad overrides are rejected before the engine sees anything
		writeError(w, http.StatusBadRequest, utils.ErrCodeInvalidArgument, err.Error())
		return
	}

	traceID := uuid.New().String()
	logger := s.logger.WithTraceID(traceID)
	logger.Info("sync triggered over http",
		logging.F("method", r.Method),
		logging.F("forceFullSync", cfg.ForceFullSync),
		logging.F("dryRun", cfg.DryRun),
	)

	stats, runErr := s.runner.Run(logging.ContextWithTraceID(r.Context(), traceID), cfg)
	if runErr != nil {
		code := utils.ErrorCode(runErr)
		writeJSON(w, http.StatusInternalServerError, syncResponse{
			Status:   "error",
			ExitCode: utils.GetExitCode(code),
			Message:  runErr.Error(),
		})
		return
	}

	resp := syncResponse{Status: "ok", ExitCode: utils.ExitSuccess, Statistics: stats}
	if stats.HasFailures() {
		resp.Status = "completed_with_failures"
		resp.ExitCode = utils.ExitPartialFailure
	}
	writeJSON(w, http.StatusOK, resp)
}

// requestConfig merges boolean overrides from the query string (GET) or a
// JSON body (POST) onto the configured defaults. Unknown spellings are
// rejected outright.
func (s *Server) requestConfig(r *http.Request) (sync.RunConfig, error) {
	cfg := s.baseCfg

	var raw map[string]string
	switch r.Method {
	case http.MethodGet:
		raw = flattenQuery(r.URL.Query())
	case http.MethodPost:
		body := map[string]string{}
		if r.Body != nil {
			err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body)
			if err != nil && !errors.Is(err, io.EOF) {
				return cfg, fmt.Errorf("invalid json body: %v", err)
			}
		}
		raw = body
	}

	overrides := []struct {
		key string
		dst *bool
	}{
		{"force_full_sync", &cfg.ForceFullSync},
		{"dry_run", &cfg.DryRun},
		{"delete_orphaned_objects", &cfg.DeleteOrphanedObjects},
		{"sync_permissions", &cfg.SyncPermissions},
	}
	for _, o := range overrides {
		v, ok := raw[o.key]
		if !ok {
			continue
		}
		parsed, err := config.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid value for %s: %v", o.key, err)
		}
		*o.dst = parsed
	}
	return cfg, nil
}

func flattenQuery(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
