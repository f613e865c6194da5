// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LavonTMCQ/spear-agents/internal/domain"
	"github.com/LavonTMCQ/spear-agents/internal/metrics"
	"github.com/LavonTMCQ/spear-agents/internal/schema"
	"github.com/LavonTMCQ/spear-agents/internal/transport/middleware"
	"github.com/LavonTMCQ/spear-agents/internal/workflow/checkin"
)

type startRunRequest struct {
	Email            string `json:"email"`
	CustomerID       string `json:"customer_id"`
	DeviceID         string `json:"device_id"`
	IssueDescription string `json:"issue_description"`
}

type resumeRunRequest struct {
	Approved bool   `json:"approved"`
	Notes    string `json:"notes"`
}

type decisionRequest struct {
	Approved bool   `json:"approved"`
	Notes    string `json:"notes"`
}

type Deps struct {
	Checkin    WorkflowRunner
	Tools      ToolInvoker
	Knowledge  KnowledgeSearcher
	Health     HealthChecker
	Logger     *slog.Logger
	AdminToken string
	Version    string
	Commit     string
	BuildDate  string
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			if err := deps.Health.Check(r.Context()); err != nil {
				logger.Error("health check failed", "error", err)
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- WORKFLOW RUNS ----------------

	r.Post("/workflows/"+checkin.WorkflowName+"/runs", func(w http.ResponseWriter, r *http.Request) {
		reqBody, err := decodeStartRunRequest(r)
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		run, err := deps.Checkin.Start(r.Context(), startInput(reqBody))
		if err != nil {
			var verr *schema.ValidationError
			if errors.As(err, &verr) {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error":      "workflow input rejected",
					"violations": verr.Violations,
				})
				return
			}
			logger.Error("start run failed", "error", err)
			http.Error(w, "failed to start run", http.StatusInternalServerError)
			return
		}

		status := http.StatusOK
		if run.Status == domain.RunSuspended {
			status = http.StatusAccepted
		}
		writeJSON(w, status, run)
	})

	r.Get("/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid run ID", http.StatusBadRequest)
			return
		}

		run, err := deps.Checkin.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrRunNotFound) {
				http.Error(w, "run not found", http.StatusNotFound)
				return
			}
			logger.Error("get run failed", "run_id", id, "error", err)
			http.Error(w, "failed to load run", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	r.Post("/runs/{id}/resume", func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid run ID", http.StatusBadRequest)
			return
		}

		var reqBody resumeRunRequest
		if err := decodeJSON(r, &reqBody); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		run, err := deps.Checkin.Resume(r.Context(), id, domain.ResumeDecision{
			Approved: reqBody.Approved,
			Notes:    reqBody.Notes,
		})
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrRunNotFound):
				http.Error(w, "run not found", http.StatusNotFound)
			case errors.Is(err, domain.ErrRunNotSuspended):
				http.Error(w, "run is not suspended", http.StatusConflict)
			default:
				logger.Error("resume run failed", "run_id", id, "error", err)
				http.Error(w, "failed to resume run", http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	// ---------------- TOOLS ----------------

	r.Post("/tools/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		var input map[string]any
		if err := decodeJSON(r, &input); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if input == nil {
			input = map[string]any{}
		}

		result, pending, err := deps.Tools.Invoke(r.Context(), name, input)
		if err != nil {
			if errors.Is(err, domain.ErrUnknownTool) {
				http.Error(w, "unknown tool", http.StatusNotFound)
				return
			}
			logger.Error("tool invocation failed", "tool", name, "error", err)
			http.Error(w, "tool invocation failed", http.StatusInternalServerError)
			return
		}

		if pending != nil {
			writeJSON(w, http.StatusAccepted, map[string]any{
				"approval_id": pending.ID.String(),
				"tool_name":   pending.ToolName,
				"status":      pending.Status,
			})
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	// ---------------- APPROVAL REVIEW (ADMIN) ----------------

	r.Route("/approvals", func(admin chi.Router) {
		admin.Use(middleware.AdminTokenAuth(deps.AdminToken, logger))

		admin.Get("/", func(w http.ResponseWriter, r *http.Request) {
			pending, err := deps.Tools.Pending(r.Context())
			if err != nil {
				logger.Error("list approvals failed", "error", err)
				http.Error(w, "failed to list approvals", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"approvals": pending,
			})
		})

		admin.Post("/{id}/decision", func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(chi.URLParam(r, "id"))
			if err != nil {
				http.Error(w, "invalid approval ID", http.StatusBadRequest)
				return
			}

			var reqBody decisionRequest
			if err := decodeJSON(r, &reqBody); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			result, err := deps.Tools.Decide(r.Context(), id, reqBody.Approved, reqBody.Notes)
			if err != nil {
				switch {
				case errors.Is(err, domain.ErrApprovalNotFound):
					http.Error(w, "approval request not found", http.StatusNotFound)
				case errors.Is(err, domain.ErrApprovalResolved):
					http.Error(w, "approval request already resolved", http.StatusConflict)
				default:
					logger.Error("approval decision failed", "approval_id", id, "error", err)
					http.Error(w, "failed to apply decision", http.StatusInternalServerError)
				}
				return
			}
			writeJSON(w, http.StatusOK, result)
		})
	})

	// ---------------- KNOWLEDGE ----------------

	if deps.Knowledge != nil {
		r.Get("/knowledge/search", func(w http.ResponseWriter, r *http.Request) {
			query := strings.TrimSpace(r.URL.Query().Get("q"))
			if query == "" {
				http.Error(w, "missing query parameter q", http.StatusBadRequest)
				return
			}

			snippets, err := deps.Knowledge.Search(r.Context(), query)
			if err != nil {
				logger.Error("knowledge search failed", "error", err)
				http.Error(w, "search failed", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"snippets": snippets,
			})
		})
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeStartRunRequest(r *http.Request) (startRunRequest, error) {
	var req startRunRequest
	if err := decodeJSON(r, &req); err != nil {
		return startRunRequest{}, err
	}
	req.Email = strings.TrimSpace(req.Email)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	return req, nil
}

// startInput builds the workflow input record, leaving out empty fields so
// shape validation sees only what the caller actually supplied.
func startInput(req startRunRequest) map[string]any {
	input := map[string]any{}
	if req.Email != "" {
		input["email"] = req.Email
	}
	if req.CustomerID != "" {
		input["customer_id"] = req.CustomerID
	}
	if req.DeviceID != "" {
		input["device_id"] = req.DeviceID
	}
	if req.IssueDescription != "" {
		input["issue_description"] = req.IssueDescription
	}
	return input
}

func decodeJSON(r *http.Request, v any) error {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	// Ensure there is only one JSON object.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain exactly one JSON object")
	}
	return nil
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
