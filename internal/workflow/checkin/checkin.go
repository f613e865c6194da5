// SPDX-License-Identifier: Apache-2.0

// Package checkin defines the "can't check in" diagnostic workflow: resolve
// the customer, collect device and subscription signals, diagnose, ask a
// human when needed, and open a ticket for unresolved cases.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/LavonTMCQ/spear-agents/internal/domain"
	"github.com/LavonTMCQ/spear-agents/internal/engine"
	"github.com/LavonTMCQ/spear-agents/internal/schema"
	"github.com/LavonTMCQ/spear-agents/internal/spearapi"
)

const WorkflowName = "cant-check-in"

// resumeLabel tags the suspension so the review UI knows what decision
// payload to collect.
const resumeLabel = "admin-approval"

// AccountAPI is the slice of the SPEAR client this workflow needs.
type AccountAPI interface {
	LookupCustomer(ctx context.Context, email string) (spearapi.Customer, error)
	GetSubscription(ctx context.Context, customerID string) (spearapi.Subscription, error)
	ListDevices(ctx context.Context, customerID, deviceID string) ([]spearapi.Device, error)
	CreateTicket(ctx context.Context, req spearapi.TicketRequest) (string, error)
}

// New builds the workflow engine for this pipeline.
func New(api AccountAPI, store engine.RunStore, logger *slog.Logger) (*engine.Engine, error) {
	if api == nil {
		return nil, errors.New("account api is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return engine.New(WorkflowName, Steps(api, logger), store, logger)
}

// Steps returns the ordered step list.
func Steps(api AccountAPI, logger *slog.Logger) []engine.Step {
	return []engine.Step{
		resolveCustomer(api),
		fetchSignals(api),
		diagnose(),
		requestApproval(),
		finalize(api, logger),
	}
}

var startShape = schema.MustShape(`{
	"type": "object",
	"properties": {
		"email": {"type": "string"},
		"customer_id": {"type": "string"},
		"device_id": {"type": "string"},
		"issue_description": {"type": "string"}
	},
	"anyOf": [
		{"required": ["email"]},
		{"required": ["customer_id"]}
	],
	"additionalProperties": false
}`)

var resolvedShape = schema.MustShape(`{
	"type": "object",
	"properties": {
		"customer_id": {"type": "string"},
		"customer_name": {"type": "string"},
		"subscription_status": {"type": "string"},
		"lookup_error": {"type": "string"},
		"device_id": {"type": "string"},
		"issue_description": {"type": "string"}
	}
}`)

var signalsShape = schema.MustShape(`{
	"type": "object",
	"required": ["devices"],
	"properties": {
		"customer_id": {"type": "string"},
		"subscription_status": {"type": "string"},
		"lookup_error": {"type": "string"},
		"devices": {"type": "array", "items": {"type": "object"}},
		"issue_description": {"type": "string"}
	}
}`)

var diagnosisShape = schema.MustShape(`{
	"type": "object",
	"required": ["summary", "actions", "requires_human", "reason"],
	"properties": {
		"summary": {"type": "string"},
		"actions": {"type": "array", "items": {"type": "string"}},
		"requires_human": {"type": "boolean"},
		"reason": {"type": "string"},
		"customer_id": {"type": "string"},
		"issue_description": {"type": "string"}
	}
}`)

var approvedShape = schema.MustShape(`{
	"type": "object",
	"required": ["summary", "actions", "requires_human", "approved"],
	"properties": {
		"summary": {"type": "string"},
		"actions": {"type": "array", "items": {"type": "string"}},
		"requires_human": {"type": "boolean"},
		"approved": {"type": "boolean"},
		"approval_notes": {"type": "string"},
		"reason": {"type": "string"},
		"customer_id": {"type": "string"},
		"issue_description": {"type": "string"}
	}
}`)

var finalShape = schema.MustShape(`{
	"type": "object",
	"required": ["summary", "actions", "requires_human", "ticket_id"],
	"properties": {
		"summary": {"type": "string"},
		"actions": {"type": "array", "items": {"type": "string"}},
		"requires_human": {"type": "boolean"},
		"ticket_id": {"type": ["string", "null"]}
	}
}`)

// resolveCustomer turns an email or customer id into an account. A missed
// lookup becomes a lookup_error signal for the diagnosis, never a run failure.
func resolveCustomer(api AccountAPI) engine.Step {
	return engine.Step{
		ID:          "resolve-customer",
		InputShape:  startShape,
		OutputShape: resolvedShape,
		Execute: func(ctx context.Context, sc engine.StepContext) (map[string]any, *domain.SuspendRequest, error) {
			out := map[string]any{
				"device_id":         str(sc.Input, "device_id"),
				"issue_description": str(sc.Input, "issue_description"),
			}

			if id := str(sc.Input, "customer_id"); id != "" {
				out["customer_id"] = id
				out["lookup_error"] = ""
				return out, nil, nil
			}

			cust, err := api.LookupCustomer(ctx, str(sc.Input, "email"))
			if err != nil {
				out["customer_id"] = ""
				if errors.Is(err, spearapi.ErrNotFound) {
					out["lookup_error"] = fmt.Sprintf("no account found for %s", str(sc.Input, "email"))
				} else {
					out["lookup_error"] = fmt.Sprintf("account lookup failed: %v", err)
				}
				return out, nil, nil
			}

			out["customer_id"] = cust.ID
			out["customer_name"] = cust.Name
			out["subscription_status"] = cust.SubscriptionStatus
			out["lookup_error"] = ""
			return out, nil, nil
		},
	}
}

// fetchSignals collects subscription and device state. Upstream failures
// degrade to weaker signals (empty device list, lookup-time subscription
// status) so diagnosis can still proceed. Device records are normalized to
// plain maps because the context round-trips through JSON storage.
func fetchSignals(api AccountAPI) engine.Step {
	return engine.Step{
		ID:          "fetch-signals",
		InputShape:  resolvedShape,
		OutputShape: signalsShape,
		Execute: func(ctx context.Context, sc engine.StepContext) (map[string]any, *domain.SuspendRequest, error) {
			out := map[string]any{
				"customer_id":         str(sc.Input, "customer_id"),
				"lookup_error":        str(sc.Input, "lookup_error"),
				"subscription_status": str(sc.Input, "subscription_status"),
				"issue_description":   str(sc.Input, "issue_description"),
				"devices":             []any{},
			}

			customerID := str(sc.Input, "customer_id")
			if customerID == "" {
				return out, nil, nil
			}

			if sub, err := api.GetSubscription(ctx, customerID); err == nil {
				out["subscription_status"] = sub.Status
			} else if errors.Is(err, spearapi.ErrNotFound) {
				out["subscription_status"] = "none"
			}

			devices, err := api.ListDevices(ctx, customerID, str(sc.Input, "device_id"))
			if err != nil {
				return out, nil, nil
			}
			normalized := make([]any, 0, len(devices))
			for _, d := range devices {
				normalized = append(normalized, map[string]any{
					"device_id": d.DeviceID,
					"status":    d.Status,
					"is_online": d.IsOnline,
				})
			}
			out["devices"] = normalized
			return out, nil, nil
		},
	}
}

func diagnose() engine.Step {
	return engine.Step{
		ID:          "diagnose",
		InputShape:  signalsShape,
		OutputShape: diagnosisShape,
		Execute: func(ctx context.Context, sc engine.StepContext) (map[string]any, *domain.SuspendRequest, error) {
			diag := Diagnose(signalsFromContext(sc.Input))

			actions := make([]any, len(diag.Actions))
			for i, a := range diag.Actions {
				actions[i] = a
			}
			return map[string]any{
				"summary":           diag.Summary,
				"actions":           actions,
				"requires_human":    diag.RequiresHuman,
				"reason":            diag.Reason,
				"customer_id":       str(sc.Input, "customer_id"),
				"issue_description": str(sc.Input, "issue_description"),
			}, nil, nil
		},
	}
}

// requestApproval suspends when the diagnosis needs a human. When it does
// not, the run continues as if approved so no ticket is opened.
func requestApproval() engine.Step {
	return engine.Step{
		ID:          "request-approval",
		InputShape:  diagnosisShape,
		OutputShape: approvedShape,
		Execute: func(ctx context.Context, sc engine.StepContext) (map[string]any, *domain.SuspendRequest, error) {
			out := map[string]any{}
			for k, v := range sc.Input {
				out[k] = v
			}

			if !boolean(sc.Input, "requires_human") {
				out["approved"] = true
				out["approval_notes"] = ""
				return out, nil, nil
			}

			if sc.Decision == nil {
				return nil, &domain.SuspendRequest{
					Reason:      str(sc.Input, "summary"),
					Actions:     strSlice(sc.Input, "actions"),
					ResumeLabel: resumeLabel,
				}, nil
			}

			out["approved"] = sc.Decision.Approved
			out["approval_notes"] = sc.Decision.Notes
			return out, nil, nil
		},
	}
}

// finalize opens a ticket when the case is still unresolved. A ticket
// creation failure degrades to ticket_id null; it never fails the run.
func finalize(api AccountAPI, logger *slog.Logger) engine.Step {
	return engine.Step{
		ID:          "finalize",
		InputShape:  approvedShape,
		OutputShape: finalShape,
		Execute: func(ctx context.Context, sc engine.StepContext) (map[string]any, *domain.SuspendRequest, error) {
			approved := boolean(sc.Input, "approved")
			actions := strSlice(sc.Input, "actions")

			out := map[string]any{
				"summary":        str(sc.Input, "summary"),
				"actions":        toAny(actions),
				"requires_human": !approved,
				"ticket_id":      nil,
			}
			if approved {
				return out, nil, nil
			}

			// Even an unresolved account gets a ticket; the description carries
			// whatever identity the caller supplied so an agent can follow up.
			customerID := str(sc.Input, "customer_id")
			description := fmt.Sprintf("Diagnosis: %s\nReason: %s\nReported issue: %s\nReviewer notes: %s",
				str(sc.Input, "summary"),
				str(sc.Input, "reason"),
				str(sc.Input, "issue_description"),
				str(sc.Input, "approval_notes"))

			ticketID, err := api.CreateTicket(ctx, spearapi.TicketRequest{
				CustomerID:  customerID,
				Subject:     "Customer cannot check in",
				Description: description,
				Priority:    "high",
			})
			if err != nil {
				logger.Error("ticket creation failed",
					"workflow", WorkflowName,
					"customer_id", customerID,
					"error", err,
				)
				return out, nil, nil
			}

			out["ticket_id"] = ticketID
			return out, nil, nil
		},
	}
}

func signalsFromContext(in map[string]any) Signals {
	s := Signals{
		LookupError:        str(in, "lookup_error"),
		SubscriptionStatus: str(in, "subscription_status"),
	}
	if raw, ok := in["devices"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			s.Devices = append(s.Devices, DeviceSignal{
				ID:     str(m, "device_id"),
				Online: boolean(m, "is_online"),
			})
		}
	}
	return s
}

// str and friends tolerate JSON-decoded context values.
func str(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func boolean(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func strSlice(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
