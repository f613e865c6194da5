// SPDX-License-Identifier: Apache-2.0

// Package tools defines the concrete support tools. Customer-facing tools
// are read-only or low-risk; admin tools that move money or change accounts
// carry RequiresApproval and only run through the approval gate.
package tools

import (
	"context"
	"errors"
	"time"

	"github.com/LavonTMCQ/spear-agents/internal/knowledge"
	"github.com/LavonTMCQ/spear-agents/internal/schema"
	"github.com/LavonTMCQ/spear-agents/internal/spearapi"
	"github.com/LavonTMCQ/spear-agents/internal/tool"
)

// AccountAPI is the slice of the SPEAR client the tools need.
type AccountAPI interface {
	LookupCustomer(ctx context.Context, email string) (spearapi.Customer, error)
	GetSubscription(ctx context.Context, customerID string) (spearapi.Subscription, error)
	ListDevices(ctx context.Context, customerID, deviceID string) ([]spearapi.Device, error)
	GetOrder(ctx context.Context, orderID string) (spearapi.Order, error)
	CreateTicket(ctx context.Context, req spearapi.TicketRequest) (string, error)
	ProcessRefund(ctx context.Context, orderID string, amount float64, reason string) (string, float64, error)
	ExtendSubscription(ctx context.Context, subscriptionID string, days int, reason string) (string, error)
	CancelSubscription(ctx context.Context, subscriptionID, reason string, immediate bool) (string, error)
	AssignDevice(ctx context.Context, deviceID, customerID, orderID string) error
	GetRevenueMetrics(ctx context.Context, period string) (spearapi.RevenueMetrics, error)
	ListDisputes(ctx context.Context) ([]spearapi.Dispute, error)
	GetFounderSlots(ctx context.Context) (spearapi.FounderSlots, error)
	SendPasswordReset(ctx context.Context, email string) error
}

// Searcher is the knowledge base lookup the searchKnowledgeBase tool uses.
type Searcher interface {
	Search(ctx context.Context, query string) ([]knowledge.Snippet, error)
}

// Deps carries everything the tool set depends on. Now is injectable so the
// refund eligibility window is testable.
type Deps struct {
	API       AccountAPI
	Knowledge Searcher
	Now       func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// apiFailure maps client errors onto the tool error taxonomy.
func apiFailure(err error) tool.Result {
	switch {
	case errors.Is(err, spearapi.ErrNotFound):
		return tool.Failure(tool.NotFound, err.Error())
	case errors.Is(err, spearapi.ErrUnauthorized):
		return tool.Failure(tool.Unauthorized, err.Error())
	default:
		return tool.Failure(tool.UpstreamUnavailable, err.Error())
	}
}

var emailInput = schema.MustShape(`{
  "type": "object",
  "required": ["email"],
  "properties": {"email": {"type": "string", "format": "email"}},
  "additionalProperties": false
}`)

var customerIDInput = schema.MustShape(`{
  "type": "object",
  "required": ["customer_id"],
  "properties": {"customer_id": {"type": "string", "minLength": 1}},
  "additionalProperties": false
}`)

// Customer returns the customer-facing tool set.
func Customer(d Deps) []*tool.Tool {
	return []*tool.Tool{
		lookupCustomer(d),
		getSubscriptionStatus(d),
		getDeviceStatus(d),
		checkFounderSlots(d),
		checkRefundEligibility(d),
		createSupportTicket(d),
		sendPasswordReset(d),
		searchKnowledgeBase(d),
		troubleshootConnection(),
	}
}

func lookupCustomer(d Deps) *tool.Tool {
	return &tool.Tool{
		Name:        "lookupCustomer",
		Description: "Find a customer account by email address.",
		InputShape:  emailInput,
		OutputShape: schema.MustShape(`{
			"type": "object",
			"required": ["customer_id", "email"],
			"properties": {
				"customer_id": {"type": "string"},
				"name": {"type": "string"},
				"email": {"type": "string"},
				"role": {"type": "string"},
				"subscription_status": {"type": "string"}
			}
		}`),
		Run: func(ctx context.Context, input map[string]any) tool.Result {
			cust, err := d.API.LookupCustomer(ctx, input["email"].(string))
			if err != nil {
				return apiFailure(err)
			}
			return tool.Success(map[string]any{
				"customer_id":         cust.ID,
				"name":                cust.Name,
				"email":               cust.Email,
				"role":                cust.Role,
				"subscription_status": cust.SubscriptionStatus,
			})
		},
	}
}

func getSubscriptionStatus(d Deps) *tool.Tool {
	return &tool.Tool{
		Name:        "getSubscriptionStatus",
		Description: "Fetch subscription status, plan, and billing period for a customer.",
		InputShape:  customerIDInput,
		OutputShape: schema.MustShape(`{
			"type": "object",
			"required": ["status"],
			"properties": {
				"status": {"type": "string"},
				"plan_type": {"type": "string"},
				"current_period_end": {"type": "string"},
				"cancel_at_period_end": {"type": "boolean"}
			}
		}`),
		Run: func(ctx context.Context, input map[string]any) tool.Result {
			sub, err := d.API.GetSubscription(ctx, input["customer_id"].(string))
			if err != nil {
				return apiFailure(err)
			}
			return tool.Success(map[string]any{
				"status":               sub.Status,
				"plan_type":            sub.PlanType,
				"current_period_end":   sub.CurrentPeriodEnd,
				"cancel_at_period_end": sub.CancelAtPeriodEnd,
			})
		},
	}
}

func getDeviceStatus(d Deps) *tool.Tool {
	return &tool.Tool{
		Name:        "getDeviceStatus",
		Description: "List a customer's devices and whether each is online.",
		InputShape: schema.MustShape(`{
			"type": "object",
			"properties": {
				"customer_id": {"type": "string"},
				"device_id": {"type": "string"}
			},
			"anyOf": [
				{"required": ["customer_id"]},
				{"required": ["device_id"]}
			],
			"additionalProperties": false
		}`),
		OutputShape: schema.MustShape(`{
			"type": "object",
			"required": ["devices"],
			"properties": {
				"devices": {"type": "array", "items": {"type": "object"}}
			}
		}`),
		Run: func(ctx context.Context, input map[string]any) tool.Result {
			customerID, _ := input["customer_id"].(string)
			deviceID, _ := input["device_id"].(string)

			devices, err := d.API.ListDevices(ctx, customerID, deviceID)
			if err != nil {
				return apiFailure(err)
			}

			out := make([]any, 0, len(devices))
			for _, dev := range devices {
				out = append(out, map[string]any{
					"device_id":   dev.DeviceID,
					"rustdesk_id": dev.RustDeskID,
					"status":      dev.Status,
					"last_seen":   dev.LastSeen,
					"is_online":   dev.IsOnline,
				})
			}
			return tool.Success(map[string]any{"devices": out})
		},
	}
}

func checkFounderSlots(d Deps) *tool.Tool {
	return &tool.Tool{
		Name:        "checkFounderSlots",
		Description: "Report how many founder pricing slots remain.",
		InputShape:  schema.MustShape(`{"type": "object", "additionalProperties": false}`),
		OutputShape: schema.MustShape(`{
			"type": "object",
			"required": ["remaining", "total"],
			"properties": {
				"remaining": {"type": "integer"},
				"total": {"type": "integer"}
			}
		}`),
		Run: func(ctx context.Context, input map[string]any) tool.Result {
			slots, err := d.API.GetFounderSlots(ctx)
			if err != nil {
				return apiFailure(err)
			}
			return tool.Success(map[string]any{
				"remaining": slots.Remaining,
				"total":     slots.Total,
			})
		},
	}
}

// refundWindow is the span after delivery inside which refunds are automatic.
const refundWindow = 7 * 24 * time.Hour

func checkRefundEligibility(d Deps) *tool.Tool {
	return &tool.Tool{
		Name:        "checkRefundEligibility",
		Description: "Check whether an order falls inside the automatic refund window.",
		InputShape: schema.MustShape(`{
			"type": "object",
			"required": ["order_id"],
			"properties": {"order_id": {"type": "string", "minLength": 1}},
			"additionalProperties": false
		}`),
		OutputShape: schema.MustShape(`{
			"type": "object",
			"required": ["eligible", "reason"],
			"properties": {
				"eligible": {"type": "boolean"},
				"reason": {"type": "string"},
				"amount": {"type": "number"}
			}
		}`),
		Run: func(ctx context.Context, input map[string]any) tool.Result {
			order, err := d.API.GetOrder(ctx, input["order_id"].(string))
			if err != nil {
				return apiFailure(err)
			}

			if order.PaymentStatus != "paid" {
				return tool.Success(map[string]any{
					"eligible": false,
					"reason":   "order is not in a paid state",
					"amount":   order.Amount,
				})
			}

			anchor := order.DeliveredAt
			if anchor == "" {
				anchor = order.CreatedAt
			}
			ts, err := time.Parse(time.RFC3339, anchor)
			if err != nil {
				return tool.Success(map[string]any{
					"eligible": false,
					"reason":   "order has no usable delivery date, needs manual review",
					"amount":   order.Amount,
				})
			}

			if d.now().Sub(ts) > refundWindow {
				return tool.Success(map[string]any{
					"eligible": false,
					"reason":   "outside the 7-day refund window, needs manual review",
					"amount":   order.Amount,
				})
			}
			return tool.Success(map[string]any{
				"eligible": true,
				"reason":   "within the 7-day refund window",
				"amount":   order.Amount,
			})
		},
	}
}

func createSupportTicket(d Deps) *tool.Tool {
	return &tool.Tool{
		Name:        "createSupportTicket",
		Description: "Open a support ticket on a customer's behalf.",
		InputShape: schema.MustShape(`{
			"type": "object",
			"required": ["customer_id", "subject", "description"],
			"properties": {
				"customer_id": {"type": "string", "minLength": 1},
				"subject": {"type": "string", "minLength": 1},
				"description": {"type": "string"},
				"priority": {"type": "string", "enum": ["low", "medium", "high", "urgent"]}
			},
			"additionalProperties": false
		}`),
		OutputShape: schema.MustShape(`{
			"type": "object",
			"required": ["ticket_id"],
			"properties": {"ticket_id": {"type": "string"}}
		}`),
		Run: func(ctx context.Context, input map[string]any) tool.Result {
			priority, _ := input["priority"].(string)
			if priority == "" {
				priority = "medium"
			}
			description, _ := input["description"].(string)

			id, err := d.API.CreateTicket(ctx, spearapi.TicketRequest{
				CustomerID:  input["customer_id"].(string),
				Subject:     input["subject"].(string),
				Description: description,
				Priority:    priority,
			})
			if err != nil {
				return apiFailure(err)
			}
			return tool.Success(map[string]any{"ticket_id": id})
		},
	}
}

func sendPasswordReset(d Deps) *tool.Tool {
	return &tool.Tool{
		Name:        "sendPasswordReset",
		Description: "Send a password reset email to the given address.",
		InputShape:  emailInput,
		OutputShape: schema.MustShape(`{
			"type": "object",
			"required": ["sent"],
			"properties": {"sent": {"type": "boolean"}}
		}`),
		Run: func(ctx context.Context, input map[string]any) tool.Result {
			if err := d.API.SendPasswordReset(ctx, input["email"].(string)); err != nil {
				return apiFailure(err)
			}
			return tool.Success(map[string]any{"sent": true})
		},
	}
}

func searchKnowledgeBase(d Deps) *tool.Tool {
	return &tool.Tool{
		Name:        "searchKnowledgeBase",
		Description: "Retrieve support documentation relevant to a question.",
		InputShape: schema.MustShape(`{
			"type": "object",
			"required": ["query"],
			"properties": {"query": {"type": "string", "minLength": 1}},
			"additionalProperties": false
		}`),
		OutputShape: schema.MustShape(`{
			"type": "object",
			"required": ["snippets"],
			"properties": {
				"snippets": {"type": "array", "items": {"type": "object"}},
				"context": {"type": "string"}
			}
		}`),
		Run: func(ctx context.Context, input map[string]any) tool.Result {
			snippets, err := d.Knowledge.Search(ctx, input["query"].(string))
			if err != nil {
				return tool.Failure(tool.UpstreamUnavailable, err.Error())
			}

			out := make([]any, 0, len(snippets))
			for _, s := range snippets {
				out = append(out, map[string]any{
					"text":   s.Text,
					"source": s.Source,
					"score":  s.Score,
				})
			}
			return tool.Success(map[string]any{
				"snippets": out,
				"context":  knowledge.FormatContext(snippets),
			})
		},
	}
}
