// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"

	"github.com/LavonTMCQ/spear-agents/internal/schema"
	"github.com/LavonTMCQ/spear-agents/internal/tool"
)

// Admin returns the admin tool set. The destructive ones carry
// RequiresApproval and must be invoked through the gate.
func Admin(d Deps) []*tool.Tool {
	return []*tool.Tool{
		getOrderDetails(d),
		getRevenueMetrics(d),
		listDisputes(d),
		processRefund(d),
		extendSubscription(d),
		cancelSubscription(d),
		assignDevice(d),
	}
}

func getOrderDetails(d Deps) *tool.Tool {
	return &tool.Tool{
		Name:        "getOrderDetails",
		Description: "Fetch one order with payment and fulfillment state.",
		InputShape: schema.MustShape(`{
			"type": "object",
			"required": ["order_id"],
			"properties": {"order_id": {"type": "string", "minLength": 1}},
			"additionalProperties": false
		}`),
		OutputShape: schema.MustShape(`{
			"type": "object",
			"required": ["order_id", "status"],
			"properties": {
				"order_id": {"type": "string"},
				"amount": {"type": "number"},
				"status": {"type": "string"},
				"payment_status": {"type": "string"},
				"fulfillment_status": {"type": "string"},
				"customer_id": {"type": "string"},
				"customer_email": {"type": "string"}
			}
		}`),
		Run: func(ctx context.Context, input map[string]any) tool.Result {
			order, err := d.API.GetOrder(ctx, input["order_id"].(string))
			if err != nil {
				return apiFailure(err)
			}
			return tool.Success(map[string]any{
				"order_id":           order.ID,
				"amount":             order.Amount,
				"status":             order.Status,
				"payment_status":     order.PaymentStatus,
				"fulfillment_status": order.FulfillmentStatus,
				"customer_id":        order.CustomerID,
				"customer_email":     order.CustomerEmail,
			})
		},
	}
}

func getRevenueMetrics(d Deps) *tool.Tool {
	return &tool.Tool{
		Name:        "getRevenueMetrics",
		Description: "Summarize MRR, ARR, and churn for a reporting period.",
		InputShape: schema.MustShape(`{
			"type": "object",
			"properties": {
				"period": {"type": "string", "enum": ["week", "month", "quarter", "year"]}
			},
			"additionalProperties": false
		}`),
		OutputShape: schema.MustShape(`{
			"type": "object",
			"required": ["mrr", "arr"],
			"properties": {
				"mrr": {"type": "number"},
				"arr": {"type": "number"},
				"new_subscriptions": {"type": "integer"},
				"churned_subscriptions": {"type": "integer"},
				"churn_rate": {"type": "number"},
				"total_customers": {"type": "integer"},
				"active_subscriptions": {"type": "integer"}
			}
		}`),
		Run: func(ctx context.Context, input map[string]any) tool.Result {
			period, _ := input["period"].(string)
			if period == "" {
				period = "month"
			}
			m, err := d.API.GetRevenueMetrics(ctx, period)
			if err != nil {
				return apiFailure(err)
			}
			return tool.Success(map[string]any{
				"mrr":                   m.MRR,
				"arr":                   m.ARR,
				"new_subscriptions":     m.NewSubscriptions,
				"churned_subscriptions": m.ChurnedSubscriptions,
				"churn_rate":            m.ChurnRate,
				"total_customers":       m.TotalCustomers,
				"active_subscriptions":  m.ActiveSubscriptions,
			})
		},
	}
}

func listDisputes(d Deps) *tool.Tool {
	return &tool.Tool{
		Name:        "listDisputes",
		Description: "List open payment disputes.",
		InputShape:  schema.MustShape(`{"type": "object", "additionalProperties": false}`),
		OutputShape: schema.MustShape(`{
			"type": "object",
			"required": ["disputes"],
			"properties": {
				"disputes": {"type": "array", "items": {"type": "object"}}
			}
		}`),
		Run: func(ctx context.Context, input map[string]any) tool.Result {
			disputes, err := d.API.ListDisputes(ctx)
			if err != nil {
				return apiFailure(err)
			}
			out := make([]any, 0, len(disputes))
			for _, dp := range disputes {
				out = append(out, map[string]any{
					"dispute_id": dp.ID,
					"amount":     dp.Amount,
					"status":     dp.Status,
					"reason":     dp.Reason,
					"created_at": dp.CreatedAt,
				})
			}
			return tool.Success(map[string]any{"disputes": out})
		},
	}
}

func processRefund(d Deps) *tool.Tool {
	return &tool.Tool{
		Name:             "processRefund",
		Description:      "Refund an order, fully or partially.",
		RequiresApproval: true,
		InputShape: schema.MustShape(`{
			"type": "object",
			"required": ["order_id", "reason"],
			"properties": {
				"order_id": {"type": "string", "minLength": 1},
				"amount": {"type": "number", "exclusiveMinimum": 0},
				"reason": {"type": "string", "minLength": 1}
			},
			"additionalProperties": false
		}`),
		OutputShape: schema.MustShape(`{
			"type": "object",
			"required": ["refund_id", "amount"],
			"properties": {
				"refund_id": {"type": "string"},
				"amount": {"type": "number"}
			}
		}`),
		Run: func(ctx context.Context, input map[string]any) tool.Result {
			amount, _ := input["amount"].(float64)
			refundID, refunded, err := d.API.ProcessRefund(ctx,
				input["order_id"].(string), amount, input["reason"].(string))
			if err != nil {
				return apiFailure(err)
			}
			return tool.Success(map[string]any{
				"refund_id": refundID,
				"amount":    refunded,
			})
		},
	}
}

func extendSubscription(d Deps) *tool.Tool {
	return &tool.Tool{
		Name:             "extendSubscription",
		Description:      "Extend a subscription's current period by a number of days.",
		RequiresApproval: true,
		InputShape: schema.MustShape(`{
			"type": "object",
			"required": ["subscription_id", "days", "reason"],
			"properties": {
				"subscription_id": {"type": "string", "minLength": 1},
				"days": {"type": "integer", "minimum": 1, "maximum": 365},
				"reason": {"type": "string", "minLength": 1}
			},
			"additionalProperties": false
		}`),
		OutputShape: schema.MustShape(`{
			"type": "object",
			"required": ["new_period_end"],
			"properties": {"new_period_end": {"type": "string"}}
		}`),
		Run: func(ctx context.Context, input map[string]any) tool.Result {
			days := int(input["days"].(float64))
			newEnd, err := d.API.ExtendSubscription(ctx,
				input["subscription_id"].(string), days, input["reason"].(string))
			if err != nil {
				return apiFailure(err)
			}
			return tool.Success(map[string]any{"new_period_end": newEnd})
		},
	}
}

func cancelSubscription(d Deps) *tool.Tool {
	return &tool.Tool{
		Name:             "cancelSubscription",
		Description:      "Cancel a subscription, at period end or immediately.",
		RequiresApproval: true,
		InputShape: schema.MustShape(`{
			"type": "object",
			"required": ["subscription_id", "reason"],
			"properties": {
				"subscription_id": {"type": "string", "minLength": 1},
				"reason": {"type": "string", "minLength": 1},
				"immediate": {"type": "boolean"}
			},
			"additionalProperties": false
		}`),
		OutputShape: schema.MustShape(`{
			"type": "object",
			"required": ["effective_date"],
			"properties": {"effective_date": {"type": "string"}}
		}`),
		Run: func(ctx context.Context, input map[string]any) tool.Result {
			immediate, _ := input["immediate"].(bool)
			effective, err := d.API.CancelSubscription(ctx,
				input["subscription_id"].(string), input["reason"].(string), immediate)
			if err != nil {
				return apiFailure(err)
			}
			return tool.Success(map[string]any{"effective_date": effective})
		},
	}
}

func assignDevice(d Deps) *tool.Tool {
	return &tool.Tool{
		Name:             "assignDevice",
		Description:      "Assign a device to a customer account.",
		RequiresApproval: true,
		InputShape: schema.MustShape(`{
			"type": "object",
			"required": ["device_id", "customer_id"],
			"properties": {
				"device_id": {"type": "string", "minLength": 1},
				"customer_id": {"type": "string", "minLength": 1},
				"order_id": {"type": "string"}
			},
			"additionalProperties": false
		}`),
		OutputShape: schema.MustShape(`{
			"type": "object",
			"required": ["assigned"],
			"properties": {"assigned": {"type": "boolean"}}
		}`),
		Run: func(ctx context.Context, input map[string]any) tool.Result {
			orderID, _ := input["order_id"].(string)
			err := d.API.AssignDevice(ctx,
				input["device_id"].(string), input["customer_id"].(string), orderID)
			if err != nil {
				return apiFailure(err)
			}
			return tool.Success(map[string]any{"assigned": true})
		},
	}
}
