// SPDX-License-Identifier: Apache-2.0

// Package spearapi is the typed HTTP client for the SPEAR account and
// billing API. Every method maps to one admin endpoint; "not found" and
// auth failures surface as sentinel errors so callers can branch on them.
package spearapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrNotFound = errors.New("spear api: not found")
var ErrUnauthorized = errors.New("spear api: unauthorized")

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Logger  *slog.Logger
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type Customer struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	Role               string `json:"role"`
	SubscriptionStatus string `json:"subscriptionStatus"`
	CreatedAt          string `json:"createdAt"`
}

type Subscription struct {
	Status            string `json:"status"`
	PlanType          string `json:"planType"`
	CurrentPeriodEnd  string `json:"currentPeriodEnd"`
	CancelAtPeriodEnd bool   `json:"cancelAtPeriodEnd"`
}

type Device struct {
	DeviceID   string `json:"deviceId"`
	RustDeskID string `json:"rustDeskId"`
	Status     string `json:"status"`
	LastSeen   string `json:"lastSeen"`
	IsOnline   bool   `json:"isOnline"`
}

type Order struct {
	ID                string  `json:"id"`
	Amount            float64 `json:"amount"`
	Status            string  `json:"status"`
	PaymentStatus     string  `json:"paymentStatus"`
	FulfillmentStatus string  `json:"fulfillmentStatus"`
	CreatedAt         string  `json:"createdAt"`
	DeliveredAt       string  `json:"deliveredAt"`
	CustomerID        string  `json:"customerId"`
	CustomerEmail     string  `json:"customerEmail"`
}

type TicketRequest struct {
	CustomerID  string `json:"customerId"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

type RevenueMetrics struct {
	MRR                  float64 `json:"mrr"`
	ARR                  float64 `json:"arr"`
	NewSubscriptions     int     `json:"newSubscriptions"`
	ChurnedSubscriptions int     `json:"churnedSubscriptions"`
	ChurnRate            float64 `json:"churnRate"`
	TotalCustomers       int     `json:"totalCustomers"`
	ActiveSubscriptions  int     `json:"activeSubscriptions"`
}

type Dispute struct {
	ID        string  `json:"id"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
	Reason    string  `json:"reason"`
	CreatedAt string  `json:"createdAt"`
}

type FounderSlots struct {
	Remaining int `json:"remaining"`
	Total     int `json:"total"`
}

// LookupCustomer finds a customer by email. ErrNotFound when no client
// record matches.
func (c *Client) LookupCustomer(ctx context.Context, email string) (Customer, error) {
	var out struct {
		Clients []struct {
			ID           string `json:"id"`
			Name         string `json:"name"`
			Email        string `json:"email"`
			Role         string `json:"role"`
			CreatedAt    string `json:"createdAt"`
			Subscription *struct {
				Status string `json:"status"`
			} `json:"subscription"`
		} `json:"clients"`
	}

	endpoint := "/admin/clients?search=" + url.QueryEscape(email)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return Customer{}, err
	}
	if len(out.Clients) == 0 {
		return Customer{}, ErrNotFound
	}

	cl := out.Clients[0]
	cust := Customer{
		ID:        cl.ID,
		Name:      cl.Name,
		Email:     cl.Email,
		Role:      cl.Role,
		CreatedAt: cl.CreatedAt,
	}
	if cl.Subscription != nil {
		cust.SubscriptionStatus = cl.Subscription.Status
	}
	return cust, nil
}

func (c *Client) GetSubscription(ctx context.Context, customerID string) (Subscription, error) {
	var out struct {
		Subscription *Subscription `json:"subscription"`
	}
	if err := c.do(ctx, http.MethodGet, "/admin/subscriptions/"+url.PathEscape(customerID), nil, &out); err != nil {
		return Subscription{}, err
	}
	if out.Subscription == nil {
		return Subscription{}, ErrNotFound
	}
	return *out.Subscription, nil
}

// ListDevices returns device records filtered by customer and/or device id.
// A device is online when the upstream status is "active".
func (c *Client) ListDevices(ctx context.Context, customerID, deviceID string) ([]Device, error) {
	params := url.Values{}
	if customerID != "" {
		params.Set("customerId", customerID)
	}
	if deviceID != "" {
		params.Set("deviceId", deviceID)
	}
	endpoint := "/admin/devices"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var out struct {
		Devices []struct {
			ID         string `json:"id"`
			RustDeskID string `json:"rustDeskId"`
			Status     string `json:"status"`
			LastSeen   string `json:"lastSeen"`
		} `json:"devices"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(out.Devices))
	for _, d := range out.Devices {
		devices = append(devices, Device{
			DeviceID:   d.ID,
			RustDeskID: d.RustDeskID,
			Status:     d.Status,
			LastSeen:   d.LastSeen,
			IsOnline:   d.Status == "active",
		})
	}
	return devices, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (Order, error) {
	var out struct {
		Order *struct {
			ID                string  `json:"id"`
			Amount            float64 `json:"amount"`
			Status            string  `json:"status"`
			PaymentStatus     string  `json:"paymentStatus"`
			FulfillmentStatus string  `json:"fulfillmentStatus"`
			CreatedAt         string  `json:"createdAt"`
			DeliveredAt       string  `json:"deliveredAt"`
			User              *struct {
				ID    string `json:"id"`
				Email string `json:"email"`
			} `json:"user"`
		} `json:"order"`
	}
	if err := c.do(ctx, http.MethodGet, "/admin/orders/"+url.PathEscape(orderID), nil, &out); err != nil {
		return Order{}, err
	}
	if out.Order == nil {
		return Order{}, ErrNotFound
	}

	o := Order{
		ID:                out.Order.ID,
		Amount:            out.Order.Amount,
		Status:            out.Order.Status,
		PaymentStatus:     out.Order.PaymentStatus,
		FulfillmentStatus: out.Order.FulfillmentStatus,
		CreatedAt:         out.Order.CreatedAt,
		DeliveredAt:       out.Order.DeliveredAt,
	}
	if out.Order.User != nil {
		o.CustomerID = out.Order.User.ID
		o.CustomerEmail = out.Order.User.Email
	}
	return o, nil
}

// CreateTicket opens a support ticket and returns its id.
func (c *Client) CreateTicket(ctx context.Context, req TicketRequest) (string, error) {
	var out struct {
		Ticket *struct {
			ID string `json:"id"`
		} `json:"ticket"`
	}
	if err := c.do(ctx, http.MethodPost, "/support-tickets", req, &out); err != nil {
		return "", err
	}
	if out.Ticket == nil {
		return "", errors.New("spear api: ticket not created")
	}
	return out.Ticket.ID, nil
}

// ProcessRefund issues a refund. A zero amount means a full refund.
func (c *Client) ProcessRefund(ctx context.Context, orderID string, amount float64, reason string) (string, float64, error) {
	body := map[string]any{"reason": reason}
	if amount > 0 {
		body["amount"] = amount
	}

	var out struct {
		Success  bool    `json:"success"`
		RefundID string  `json:"refundId"`
		Amount   float64 `json:"amount"`
		Error    string  `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/admin/orders/"+url.PathEscape(orderID)+"/refund", body, &out); err != nil {
		return "", 0, err
	}
	if !out.Success {
		return "", 0, fmt.Errorf("spear api: refund failed: %s", out.Error)
	}
	return out.RefundID, out.Amount, nil
}

func (c *Client) ExtendSubscription(ctx context.Context, subscriptionID string, days int, reason string) (string, error) {
	body := map[string]any{"days": days, "reason": reason}

	var out struct {
		Success      bool   `json:"success"`
		NewPeriodEnd string `json:"newPeriodEnd"`
		Error        string `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/admin/subscriptions/"+url.PathEscape(subscriptionID)+"/extend", body, &out); err != nil {
		return "", err
	}
	if !out.Success {
		return "", fmt.Errorf("spear api: extend failed: %s", out.Error)
	}
	return out.NewPeriodEnd, nil
}

func (c *Client) CancelSubscription(ctx context.Context, subscriptionID, reason string, immediate bool) (string, error) {
	body := map[string]any{"reason": reason, "immediate": immediate}

	var out struct {
		Success       bool   `json:"success"`
		EffectiveDate string `json:"effectiveDate"`
		Error         string `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/admin/subscriptions/"+url.PathEscape(subscriptionID)+"/cancel", body, &out); err != nil {
		return "", err
	}
	if !out.Success {
		return "", fmt.Errorf("spear api: cancel failed: %s", out.Error)
	}
	return out.EffectiveDate, nil
}

func (c *Client) AssignDevice(ctx context.Context, deviceID, customerID, orderID string) error {
	body := map[string]any{"customerId": customerID}
	if orderID != "" {
		body["orderId"] = orderID
	}

	var out struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/admin/devices/"+url.PathEscape(deviceID)+"/assign", body, &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("spear api: assign failed: %s", out.Error)
	}
	return nil
}

func (c *Client) GetRevenueMetrics(ctx context.Context, period string) (RevenueMetrics, error) {
	var out RevenueMetrics
	if err := c.do(ctx, http.MethodGet, "/admin/revenue?period="+url.QueryEscape(period), nil, &out); err != nil {
		return RevenueMetrics{}, err
	}
	return out, nil
}

func (c *Client) ListDisputes(ctx context.Context) ([]Dispute, error) {
	var out struct {
		Disputes []Dispute `json:"disputes"`
	}
	if err := c.do(ctx, http.MethodGet, "/admin/disputes", nil, &out); err != nil {
		return nil, err
	}
	return out.Disputes, nil
}

func (c *Client) GetFounderSlots(ctx context.Context) (FounderSlots, error) {
	var out FounderSlots
	if err := c.do(ctx, http.MethodGet, "/founder-slots", nil, &out); err != nil {
		return FounderSlots{}, err
	}
	if out.Total == 0 {
		out.Total = 100
	}
	return out, nil
}

// SendPasswordReset triggers a reset email. The upstream responds the same
// whether or not the account exists.
func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	body := map[string]any{"email": email}
	return c.do(ctx, http.MethodPost, "/auth/forgot-password", body, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("spear api: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode >= 400:
		return fmt.Errorf("spear api: %s %s: status %d", method, endpoint, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
