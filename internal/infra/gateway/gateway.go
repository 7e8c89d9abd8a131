// Package gateway talks to the hosted checkout provider. The provider is an
// opaque confirmation oracle: it creates checkout sessions and reports
// whether a session was paid.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/storycraft/billing/internal/infra/httpclient"
)

const PaymentStatusPaid = "paid"

var ErrSessionNotFound = errors.New("checkout session not found")

type Session struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

type CreateSessionInput struct {
	OrderID     string
	UserID      string
	PlanType    string
	Cycle       string
	DisplayName string
	// Amount is in major units; the provider expects minor units.
	Amount int64
}

type Config struct {
	BaseURL    string
	SecretKey  string
	SuccessURL string
	CancelURL  string
	Currency   string
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = httpclient.New(0)
	}
	if cfg.Currency == "" {
		cfg.Currency = "cny"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: httpClient}
}

func (c *Client) CreateSession(ctx context.Context, in CreateSessionInput) (Session, error) {
	if in.OrderID == "" || in.UserID == "" || in.Amount <= 0 {
		return Session{}, fmt.Errorf("invalid checkout session payload")
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", in.OrderID)
	form.Set("success_url", c.cfg.SuccessURL)
	form.Set("cancel_url", c.cfg.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", c.cfg.Currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(in.Amount*100, 10))
	form.Set("line_items[0][price_data][product_data][name]", in.DisplayName)
	form.Set("metadata[order_id]", in.OrderID)
	form.Set("metadata[user_id]", in.UserID)
	form.Set("metadata[plan_type]", in.PlanType)
	form.Set("metadata[cycle]", in.Cycle)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return Session{}, fmt.Errorf("build create session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", "checkout-"+in.OrderID)

	return c.do(req)
}

func (c *Client) RetrieveSession(ctx context.Context, sessionID string) (Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Session{}, ErrSessionNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/checkout/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return Session{}, fmt.Errorf("build retrieve session request: %w", err)
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) (Session, error) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("checkout gateway request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Session{}, fmt.Errorf("read checkout gateway response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Session{}, ErrSessionNotFound
	case resp.StatusCode >= 300:
		return Session{}, fmt.Errorf("checkout gateway status %d: %s", resp.StatusCode, truncate(string(body), 256))
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return Session{}, fmt.Errorf("decode checkout session: %w", err)
	}
	return session, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
