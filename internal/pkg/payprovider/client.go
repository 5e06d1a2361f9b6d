package payprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
)

const defaultAPIBaseURL = "https://api.payprovider.example/v1"

// Client talks to the external payment provider's REST API. Webhook signature
// verification happens upstream at the gateway; this client only creates
// customers and checkout sessions.
type Client struct {
	APIBaseURL string
	APIKey     string

	HTTPClient *http.Client
}

// CheckoutParams describes one checkout session to create. Metadata is
// attached verbatim to the provider order and comes back on the resulting
// webhook, which keeps anonymous checkouts attributable without extra
// server-side state.
type CheckoutParams struct {
	ProductID  string
	Amount     decimal.Decimal
	SuccessURL string
	CustomerID string
	Metadata   map[string]string
}

// Checkout is the provider's view of a created checkout session.
type Checkout struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func NewClientFromEnv() *Client {
	return &Client{
		APIBaseURL: strings.TrimRight(env.GetEnv("PAYPROVIDER_API_BASE_URL", defaultAPIBaseURL), "/"),
		APIKey:     strings.TrimSpace(env.GetEnv("PAYPROVIDER_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CreateCustomer registers a customer with the provider and returns its id.
// externalID carries our user id for provider-side correlation.
func (c *Client) CreateCustomer(ctx context.Context, email, externalID string) (string, error) {
	if strings.TrimSpace(email) == "" {
		return "", errors.New("customer email is required")
	}

	payload := map[string]string{
		"email":       strings.TrimSpace(email),
		"external_id": strings.TrimSpace(externalID),
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/customers", payload, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", errors.New("provider returned empty customer id")
	}
	return out.ID, nil
}

// CreateCheckout opens a checkout session for the given product and amount.
func (c *Client) CreateCheckout(ctx context.Context, params CheckoutParams) (*Checkout, error) {
	if strings.TrimSpace(params.ProductID) == "" {
		return nil, errors.New("product id is required")
	}
	if !params.Amount.IsPositive() {
		return nil, errors.New("checkout amount must be positive")
	}

	payload := map[string]interface{}{
		"product_id":  params.ProductID,
		"amount":      params.Amount.StringFixed(2),
		"success_url": params.SuccessURL,
		"metadata":    params.Metadata,
	}
	if strings.TrimSpace(params.CustomerID) != "" {
		payload["customer_id"] = params.CustomerID
	}

	var out Checkout
	if err := c.post(ctx, "/checkouts", payload, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" || strings.TrimSpace(out.URL) == "" {
		return nil, errors.New("provider returned incomplete checkout response")
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("PAYPROVIDER_API_KEY is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.APIBaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider request %s failed: status=%d body=%s", path, resp.StatusCode, string(respBody))
	}

	return json.Unmarshal(respBody, out)
}
