package amazonpay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-amazonpay/app/metrics"
)

const apiVersion = "v2"

var regionHosts = map[string]string{
	"na": "pay-api.amazon.com",
	"eu": "pay-api.amazon.eu",
	"jp": "pay-api.amazon.jp",
}

var regionAliases = map[string]string{
	"us": "na",
	"de": "eu",
	"uk": "eu",
	"gb": "eu",
}

type Config struct {
	Region      string
	Sandbox     bool
	PublicKeyID string
	PrivateKey  []byte
	HTTPTimeout time.Duration
	// BaseURL overrides the regional endpoint.
	BaseURL string
}

type Client struct {
	http      *resty.Client
	signer    *Signer
	region    string
	host      string
	envPrefix string
}

func NewClient(cfg Config) (*Client, error) {
	region := strings.ToLower(strings.TrimSpace(cfg.Region))
	if alias, ok := regionAliases[region]; ok {
		region = alias
	}
	host, ok := regionHosts[region]
	if !ok {
		return nil, fmt.Errorf("unsupported amazon pay region %q", cfg.Region)
	}

	signer, err := NewSigner(cfg.PublicKeyID, cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	baseURL := "https://" + host
	if cfg.BaseURL != "" {
		baseURL = strings.TrimRight(cfg.BaseURL, "/")
		parsed, err := url.Parse(baseURL)
		if err != nil {
			return nil, err
		}
		host = parsed.Host
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		http:      resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
		signer:    signer,
		region:    region,
		host:      host,
		envPrefix: environmentPrefix(cfg.PublicKeyID, cfg.Sandbox),
	}, nil
}

// environmentPrefix is empty for environment-specific key ids.
func environmentPrefix(publicKeyID string, sandbox bool) string {
	upper := strings.ToUpper(publicKeyID)
	if strings.HasPrefix(upper, "LIVE-") || strings.HasPrefix(upper, "SANDBOX-") {
		return ""
	}
	if sandbox {
		return "/sandbox"
	}
	return "/live"
}

func (c *Client) GetCharge(ctx context.Context, chargeID string) (*Charge, error) {
	var out Charge
	if err := c.do(ctx, "get_charge", http.MethodGet, "/charges/"+url.PathEscape(chargeID), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetChargePermission(ctx context.Context, chargePermissionID string) (*ChargePermission, error) {
	var out ChargePermission
	if err := c.do(ctx, "get_charge_permission", http.MethodGet, "/chargePermissions/"+url.PathEscape(chargePermissionID), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetRefund(ctx context.Context, refundID string) (*Refund, error) {
	var out Refund
	if err := c.do(ctx, "get_refund", http.MethodGet, "/refunds/"+url.PathEscape(refundID), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RefundCharge(ctx context.Context, chargeID string, amount Price) (*Refund, error) {
	payload := &createRefundRequest{ChargeID: chargeID, RefundAmount: amount}
	var out Refund
	if err := c.do(ctx, "refund_charge", http.MethodPost, "/refunds", payload, uuid.NewString(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetCheckoutSession(ctx context.Context, checkoutSessionID string) (*CheckoutSession, error) {
	var out CheckoutSession
	if err := c.do(ctx, "get_checkout_session", http.MethodGet, "/checkoutSessions/"+url.PathEscape(checkoutSessionID), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateCheckoutSession(ctx context.Context, checkoutSessionID string, payload *UpdateCheckoutSessionRequest) (*CheckoutSession, error) {
	var out CheckoutSession
	if err := c.do(ctx, "update_checkout_session", http.MethodPatch, "/checkoutSessions/"+url.PathEscape(checkoutSessionID), payload, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CompleteCheckoutSession(ctx context.Context, checkoutSessionID string, payload *CompleteCheckoutSessionRequest) (*CheckoutSession, error) {
	var out CheckoutSession
	if err := c.do(ctx, "complete_checkout_session", http.MethodPost, "/checkoutSessions/"+url.PathEscape(checkoutSessionID)+"/complete", payload, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, operation, method, resource string, payload any, idempotencyKey string, out any) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = encoded
	}

	path := c.envPrefix + "/" + apiVersion + resource
	headers := map[string]string{
		headerAccept:      "application/json",
		headerContentType: "application/json",
		headerHost:        c.host,
		headerRegion:      c.region,
	}
	if idempotencyKey != "" {
		headers[headerIdempotencyKey] = idempotencyKey
	}

	signed, err := c.signer.Sign(method, path, nil, headers, body)
	if err != nil {
		return err
	}

	req := c.http.R().SetContext(ctx).SetHeaders(signed)
	if body != nil {
		req.SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		metrics.ObserveAPIRequest(operation, 0, start)
		return fmt.Errorf("amazon pay %s request failed: %w", operation, err)
	}
	metrics.ObserveAPIRequest(operation, resp.StatusCode(), start)

	if resp.IsError() {
		return decodeAPIError(operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("amazon pay %s response: %w", operation, err)
	}
	return nil
}

func decodeAPIError(operation string, resp *resty.Response) error {
	apiErr := &APIError{Operation: operation, StatusCode: resp.StatusCode()}
	var payload struct {
		ReasonCode string `json:"reasonCode"`
		Message    string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err == nil {
		apiErr.ReasonCode = payload.ReasonCode
		apiErr.Message = payload.Message
	} else {
		apiErr.Message = string(resp.Body())
	}
	return apiErr
}
