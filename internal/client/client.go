// Package client is the SDK embedded in licensed applications. It talks to
// the license service over HTTP and gates application startup on a usable
// license.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"keygate/internal/license"
)

// Client calls the license service. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "license_client"))
	return c
}

// VerifyResult mirrors the service's verification response.
type VerifyResult struct {
	Licensed       bool   `json:"licensed"`
	ClientName     string `json:"client_name"`
	DaysRemaining  int    `json:"days_remaining"`
	ExpirationDate string `json:"expiration_date"`
}

// ActivateResult mirrors the service's activation response.
type ActivateResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	ClientName   string `json:"client_name"`
	AlreadyBound bool   `json:"already_bound"`
}

type activatePayload struct {
	LicenseKey  string `json:"license_key"`
	Fingerprint string `json:"fingerprint"`
}

// problemResponse is the RFC 7807 body the service renders on failure.
type problemResponse struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code"`
}

// Verify asks whether this machine holds a usable license.
func (c *Client) Verify(ctx context.Context, fingerprint string) (*VerifyResult, error) {
	endpoint := c.baseURL + "/api/license/verify?fingerprint=" + url.QueryEscape(fingerprint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}

	res := &VerifyResult{}
	if err := c.do(req, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Activate binds the license key to this machine.
func (c *Client) Activate(ctx context.Context, key, fingerprint string) (*ActivateResult, error) {
	body, err := json.Marshal(activatePayload{LicenseKey: key, Fingerprint: fingerprint})
	if err != nil {
		return nil, fmt.Errorf("encode activate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/license/activate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build activate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res := &ActivateResult{}
	if err := c.do(req, res); err != nil {
		return nil, err
	}
	return res, nil
}

// do executes the request and decodes either the success body into out or a
// problem response into a license error. Transport failures map to
// KindStore so callers fail closed the same way the server does.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return license.StoreError("license service request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return license.StoreError("read license service response", err)
	}

	if resp.StatusCode >= 400 {
		return problemToError(resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return license.StoreError("decode license service response", err)
	}
	return nil
}

// problemToError rebuilds the authority error from the problem body, so SDK
// callers branch on the same kinds the server uses.
func problemToError(status int, raw []byte) error {
	var problem problemResponse
	if err := json.Unmarshal(raw, &problem); err != nil || problem.ErrorCode == "" {
		return license.NewError(license.KindStore,
			"license service returned status %d", status)
	}

	detail := problem.Detail
	if detail == "" {
		detail = problem.Title
	}
	return license.NewError(license.Kind(problem.ErrorCode), "%s", detail)
}
