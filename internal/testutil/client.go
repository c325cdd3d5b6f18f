// Package testutil provides testing utilities for integration tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/motorlot/marketplace/internal/pkg/httputil"
)

// Client is an HTTP client for testing API endpoints. Responses are checked
// against the OpenAPI document when a validator is set.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Validator  *OpenAPIValidator

	token      string
	cronSecret string
	headers    map[string]string
	t          *testing.T
}

// NewClient creates a new test client.
func NewClient(t *testing.T, baseURL string, validator *OpenAPIValidator) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		Validator:  validator,
		t:          t,
	}
}

// WithToken returns a copy of the client that sends a bearer token.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	clone.cronSecret = ""
	return &clone
}

// WithCronSecret returns a copy of the client that authenticates as the periodic trigger.
func (c *Client) WithCronSecret(secret string) *Client {
	clone := *c
	clone.token = ""
	clone.cronSecret = secret
	return &clone
}

// WithHeader returns a copy of the client that sets an extra header.
func (c *Client) WithHeader(key, value string) *Client {
	clone := *c
	clone.headers = make(map[string]string, len(c.headers)+1)
	for k, v := range c.headers {
		clone.headers[k] = v
	}
	clone.headers[key] = value
	return &clone
}

// WithoutValidation returns a copy of the client with validation disabled.
// Use it for negative tests that send requests outside the contract.
func (c *Client) WithoutValidation() *Client {
	clone := *c
	clone.Validator = nil
	return &clone
}

// GET performs a GET request.
func (c *Client) GET(path string) *http.Response {
	return c.Do(http.MethodGet, path, nil)
}

// POST performs a POST request. A []byte body is sent as is; anything else is JSON encoded.
func (c *Client) POST(path string, body any) *http.Response {
	return c.Do(http.MethodPost, path, body)
}

// Do performs a request and fails the test on transport errors.
func (c *Client) Do(method, path string, body any) *http.Response {
	c.t.Helper()

	var payload []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		payload = b
	default:
		var err error
		if payload, err = json.Marshal(b); err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.cronSecret != "" {
		req.Header.Set(httputil.CronSecretHeader, c.cronSecret)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}

	if c.Validator != nil {
		validationReq, _ := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(payload))
		validationReq.Header = req.Header
		c.Validator.ValidateRequestResponse(c.t, validationReq, resp)
	}

	return resp
}

// DecodeData decodes the {"data": ...} envelope of resp into v.
func DecodeData(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	envelope := struct {
		Data any `json:"data"`
	}{Data: v}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ReadBody reads and returns response body as string.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

// RequireStatus fails the test unless resp has the wanted status.
func RequireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, want, ReadBody(t, resp))
	}
}
