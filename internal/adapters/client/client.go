// Package client talks to the persistence endpoint over HTTP. It is the
// DatasetPersister used by the CLI's schedule store.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/taskmaster/scheduler/internal/domain/entities"
	"github.com/taskmaster/scheduler/internal/infrastructure/config"
	"github.com/taskmaster/scheduler/internal/infrastructure/logger"
)

const blobPath = "/api/blob"

// maxErrorBody caps how much of a failed response is read.
const maxErrorBody = 64 << 10

// TokenIssuer mints bearer tokens for outgoing requests.
type TokenIssuer interface {
	Enabled() bool
	Issue(subject string) (string, error)
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	// Message is the server's error field, empty when the body had none.
	Message string
	op      string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.op
}

// Client implements ports.DatasetPersister against GET/POST /api/blob.
type Client struct {
	endpoint string
	http     *http.Client
	tokens   TokenIssuer
	logger   *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenIssuer attaches a bearer token to every request when enabled.
func WithTokenIssuer(t TokenIssuer) Option {
	return func(c *Client) { c.tokens = t }
}

// WithLogger sets the client logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for cfg.Endpoint
func New(cfg config.ClientConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
		logger:   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("client")
	return c
}

// Load fetches the current dataset.
func (c *Client) Load(ctx context.Context) (*entities.Dataset, error) {
	req, err := c.newRequest(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req, "Failed to load tasks")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ds entities.Dataset
	if err := json.NewDecoder(resp.Body).Decode(&ds); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	ds.Normalize()
	return &ds, nil
}

// Save replaces the remote dataset with ds.
func (c *Client) Save(ctx context.Context, ds entities.Dataset) error {
	_, err := c.SaveDataset(ctx, ds)
	return err
}

// SaveDataset replaces the remote dataset and returns the stored object's reference.
func (c *Client) SaveDataset(ctx context.Context, ds entities.Dataset) (string, error) {
	ds.Normalize()
	body, err := json.Marshal(ds)
	if err != nil {
		return "", fmt.Errorf("failed to encode dataset: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, body)
	if err != nil {
		return "", err
	}

	resp, err := c.do(req, "Failed to save tasks")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode save response: %w", err)
	}
	return out.URL, nil
}

func (c *Client) newRequest(ctx context.Context, method string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+blobPath, r)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil && c.tokens.Enabled() {
		token, err := c.tokens.Issue("scheduler-cli")
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends req and turns any non-2xx response into a *StatusError.
func (c *Client) do(req *http.Request, op string) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c.logger.Debugw("Endpoint call",
		"method", req.Method,
		"status", resp.StatusCode,
		"latency_ms", float64(time.Since(start).Microseconds())/1000,
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, &StatusError{
		StatusCode: resp.StatusCode,
		Message:    errorMessage(raw),
		op:         op,
	}
}

// errorMessage extracts the error text from {"error": "..."} or
// {"error": {"message": "..."}} bodies.
func errorMessage(raw []byte) string {
	if !gjson.ValidBytes(raw) {
		return ""
	}
	field := gjson.GetBytes(raw, "error")
	if field.IsObject() {
		return field.Get("message").String()
	}
	if field.Type == gjson.String {
		return field.String()
	}
	return ""
}
