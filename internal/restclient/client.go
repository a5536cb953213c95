// Package restclient talks to the procurement REST API.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"adquisiciones/internal/core"
	"adquisiciones/internal/ports"
)

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 4 << 10

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Unwrap maps 404 to core.ErrNotFound.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return core.ErrNotFound
	}
	return nil
}

// Client implements ports.Backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var (
	_ ports.Backend = (*Client)(nil)
	_ ports.Pinger  = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for baseURL, e.g. "https://localhost:7195/api".
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) List(ctx context.Context) ([]core.Record, error) {
	var out []core.Record
	if err := c.do(ctx, http.MethodGet, "/Adquisiciones", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, id int64) (core.Record, error) {
	var out core.Record
	if err := c.do(ctx, http.MethodGet, recordPath(id), nil, &out); err != nil {
		return core.Record{}, err
	}
	return out, nil
}

// Create posts the record and returns the version stored by the API.
func (c *Client) Create(ctx context.Context, r core.Record) (core.Record, error) {
	r = r.WithComputedTotal()
	if err := r.Validate(); err != nil {
		return core.Record{}, err
	}
	r.ID = 0
	r.Active = true

	var out core.Record
	if err := c.do(ctx, http.MethodPost, "/Adquisiciones", r, &out); err != nil {
		return core.Record{}, err
	}
	if out.ID == 0 {
		return r, nil
	}
	return out, nil
}

// Update puts the record. The API answers 204, so the stored version is
// fetched again afterwards.
func (c *Client) Update(ctx context.Context, r core.Record) (core.Record, error) {
	r = r.WithComputedTotal()
	if err := r.Validate(); err != nil {
		return core.Record{}, err
	}
	if err := c.do(ctx, http.MethodPut, recordPath(r.ID), r, nil); err != nil {
		return core.Record{}, err
	}
	return c.Get(ctx, r.ID)
}

// Deactivate is a soft delete on the API side.
func (c *Client) Deactivate(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, recordPath(id), nil, nil)
}

func (c *Client) Reactivate(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPut, recordPath(id)+"/reactivar", nil, nil)
}

func (c *Client) History(ctx context.Context, id int64) ([]core.HistoryEntry, error) {
	var out []core.HistoryEntry
	if err := c.do(ctx, http.MethodGet, "/Historial/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping checks that the API answers the list endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/Adquisiciones", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping api: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &StatusError{Method: http.MethodHead, Path: "/Adquisiciones", StatusCode: resp.StatusCode}
	}
	return nil
}

func recordPath(id int64) string {
	return "/Adquisiciones/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID(ctx))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor := core.ActorFrom(ctx, ""); actor != "" {
		req.Header.Set("X-User", actor)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

type requestIDKey struct{}

// WithRequestID propagates an incoming request id to API calls.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
