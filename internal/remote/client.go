// Package remote talks to the hosted time-tracking backend over its RPC endpoints.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"timesync-agent/config"
	"timesync-agent/internal/model"
)

const (
	fnStart     = "rpc_start_time_segment"
	fnStop      = "rpc_stop_time_segment"
	fnSwitch    = "rpc_switch_time_segment"
	fnGetActive = "rpc_get_active_time_segment"
)

// StartRequest opens a segment.
type StartRequest struct {
	EmployeeID  string            `json:"p_employee_id,omitempty"`
	ProjectID   string            `json:"p_project_id"`
	SegmentType model.SegmentType `json:"p_segment_type"`
	Description *string           `json:"p_description"`
	StartedAt   string            `json:"p_started_at,omitempty"`
	LocationLat *float64          `json:"p_location_lat,omitempty"`
	LocationLng *float64          `json:"p_location_lng,omitempty"`
}

// StopRequest closes the given segment.
type StopRequest struct {
	SegmentID   string   `json:"p_segment_id"`
	Notes       *string  `json:"p_notes"`
	EndedAt     string   `json:"p_ended_at,omitempty"`
	LocationLat *float64 `json:"p_location_lat,omitempty"`
	LocationLng *float64 `json:"p_location_lng,omitempty"`
}

// SwitchRequest closes FromSegmentID and opens a segment on ProjectID.
type SwitchRequest struct {
	FromSegmentID string            `json:"p_from_segment_id"`
	ProjectID     string            `json:"p_project_id"`
	SegmentType   model.SegmentType `json:"p_segment_type"`
	Description   *string           `json:"p_description"`
	Notes         *string           `json:"p_notes"`
	SwitchedAt    string            `json:"p_switched_at,omitempty"`
	LocationLat   *float64          `json:"p_location_lat,omitempty"`
	LocationLng   *float64          `json:"p_location_lng,omitempty"`
}

// SwitchResult carries both sides of a switch.
type SwitchResult struct {
	Stopped *model.TimeSegment `json:"stopped_segment"`
	Started *model.TimeSegment `json:"started_segment"`
}

// API is the subset of the backend used by the sync engine and the reconciler.
type API interface {
	StartTimeSegment(ctx context.Context, req StartRequest) (*model.TimeSegment, error)
	StopTimeSegment(ctx context.Context, req StopRequest) (*model.TimeSegment, error)
	SwitchTimeSegment(ctx context.Context, req SwitchRequest) (*SwitchResult, error)
	GetActiveTimeSegment(ctx context.Context, employeeID string) (*model.ActiveTimeStatus, error)
	Ping(ctx context.Context) error
}

// Client is the HTTP implementation of API.
type Client struct {
	baseURL     string
	apiKey      string
	accessToken string
	client      *http.Client
	limiter     *rate.Limiter
}

// NewClient creates a client from the remote configuration.
func NewClient(cfg *config.RemoteConfig) *Client {
	limit := rate.Limit(cfg.RateLimitPerSec)
	if cfg.RateLimitPerSec <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		accessToken: cfg.AccessToken,
		client:      &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(limit, burst),
	}
}

// StartTimeSegment calls rpc_start_time_segment.
func (c *Client) StartTimeSegment(ctx context.Context, req StartRequest) (*model.TimeSegment, error) {
	var seg model.TimeSegment
	if err := c.rpc(ctx, fnStart, req, &seg); err != nil {
		return nil, err
	}
	return &seg, nil
}

// StopTimeSegment calls rpc_stop_time_segment.
func (c *Client) StopTimeSegment(ctx context.Context, req StopRequest) (*model.TimeSegment, error) {
	var seg model.TimeSegment
	if err := c.rpc(ctx, fnStop, req, &seg); err != nil {
		return nil, err
	}
	return &seg, nil
}

// SwitchTimeSegment calls rpc_switch_time_segment.
func (c *Client) SwitchTimeSegment(ctx context.Context, req SwitchRequest) (*SwitchResult, error) {
	var res SwitchResult
	if err := c.rpc(ctx, fnSwitch, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetActiveTimeSegment calls rpc_get_active_time_segment. A null body means nothing is open.
func (c *Client) GetActiveTimeSegment(ctx context.Context, employeeID string) (*model.ActiveTimeStatus, error) {
	params := map[string]string{}
	if employeeID != "" {
		params["p_employee_id"] = employeeID
	}
	var status model.ActiveTimeStatus
	if err := c.rpc(ctx, fnGetActive, params, &status); err != nil {
		return nil, err
	}
	if status.Segment == nil {
		status.Active = false
	}
	return &status, nil
}

// Ping checks that the backend is reachable. Any non-5xx answer counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/v1/", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return &Error{Op: "ping", StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

func (c *Client) rpc(ctx context.Context, fn string, params any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", fn, err)
	}

	jsonBody, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal %s params: %w", fn, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/v1/rpc/"+fn, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: http request failed: %w", fn, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response body: %w", fn, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(fn, resp.StatusCode, body)
	}
	return decodeResult(fn, body, out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	token := c.accessToken
	if token == "" {
		token = c.apiKey
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// decodeResult accepts a single object, a one-element array or null.
func decodeResult(fn string, body []byte, out any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		var rows []json.RawMessage
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return fmt.Errorf("%s: failed to unmarshal response: %w", fn, err)
		}
		if len(rows) == 0 {
			return nil
		}
		trimmed = rows[0]
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("%s: failed to unmarshal response: %w", fn, err)
	}
	return nil
}

func decodeError(fn string, status int, body []byte) error {
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	}
	rerr := &Error{Op: fn, StatusCode: status}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		rerr.Code = payload.Code
		rerr.Message = payload.Message
		return rerr
	}
	rerr.Message = strings.TrimSpace(string(body))
	if rerr.Message == "" {
		rerr.Message = http.StatusText(status)
	}
	return rerr
}
