// Package backend is the REST client for the Plugwise-2-py web server. It
// reads and writes the device documents and schedules and forwards commands
// to the /mqtt/ endpoint.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/sweeney/pw-dashboard/internal/circle"
	"github.com/sweeney/pw-dashboard/internal/mqtt"
	"github.com/sweeney/pw-dashboard/internal/schedule"
)

// DefaultTimeout bounds every backend request.
const DefaultTimeout = 10 * time.Second

// Backend paths.
const (
	PathStatic    = "/pw-conf.json"
	PathControl   = "/pw-control.json"
	PathSchedules = "/schedules"
	PathSchedule  = "/schedules/{name}.json"
	PathCommand   = "/mqtt/"
)

// APIError is a non-2xx answer of the backend.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("backend %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// Options configure a Client.
type Options struct {
	BaseURL  string
	Timeout  time.Duration
	Username string
	Password string
	Retries  int
}

// Client talks to the backend over HTTP.
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

// New creates a client for the backend at opts.BaseURL.
func New(opts Options, log zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	c := resty.New().
		SetBaseURL(strings.TrimSuffix(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")
	if opts.Username != "" {
		c.SetBasicAuth(opts.Username, opts.Password)
	}
	return &Client{http: c, log: log}
}

// StaticConfig fetches the device inventory.
func (c *Client) StaticConfig(ctx context.Context) (circle.StaticDocument, error) {
	var doc circle.StaticDocument
	err := c.getJSON(ctx, PathStatic, nil, &doc)
	return doc, err
}

// ControlConfig fetches the dynamic control document.
func (c *Client) ControlConfig(ctx context.Context) (circle.ControlDocument, error) {
	var doc circle.ControlDocument
	err := c.getJSON(ctx, PathControl, nil, &doc)
	return doc, err
}

// SaveControlConfig replaces the dynamic control document.
func (c *Client) SaveControlConfig(ctx context.Context, doc circle.ControlDocument) error {
	return c.postJSON(ctx, PathControl, nil, doc)
}

// ListSchedules returns the schedule names known to the backend.
func (c *Client) ListSchedules(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.getJSON(ctx, PathSchedules, nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// GetSchedule fetches one schedule document.
func (c *Client) GetSchedule(ctx context.Context, name string) (schedule.Schedule, error) {
	var s schedule.Schedule
	err := c.getJSON(ctx, PathSchedule, map[string]string{"name": name}, &s)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return schedule.Schedule{}, fmt.Errorf("%w: %w", schedule.ErrNotFound, err)
	}
	if err != nil {
		return schedule.Schedule{}, err
	}
	if s.Name == "" {
		s.Name = name
	}
	return s, nil
}

// PutSchedule writes the full schedule document.
func (c *Client) PutSchedule(ctx context.Context, s schedule.Schedule) error {
	return c.postJSON(ctx, PathSchedule, map[string]string{"name": s.Name}, s)
}

// DeleteSchedule removes a schedule file.
func (c *Client) DeleteSchedule(ctx context.Context, name string) error {
	return c.postJSON(ctx, PathSchedules, nil, map[string]string{"delete": name + ".json"})
}

// SendCommand posts the command envelope to the backend, which publishes it
// on its MQTT connection.
func (c *Client) SendCommand(ctx context.Context, cmd mqtt.Command) error {
	return c.postJSON(ctx, PathCommand, nil, cmd)
}

func (c *Client) getJSON(ctx context.Context, path string, params map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(params).
		Get(path)
	if err != nil {
		c.log.Error().Err(err).Str("path", path).Msg("backend request failed")
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.IsError() {
		return c.apiError(resp)
	}
	// The backend serves documents as static files; the content type is not
	// reliable, so decode the body directly.
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s: %w", resp.Request.URL, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, params map[string]string, body any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(params).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if err != nil {
		c.log.Error().Err(err).Str("path", path).Msg("backend request failed")
		return fmt.Errorf("POST %s: %w", path, err)
	}
	if resp.IsError() {
		return c.apiError(resp)
	}
	return nil
}

func (c *Client) apiError(resp *resty.Response) error {
	e := &APIError{
		Method:     resp.Request.Method,
		Path:       resp.Request.URL,
		StatusCode: resp.StatusCode(),
		Body:       resp.String(),
	}
	c.log.Warn().Str("method", e.Method).Str("path", e.Path).Int("status", e.StatusCode).Msg("backend rejected request")
	return e
}
