package hetzner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.hetzner.cloud/v1"

var (
	ErrUnauthorized = errors.New("hetzner: unauthorized")
	ErrNotFound     = errors.New("hetzner: not found")
	ErrRateLimited  = errors.New("hetzner: rate limited")
	ErrServerError  = errors.New("hetzner: server error")
)

// Client is a thin wrapper over the Hetzner Cloud API. It retries
// transient failures with a short delay; longer application-level
// retry loops (create after delete) belong to the caller.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	maxAttempts int
	retryDelay  time.Duration
}

func New(token string) *Client {
	return NewWithBaseURL(DefaultBaseURL, token)
}

func NewWithBaseURL(baseURL, token string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:       strings.TrimSpace(token),
		httpClient:  &http.Client{Timeout: 20 * time.Second},
		maxAttempts: 3,
		retryDelay:  500 * time.Millisecond,
	}
}

func (c *Client) GetServers(ctx context.Context) ([]Server, error) {
	var out serversResponse
	if err := c.doWithRetry(ctx, http.MethodGet, "/servers", nil, &out); err != nil {
		return nil, err
	}
	return out.Servers, nil
}

func (c *Client) GetServer(ctx context.Context, serverID int64) (*Server, error) {
	var out serverResponse
	if err := c.doWithRetry(ctx, http.MethodGet, "/servers/"+strconv.FormatInt(serverID, 10), nil, &out); err != nil {
		return nil, err
	}
	if out.Server == nil {
		return nil, ErrNotFound
	}
	return out.Server, nil
}

// GetServerMetrics fetches the traffic rate series between two RFC3339
// instants.
func (c *Client) GetServerMetrics(ctx context.Context, serverID int64, start, end string) (*Metrics, error) {
	query := url.Values{}
	query.Set("type", "traffic")
	query.Set("start", start)
	query.Set("end", end)
	path := "/servers/" + strconv.FormatInt(serverID, 10) + "/metrics?" + query.Encode()

	var out metricsResponse
	if err := c.doWithRetry(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out.Metrics, nil
}

func (c *Client) DeleteServer(ctx context.Context, serverID int64) error {
	return c.doWithRetry(ctx, http.MethodDelete, "/servers/"+strconv.FormatInt(serverID, 10), nil, nil)
}

func (c *Client) PowerOnServer(ctx context.Context, serverID int64) error {
	return c.serverAction(ctx, serverID, "poweron")
}

func (c *Client) PowerOffServer(ctx context.Context, serverID int64) error {
	return c.serverAction(ctx, serverID, "poweroff")
}

func (c *Client) RebootServer(ctx context.Context, serverID int64) error {
	return c.serverAction(ctx, serverID, "reboot")
}

func (c *Client) serverAction(ctx context.Context, serverID int64, action string) error {
	path := "/servers/" + strconv.FormatInt(serverID, 10) + "/actions/" + action
	return c.doWithRetry(ctx, http.MethodPost, path, nil, nil)
}

// GetSnapshots returns all snapshot images, newest first.
func (c *Client) GetSnapshots(ctx context.Context) ([]Image, error) {
	var out imagesResponse
	if err := c.doWithRetry(ctx, http.MethodGet, "/images?type=snapshot", nil, &out); err != nil {
		return nil, err
	}
	images := out.Images
	for i := 1; i < len(images); i++ {
		for j := i; j > 0 && images[j].Created > images[j-1].Created; j-- {
			images[j], images[j-1] = images[j-1], images[j]
		}
	}
	return images, nil
}

func (c *Client) CreateSnapshot(ctx context.Context, serverID int64, description string) (*Image, error) {
	payload := map[string]any{"type": "snapshot"}
	if description != "" {
		payload["description"] = description
	}
	path := "/servers/" + strconv.FormatInt(serverID, 10) + "/actions/create_image"

	var out imageResponse
	if err := c.doWithRetry(ctx, http.MethodPost, path, payload, &out); err != nil {
		return nil, err
	}
	if out.Image == nil {
		return nil, fmt.Errorf("hetzner: create_image returned no image")
	}
	return out.Image, nil
}

func (c *Client) CreateServer(ctx context.Context, req CreateServerRequest) (*Server, error) {
	if req.ServerType == "" || req.Location == "" {
		return nil, fmt.Errorf("hetzner: create server needs server_type and location")
	}
	var out serverResponse
	if err := c.doWithRetry(ctx, http.MethodPost, "/servers", req, &out); err != nil {
		return nil, err
	}
	if out.Server == nil {
		return nil, fmt.Errorf("hetzner: create server returned no server")
	}
	return out.Server, nil
}

func (c *Client) doWithRetry(ctx context.Context, method, path string, body any, out any) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err) || attempt == c.maxAttempts {
			break
		}

		timer := time.NewTimer(c.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, body any, out any) error {
	if c.baseURL == "" {
		return errors.New("hetzner: empty base url")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	responseBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status=%d", ErrServerError, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("hetzner: http %d: %s", resp.StatusCode, truncateBody(responseBody))
	}

	if out == nil || len(bytes.TrimSpace(responseBody)) == 0 {
		return nil
	}
	return json.Unmarshal(responseBody, out)
}

func truncateBody(body []byte) string {
	const limit = 200
	text := strings.TrimSpace(string(body))
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServerError) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return true
	}
	return strings.Contains(err.Error(), "connection refused")
}
