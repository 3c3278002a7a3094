package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

var ErrRecordNotFound = errors.New("cloudflare: dns record not found")

// Client drives the small slice of the Cloudflare API the watchdog
// needs: repointing existing A records after a server changes address.
// Tokens are per call because record_map entries may override them.
type Client struct {
	baseURL    string
	httpClient *http.Client

	maxAttempts int
	retryDelay  time.Duration
}

func New() *Client {
	return NewWithBaseURL(DefaultBaseURL)
}

func NewWithBaseURL(baseURL string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		maxAttempts: 3,
		retryDelay:  3 * time.Second,
	}
}

type dnsRecord struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type listRecordsResponse struct {
	Success bool        `json:"success"`
	Errors  []apiError  `json:"errors"`
	Result  []dnsRecord `json:"result"`
}

type updateRecordResponse struct {
	Success bool       `json:"success"`
	Errors  []apiError `json:"errors"`
}

// UpdateARecord repoints an existing A record at ip, preserving its TTL
// and proxy flag. A record that does not exist is a terminal error;
// transient failures are retried.
func (c *Client) UpdateARecord(ctx context.Context, apiToken, zoneID, recordName, ip string) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err := c.updateOnce(ctx, apiToken, zoneID, recordName, ip)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrRecordNotFound) {
			return err
		}
		lastErr = err

		if attempt == c.maxAttempts {
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

func (c *Client) updateOnce(ctx context.Context, apiToken, zoneID, recordName, ip string) error {
	query := url.Values{}
	query.Set("type", "A")
	query.Set("name", recordName)
	listPath := "/zones/" + zoneID + "/dns_records?" + query.Encode()

	var listed listRecordsResponse
	if err := c.do(ctx, http.MethodGet, listPath, apiToken, nil, &listed); err != nil {
		return err
	}
	if len(listed.Result) == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, recordName)
	}
	record := listed.Result[0]

	ttl := record.TTL
	if ttl == 0 {
		ttl = 1
	}
	payload := map[string]any{
		"type":    "A",
		"name":    recordName,
		"content": ip,
		"ttl":     ttl,
		"proxied": record.Proxied,
	}

	var updated updateRecordResponse
	updatePath := "/zones/" + zoneID + "/dns_records/" + record.ID
	if err := c.do(ctx, http.MethodPut, updatePath, apiToken, payload, &updated); err != nil {
		return err
	}
	if !updated.Success {
		return fmt.Errorf("cloudflare: update rejected: %s", firstErrorMessage(updated.Errors))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, apiToken string, body any, out any) error {
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
	req.Header.Set("Authorization", "Bearer "+apiToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	responseBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("cloudflare: http %d: %s", resp.StatusCode, truncateBody(responseBody))
	}
	if out == nil || len(bytes.TrimSpace(responseBody)) == 0 {
		return nil
	}
	return json.Unmarshal(responseBody, out)
}

func firstErrorMessage(errs []apiError) string {
	if len(errs) == 0 {
		return "unknown error"
	}
	return errs[0].Message
}

func truncateBody(body []byte) string {
	const limit = 200
	text := strings.TrimSpace(string(body))
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}
