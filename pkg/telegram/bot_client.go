package telegram

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

const DefaultAPIBase = "https://api.telegram.org"

type BotClient struct {
	apiBase    string
	token      string
	httpClient *http.Client
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Update is one getUpdates entry. Non-message updates decode with a nil
// Message and are skipped by the poller.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Date      int64  `json:"date"`
	Chat      Chat   `json:"chat"`
}

type Chat struct {
	ID int64 `json:"id"`
}

// ChatID returns the chat identifier as a string for comparison with
// the configured chat id, which may be numeric or not.
func (m Message) ChatID() string {
	return strconv.FormatInt(m.Chat.ID, 10)
}

func NewBotClient(token string, httpClient *http.Client) *BotClient {
	return NewBotClientWithBase(DefaultAPIBase, token, httpClient)
}

func NewBotClientWithBase(apiBase, token string, httpClient *http.Client) *BotClient {
	client := httpClient
	if client == nil {
		client = &http.Client{Timeout: 35 * time.Second}
	}
	return &BotClient{
		apiBase:    strings.TrimRight(strings.TrimSpace(apiBase), "/"),
		token:      strings.TrimSpace(token),
		httpClient: client,
	}
}

func (c *BotClient) SendMessage(ctx context.Context, chatID, text string) error {
	return c.send(ctx, chatID, text, "")
}

func (c *BotClient) SendMarkdown(ctx context.Context, chatID, md string) error {
	return c.send(ctx, chatID, md, "Markdown")
}

func (c *BotClient) send(ctx context.Context, chatID, text, parseMode string) error {
	if c == nil {
		return errors.New("telegram client is nil")
	}
	if c.token == "" {
		return errors.New("telegram bot token is empty")
	}
	if strings.TrimSpace(chatID) == "" {
		return errors.New("chat id is required")
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("message is empty")
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             parseMode,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return err
	}
	_, err = c.call(ctx, "sendMessage", nil, body)
	return err
}

// GetUpdates long polls for updates past offset. timeout is the server
// side hold in seconds; the HTTP client must outlive it.
func (c *BotClient) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	if c == nil || c.token == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	query := url.Values{}
	query.Set("offset", strconv.FormatInt(offset, 10))
	query.Set("timeout", strconv.Itoa(timeout))

	raw, err := c.call(ctx, "getUpdates", query, nil)
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, fmt.Errorf("telegram: decode updates: %w", err)
	}
	return updates, nil
}

func (c *BotClient) call(ctx context.Context, method string, query url.Values, body []byte) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.apiBase, url.PathEscape(c.token), method)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	endpointURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	baseURL, err := url.Parse(c.apiBase)
	if err != nil || !strings.EqualFold(endpointURL.Host, baseURL.Host) {
		return nil, errors.New("invalid telegram api endpoint")
	}

	httpMethod := http.MethodGet
	var reader io.Reader
	if body != nil {
		httpMethod = http.MethodPost
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, httpMethod, endpointURL.String(), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var apiResp apiResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&apiResp); decodeErr != nil {
		return nil, decodeErr
	}
	if resp.StatusCode >= http.StatusBadRequest || !apiResp.OK {
		if apiResp.Description == "" {
			apiResp.Description = "telegram api request failed"
		}
		return nil, fmt.Errorf("telegram api error: %s", apiResp.Description)
	}
	return apiResp.Result, nil
}
