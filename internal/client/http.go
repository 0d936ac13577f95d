package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/notify/internal/model"
)

// HTTPClient implements NotifyClient using the notifyd REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ NotifyClient = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request: a receiver JWT for the inbox endpoints, or
// the service token for PublishEvent.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func (c *HTTPClient) ListMessages(ctx context.Context, req *ListMessagesRequest) (*model.MessagePage, error) {
	q := url.Values{}
	if req != nil {
		if req.Type != "" {
			q.Set("type", req.Type)
		}
		if req.IsRead != nil {
			q.Set("is_read", strconv.FormatBool(*req.IsRead))
		}
		if !req.StartTime.IsZero() {
			q.Set("start_time", req.StartTime.Format(time.RFC3339))
		}
		if !req.EndTime.IsZero() {
			q.Set("end_time", req.EndTime.Format(time.RFC3339))
		}
		if req.Page > 0 {
			q.Set("page", strconv.Itoa(req.Page))
		}
		if req.PageSize > 0 {
			q.Set("page_size", strconv.Itoa(req.PageSize))
		}
		if req.Sort != "" {
			q.Set("sort", req.Sort)
		}
	}

	path := "/v1/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page model.MessagePage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *HTTPClient) MarkAsRead(ctx context.Context, messageID int64) error {
	return c.doJSON(ctx, http.MethodPatch, "/v1/messages/"+strconv.FormatInt(messageID, 10)+"/read", nil, nil)
}

func (c *HTTPClient) MarkAsReadBatch(ctx context.Context, messageIDs []int64) (int, error) {
	body := map[string][]int64{"messageIds": messageIDs}
	var resp struct {
		Updated int `json:"updated"`
	}
	if err := c.doJSON(ctx, http.MethodPatch, "/v1/messages/read-batch", body, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (c *HTTPClient) MarkAllAsRead(ctx context.Context) (int, error) {
	var resp struct {
		Updated int `json:"updated"`
	}
	if err := c.doJSON(ctx, http.MethodPatch, "/v1/messages/read-all", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (c *HTTPClient) DeleteMessage(ctx context.Context, messageID int64) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/messages/"+strconv.FormatInt(messageID, 10), nil, nil)
}

func (c *HTTPClient) UnreadCount(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/messages/unread/count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *HTTPClient) UnreadCountByType(ctx context.Context) (map[string]int, error) {
	var resp map[string]int
	if err := c.doJSON(ctx, http.MethodGet, "/v1/messages/unread/by-type", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *HTTPClient) OnlineCount(ctx context.Context) (int, error) {
	var resp struct {
		Online int `json:"online"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/presence/online", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Online, nil
}

// PublishEvent submits a producer event. The client's token must be the
// server's service token.
func (c *HTTPClient) PublishEvent(ctx context.Context, ev model.Event) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/internal/events", ev, nil)
}

// Presence lists online users, most recently connected first. Like
// PublishEvent it needs the service token.
func (c *HTTPClient) Presence(ctx context.Context) ([]PresenceEntry, error) {
	var entries []PresenceEntry
	if err := c.doJSON(ctx, http.MethodGet, "/v1/internal/presence", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Health fetches the server's health summary. No token is required.
func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for 202/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content: success with no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
