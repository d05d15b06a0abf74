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

	"github.com/alfredjeanlab/agentsmith/internal/model"
)

// HTTPClient implements Client using the agentsmith HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func roomPath(roomID string, rest ...string) string {
	return "/api/v1/rooms/" + url.PathEscape(roomID) + strings.Join(rest, "")
}

// --- Events ---

func (c *HTTPClient) Emit(ctx context.Context, in *model.EventInput, format string) (*model.EmitResult, error) {
	path := roomPath(in.RoomID, "/events")
	if format != "" {
		path += "?" + url.Values{"format": {format}}.Encode()
	}
	var res model.EmitResult
	if err := c.doJSON(ctx, http.MethodPost, path, in, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) Poll(ctx context.Context, roomID string, since int64, limit int, format string) (*model.PollResult, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatInt(since, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if format != "" {
		q.Set("format", format)
	}
	var res model.PollResult
	if err := c.doJSON(ctx, http.MethodGet, roomPath(roomID, "/events?", q.Encode()), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// --- Rooms ---

func (c *HTTPClient) CreateRoom(ctx context.Context, id string) (*model.Room, error) {
	var room model.Room
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/rooms", map[string]string{"id": id}, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *HTTPClient) ListRooms(ctx context.Context) ([]*model.RoomSummary, error) {
	var resp struct {
		Rooms []*model.RoomSummary `json:"rooms"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/rooms", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

func (c *HTTPClient) GetRoom(ctx context.Context, id string) (*model.RoomDetail, error) {
	var room model.RoomDetail
	if err := c.doJSON(ctx, http.MethodGet, roomPath(id), nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *HTTPClient) Presence(ctx context.Context, roomID string) ([]model.PresenceSession, error) {
	var resp struct {
		Sessions []model.PresenceSession `json:"sessions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, roomPath(roomID, "/presence"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Code       string // e.g. VALIDATION_ERROR; empty when the body was not an error object
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return &APIError{StatusCode: status, Code: errResp.Error, Message: errResp.Message}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}
