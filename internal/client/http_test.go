package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alfredjeanlab/agentsmith/internal/model"
)

// testHandler captures the incoming request details and returns a canned response.
type testHandler struct {
	// captured from the request
	method      string
	path        string
	rawPath     string
	query       string
	body        string
	contentType string
	auth        string

	// canned response
	statusCode   int
	responseBody string
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.method = r.Method
	h.path = r.URL.Path
	h.rawPath = r.URL.RawPath
	h.query = r.URL.RawQuery
	h.contentType = r.Header.Get("Content-Type")
	h.auth = r.Header.Get("Authorization")
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		h.body = string(data)
	}

	w.Header().Set("Content-Type", "application/json")
	if h.statusCode != 0 {
		w.WriteHeader(h.statusCode)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if h.responseBody != "" {
		_, _ = w.Write([]byte(h.responseBody))
	}
}

// newTestClient creates an HTTPClient pointed at a test server with the given handler.
func newTestClient(h http.Handler, token string) (*HTTPClient, *httptest.Server) {
	srv := httptest.NewServer(h)
	return NewHTTPClient(srv.URL+"/", token), srv
}

func TestEmit(t *testing.T) {
	h := &testHandler{
		statusCode:   http.StatusCreated,
		responseBody: `{"id":"01ABC","room_id":"r1","created_at":1,"expires_at":300001,"messages":[{"q":1}]}`,
	}
	c, srv := newTestClient(h, "tok")
	defer srv.Close()

	res, err := c.Emit(context.Background(), &model.EventInput{
		RoomID:  "r1",
		Type:    "hook.Stop",
		Format:  "claude-code",
		Sender:  model.Participant{UserID: "alice", SessionID: "s1"},
		Payload: json.RawMessage(`{}`),
	}, "plain")
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	if h.method != "POST" || h.path != "/api/v1/rooms/r1/events" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
	if h.query != "format=plain" {
		t.Errorf("query = %q", h.query)
	}
	if h.contentType != "application/json" {
		t.Errorf("content type = %q", h.contentType)
	}
	if h.auth != "Bearer tok" {
		t.Errorf("authorization = %q", h.auth)
	}
	var sent model.EventInput
	if err := json.Unmarshal([]byte(h.body), &sent); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if sent.Sender.UserID != "alice" || sent.Type != "hook.Stop" {
		t.Errorf("sent = %+v", sent)
	}
	if res.ID != "01ABC" || len(res.Messages) != 1 || string(res.Messages[0]) != `{"q":1}` {
		t.Errorf("result = %+v", res)
	}
}

func TestPoll(t *testing.T) {
	h := &testHandler{responseBody: `{"events":[{"id":"E1","room_id":"r1","created_at":5}],"latest_ts":5}`}
	c, srv := newTestClient(h, "")
	defer srv.Close()

	res, err := c.Poll(context.Background(), "r1", 0, 10, "")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if h.path != "/api/v1/rooms/r1/events" || h.query != "limit=10&since=0" {
		t.Errorf("request = %s?%s", h.path, h.query)
	}
	if h.auth != "" {
		t.Errorf("unexpected authorization header %q", h.auth)
	}
	if len(res.Events) != 1 || res.LatestTS != 5 {
		t.Errorf("result = %+v", res)
	}
}

func TestRooms(t *testing.T) {
	for _, tc := range []struct {
		name   string
		call   func(c *HTTPClient) error
		method string
		path   string
		body   string
	}{
		{
			name: "create",
			call: func(c *HTTPClient) error {
				_, err := c.CreateRoom(context.Background(), "team-alpha")
				return err
			},
			method: "POST", path: "/api/v1/rooms", body: `{"id":"team-alpha"}`,
		},
		{
			name: "list",
			call: func(c *HTTPClient) error {
				_, err := c.ListRooms(context.Background())
				return err
			},
			method: "GET", path: "/api/v1/rooms",
		},
		{
			name: "get",
			call: func(c *HTTPClient) error {
				_, err := c.GetRoom(context.Background(), "team-alpha")
				return err
			},
			method: "GET", path: "/api/v1/rooms/team-alpha",
		},
		{
			name: "presence",
			call: func(c *HTTPClient) error {
				_, err := c.Presence(context.Background(), "team-alpha")
				return err
			},
			method: "GET", path: "/api/v1/rooms/team-alpha/presence",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := &testHandler{responseBody: `{}`}
			c, srv := newTestClient(h, "")
			defer srv.Close()

			if err := tc.call(c); err != nil {
				t.Fatalf("call: %v", err)
			}
			if h.method != tc.method || h.path != tc.path {
				t.Errorf("request = %s %s, want %s %s", h.method, h.path, tc.method, tc.path)
			}
			if tc.body != "" && h.body != tc.body {
				t.Errorf("body = %q, want %q", h.body, tc.body)
			}
		})
	}
}

func TestRoomPathEscapes(t *testing.T) {
	h := &testHandler{responseBody: `{}`}
	c, srv := newTestClient(h, "")
	defer srv.Close()

	_, _ = c.GetRoom(context.Background(), "a/b")
	if h.rawPath != "/api/v1/rooms/a%2Fb" {
		t.Errorf("raw path = %q", h.rawPath)
	}
}

func TestListRooms_Decodes(t *testing.T) {
	h := &testHandler{responseBody: `{"rooms":[{"id":"r1","created_by":"alice","created_at":1,"member_count":3}]}`}
	c, srv := newTestClient(h, "")
	defer srv.Close()

	rooms, err := c.ListRooms(context.Background())
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].ID != "r1" || rooms[0].MemberCount != 3 {
		t.Fatalf("rooms = %+v", rooms)
	}
}

func TestHealth(t *testing.T) {
	h := &testHandler{responseBody: `{"status":"ok"}`}
	c, srv := newTestClient(h, "")
	defer srv.Close()

	st, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if st != "ok" || h.path != "/health" {
		t.Errorf("status=%q path=%q", st, h.path)
	}
}

func TestAPIError(t *testing.T) {
	for _, tc := range []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{"structured", http.StatusBadRequest, `{"error":"VALIDATION_ERROR","message":"type: is required"}`, "VALIDATION_ERROR", "type: is required"},
		{"plain text", http.StatusBadGateway, "upstream down\n", "", "upstream down"},
		{"not found", http.StatusNotFound, `{"error":"NOT_FOUND","message":"room \"x\" not found"}`, "NOT_FOUND", `room "x" not found`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := &testHandler{statusCode: tc.status, responseBody: tc.body}
			c, srv := newTestClient(h, "")
			defer srv.Close()

			_, err := c.Health(context.Background())
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %v", err)
			}
			if apiErr.StatusCode != tc.status || apiErr.Code != tc.wantCode || apiErr.Message != tc.wantMsg {
				t.Errorf("APIError = %+v", apiErr)
			}
			if !strings.Contains(apiErr.Error(), tc.wantMsg) {
				t.Errorf("Error() = %q", apiErr.Error())
			}
		})
	}
}

func TestConnectionError(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", "")
	if _, err := c.Health(context.Background()); err == nil {
		t.Fatal("expected connection error")
	}
}
