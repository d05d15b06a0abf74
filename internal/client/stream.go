package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/agentsmith/internal/model"
)

// ReconnectDelay is the pause between stream reconnect attempts.
var ReconnectDelay = time.Second

// ErrStreamClosed is returned when the server ends a stream.
var ErrStreamClosed = errors.New("stream closed by server")

// maxFrameBytes bounds a single SSE line.
const maxFrameBytes = 1 << 20

// handlerError marks errors returned by the caller's handler so they are
// never retried.
type handlerError struct{ err error }

func (e handlerError) Error() string { return e.err.Error() }
func (e handlerError) Unwrap() error { return e.err }

// cursor tracks the resume point of a stream: the newest created_at seen
// and the ids delivered at exactly that millisecond.
type cursor struct {
	ts  int64
	ids map[string]bool
}

func (c *cursor) since() int64 {
	if len(c.ids) == 0 {
		return c.ts
	}
	return c.ts - 1
}

func (c *cursor) seen(evt *model.Event) bool {
	return evt.CreatedAt < c.ts || (evt.CreatedAt == c.ts && c.ids[evt.ID])
}

func (c *cursor) advance(evt *model.Event) {
	if evt.CreatedAt > c.ts || c.ids == nil {
		c.ts = evt.CreatedAt
		c.ids = map[string]bool{}
	}
	c.ids[evt.ID] = true
}

// Stream follows a room's SSE stream, calling handle for every event in
// order. It returns nil when ctx is cancelled. With req.Reconnect set,
// dropped connections are retried from the last event seen; API errors
// and handler errors are always returned.
func (c *HTTPClient) Stream(ctx context.Context, req *StreamRequest, handle func(*model.Event) error) error {
	cur := &cursor{ts: req.Since}
	for {
		err := c.streamOnce(ctx, req, cur, handle)
		if ctx.Err() != nil {
			return nil
		}
		var apiErr *APIError
		var hErr handlerError
		if !req.Reconnect || errors.As(err, &apiErr) || errors.As(err, &hErr) {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(ReconnectDelay):
		}
	}
}

func (c *HTTPClient) streamOnce(ctx context.Context, req *StreamRequest, cur *cursor, handle func(*model.Event) error) error {
	q := url.Values{}
	q.Set("since", strconv.FormatInt(cur.since(), 10))
	if req.Format != "" {
		q.Set("format", req.Format)
	}
	httpReq, err := c.newRequest(ctx, http.MethodGet, roomPath(req.RoomID, "/events/stream?", q.Encode()), nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var buf [4096]byte
		n, _ := resp.Body.Read(buf[:])
		return decodeAPIError(resp.StatusCode, buf[:n])
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)

	var kind, data string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if kind == "event" && data != "" {
				var evt model.Event
				if err := json.Unmarshal([]byte(data), &evt); err != nil {
					return fmt.Errorf("decoding stream event: %w", err)
				}
				if !cur.seen(&evt) {
					cur.advance(&evt)
					if err := handle(&evt); err != nil {
						return handlerError{err}
					}
				}
			}
			kind, data = "", ""
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			kind = value
		case "data":
			data += value
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return ErrStreamClosed
}
