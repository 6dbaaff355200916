package testutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient is a websocket test client for integration testing the event feed.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// NewWSClient dials the given websocket URL and returns a test client.
//
// Precondition: url must be a ws:// or wss:// URL with a listening server.
// Postcondition: Returns a connected WSClient or fails the test.
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()
	start := time.Now()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", url, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	client := &WSClient{
		conn: conn,
		t:    t,
	}

	t.Logf("websocket client connected to %s [%s]", url, time.Since(start))
	return client
}

// ReadMessage reads the next frame from the server.
//
// Postcondition: Returns the raw frame payload, or fails on timeout.
func (c *WSClient) ReadMessage(timeout time.Duration) []byte {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	return data
}

// ReadJSON reads the next frame and decodes it into v.
//
// Precondition: v must be a non-nil pointer.
// Postcondition: v holds the decoded frame, or the test fails.
func (c *WSClient) ReadJSON(timeout time.Duration, v any) {
	c.t.Helper()
	data := c.ReadMessage(timeout)
	if err := json.Unmarshal(data, v); err != nil {
		c.t.Fatalf("decoding frame %q: %v", data, err)
	}
}

// ReadUntilType reads frames until one carries the given event type or the
// timeout elapses. Frames without a type field are skipped.
//
// Precondition: eventType must be non-empty.
// Postcondition: Returns the raw payload of the matching frame, or fails on timeout.
func (c *WSClient) ReadUntilType(eventType string, timeout time.Duration) []byte {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	var last []byte
	for time.Now().Before(deadline) {
		_ = c.conn.SetReadDeadline(deadline)
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("reading until type %q: last frame %q, error: %v", eventType, last, err)
		}
		last = data

		var envelope struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &envelope) == nil && envelope.Type == eventType {
			return data
		}
	}
	c.t.Fatalf("no frame of type %q within %s, last frame %q", eventType, timeout, last)
	return nil
}

// Send writes v to the server as a JSON frame.
//
// Postcondition: v is written to the connection, or the test fails.
func (c *WSClient) Send(v any) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteJSON(v); err != nil {
		c.t.Fatalf("sending %+v: %v", v, err)
	}
}

// Close closes the underlying connection.
func (c *WSClient) Close() {
	c.conn.Close()
}
