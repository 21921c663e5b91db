package internal_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/koopa0/system-design/rps-rooms/internal"
	"github.com/stretchr/testify/require"
)

// 創建測試用的 logger
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // 測試時只顯示錯誤
	}))
}

// envelope 解析後的服務器訊息
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// fakeConn 記錄所有送出的訊息
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection closed")
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) events(t *testing.T) []envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]envelope, 0, len(c.frames))
	for _, frame := range c.frames {
		var env envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, env := range c.events(t) {
		out = append(out, env.Type)
	}
	return out
}

// last 最後一則指定類型的訊息
func (c *fakeConn) last(t *testing.T, typ string) envelope {
	t.Helper()
	events := c.events(t)
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == typ {
			return events[i]
		}
	}
	t.Fatalf("no %s message received; got %v", typ, c.types(t))
	return envelope{}
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

// newTestCoordinator 創建協調者與其房間註冊表
func newTestCoordinator(t *testing.T, opts ...internal.CoordinatorOption) (*internal.Coordinator, *internal.Registry) {
	t.Helper()
	logger := testLogger()
	registry := internal.NewRegistry(logger, internal.PendingClearOnPair)
	return internal.NewCoordinator(registry, logger, opts...), registry
}

// connect 建立一條連線並回傳其 clientID
func connect(t *testing.T, c *internal.Coordinator) (*fakeConn, string) {
	t.Helper()
	conn := &fakeConn{}
	clientID := c.Connect(context.Background(), conn)
	require.NotEmpty(t, clientID)
	return conn, clientID
}

// send 以線上格式送出一則訊息
func send(t *testing.T, c *internal.Coordinator, conn *fakeConn, typ string, payload any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	c.HandleMessage(context.Background(), conn, data)
}
