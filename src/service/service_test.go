package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomlink/realtime/config"
	"github.com/roomlink/realtime/src/auth"
	"github.com/roomlink/realtime/src/store"
	"github.com/roomlink/realtime/src/types"
)

type mockConn struct {
	mu       sync.Mutex
	written  []types.ServerEvent
	readCh   chan types.ClientEvent
	closed   bool
	closedCh chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		readCh:   make(chan types.ClientEvent, 16),
		closedCh: make(chan struct{}),
	}
}

func (m *mockConn) WriteJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev, ok := v.(types.ServerEvent); ok {
		m.written = append(m.written, ev)
	}
	return nil
}

func (m *mockConn) ReadJSON(v any) error {
	select {
	case ev := <-m.readCh:
		if ptr, ok := v.(*types.ClientEvent); ok {
			*ptr = ev
		}
		return nil
	case <-m.closedCh:
		return errClosed{}
	}
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type errClosed struct{}

func (errClosed) Error() string { return "connection closed" }

type fakeVerifier struct{}

func (fakeVerifier) Verify(token string) (string, error) {
	if token == "" {
		return "", auth.ErrInvalidToken
	}
	return token, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := config.Default()
	cfg.DeliveredCheckDelay = 10 * time.Millisecond
	return New(cfg, store.NewMemoryStore(), fakeVerifier{}, zerolog.Nop())
}

func connect(t *testing.T, svc *Service, token string) *mockConn {
	t.Helper()
	conn := newMockConn()
	go svc.HandleConnection(conn, token)
	time.Sleep(30 * time.Millisecond)
	return conn
}

func TestServiceConnectionLifecycle(t *testing.T) {
	svc := newTestService(t)

	a := connect(t, svc, "alice")
	b := connect(t, svc, "bob")

	if got := svc.ConnectionCount(); got != 2 {
		t.Errorf("expected 2 connections, got %d", got)
	}
	if got := len(svc.OnlineUsers()); got != 2 {
		t.Errorf("expected 2 online users, got %d", got)
	}

	a.Close()
	time.Sleep(50 * time.Millisecond)

	if got := svc.ConnectionCount(); got != 1 {
		t.Errorf("expected 1 connection after close, got %d", got)
	}
	_ = b
}

func TestServiceMessageIsPersisted(t *testing.T) {
	svc := newTestService(t)

	a := connect(t, svc, "alice")
	payload, _ := json.Marshal(map[string]any{
		"chatId":   "c1",
		"toUserId": "bob",
		"body":     "hello",
	})
	a.readCh <- types.ClientEvent{Kind: types.KindSendMessage, Payload: payload}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		msgs, err := svc.RecentMessages(context.Background(), "c1", 10)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if len(msgs) == 1 {
			if msgs[0].Body != "hello" {
				t.Errorf("expected body hello, got %q", msgs[0].Body)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("message never reached the store")
}

func TestServiceShutdownClosesConnections(t *testing.T) {
	svc := newTestService(t)

	a := connect(t, svc, "alice")
	b := connect(t, svc, "bob")

	svc.Shutdown()
	time.Sleep(50 * time.Millisecond)

	if !a.isClosed() || !b.isClosed() {
		t.Error("shutdown should close every live connection")
	}
	if got := svc.ConnectionCount(); got != 0 {
		t.Errorf("expected empty registry after shutdown, got %d", got)
	}
}
