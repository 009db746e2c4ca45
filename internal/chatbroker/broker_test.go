package chatbroker

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"medtutor/internal/config"
	"medtutor/internal/domain"
	"medtutor/internal/llmorch"
	"medtutor/internal/store/memstore"
)

// fakeConn is a Conn backed by an inbound channel the test drives directly
// and an outbound slice the test can poll, avoiding any real network socket.
type fakeConn struct {
	inbound chan InboundFrame

	mu  sync.Mutex
	out []OutboundFrame
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan InboundFrame, 8)}
}

func (c *fakeConn) ReadJSON(v any) error {
	f, ok := <-c.inbound
	if !ok {
		return io.EOF
	}
	*(v.(*InboundFrame)) = f
	return nil
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, v.(OutboundFrame))
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) frames() []OutboundFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]OutboundFrame, len(c.out))
	copy(out, c.out)
	return out
}

func (c *fakeConn) send(f InboundFrame) { c.inbound <- f }

// waitUntil polls cond until it is true or timeout elapses, failing the test
// otherwise.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func helperOrchestrator(t *testing.T, mode string) *llmorch.Orchestrator {
	t.Helper()
	os.Setenv("CHATBROKER_WANT_HELPER_PROCESS", mode)
	t.Cleanup(func() { os.Unsetenv("CHATBROKER_WANT_HELPER_PROCESS") })
	return llmorch.New(config.OrchestratorConfig{
		Binary:               os.Args[0],
		Args:                 []string{"-test.run=TestHelperProcess", "--", mode},
		ModelAllowList:       []string{"default"},
		IdleTimeout:          2 * time.Second,
		MaxConcurrent:        4,
		MaxConcurrentPerUser: 2,
		CancelGrace:          100 * time.Millisecond,
	})
}

func TestHelperProcess(t *testing.T) {
	mode := os.Getenv("CHATBROKER_WANT_HELPER_PROCESS")
	if mode == "" {
		return
	}
	defer os.Exit(0)

	switch mode {
	case "reply":
		fmt.Fprint(os.Stdout, "hello there")
	case "hang":
		fmt.Fprint(os.Stdout, "partial")
		time.Sleep(5 * time.Second)
	}
}

func newTestBroker(t *testing.T, mode string) (*Broker, *memstore.Conversations, string) {
	t.Helper()
	orch := helperOrchestrator(t, mode)
	conversations := memstore.NewConversations()
	conv, err := conversations.CreateConversation(context.Background(), domain.Conversation{OwnerID: "owner-1"})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	b := New(conversations, nil, orch, config.ChatConfig{})
	return b, conversations, conv.ID
}

func TestServeStreamsDeltasAndPersistsAssistantMessage(t *testing.T) {
	b, conversations, convID := newTestBroker(t, "reply")
	conn := newFakeConn()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Serve(ctx, conn, "owner-1", convID)

	conn.send(InboundFrame{Type: FrameTypeMessage, Content: "what is the diagnosis?"})

	waitUntil(t, 2*time.Second, func() bool {
		for _, f := range conn.frames() {
			if f.Type == FrameTypeEnd {
				return true
			}
		}
		return false
	})

	msgs, err := conversations.ListMessages(context.Background(), convID, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2 (user + assistant)", len(msgs))
	}
	if msgs[1].Role != domain.RoleAssistant || msgs[1].Content != "hello there" {
		t.Fatalf("assistant message = %+v, want content %q", msgs[1], "hello there")
	}
	if msgs[1].Interrupted {
		t.Fatalf("assistant message should not be marked interrupted")
	}
}

func TestServeRejectsConcurrentMessageWithBusy(t *testing.T) {
	b, _, convID := newTestBroker(t, "reply")
	lock := b.conversationLock(convID)
	lock.Lock()
	defer lock.Unlock()

	conn := newFakeConn()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Serve(ctx, conn, "owner-1", convID)

	conn.send(InboundFrame{Type: FrameTypeMessage, Content: "hello"})

	waitUntil(t, time.Second, func() bool { return len(conn.frames()) > 0 })
	frames := conn.frames()
	if len(frames) != 1 || frames[0].Type != FrameTypeBusy {
		t.Fatalf("frames = %+v, want a single busy frame", frames)
	}
}

func TestServeCancelInterruptsInFlightTurn(t *testing.T) {
	b, conversations, convID := newTestBroker(t, "hang")
	conn := newFakeConn()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Serve(ctx, conn, "owner-1", convID)

	conn.send(InboundFrame{Type: FrameTypeMessage, Content: "go slow"})
	time.Sleep(100 * time.Millisecond) // let the turn reach the streaming state
	conn.send(InboundFrame{Type: FrameTypeCancel})

	var msgs []domain.Message
	waitUntil(t, 2*time.Second, func() bool {
		var err error
		msgs, err = conversations.ListMessages(context.Background(), convID, 0)
		if err != nil {
			t.Fatalf("ListMessages: %v", err)
		}
		return len(msgs) == 2
	})
	if !msgs[1].Interrupted {
		t.Fatalf("assistant message = %+v, want Interrupted = true", msgs[1])
	}
}

func TestServeUnknownFrameTypeProducesErrorFrame(t *testing.T) {
	b, _, convID := newTestBroker(t, "reply")
	conn := newFakeConn()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Serve(ctx, conn, "owner-1", convID)

	conn.send(InboundFrame{Type: "bogus"})

	waitUntil(t, time.Second, func() bool { return len(conn.frames()) > 0 })
	frames := conn.frames()
	if len(frames) != 1 || frames[0].Type != FrameTypeError || frames[0].Code != "bad_request" {
		t.Fatalf("frames = %+v, want a single bad_request error frame", frames)
	}
}
