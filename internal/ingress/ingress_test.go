package ingress

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/eddndev/agentic-core/internal/queue"
)

type fakeAdmitter struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeAdmitter) Process(ctx context.Context, botID, sessionID, platformUserID, content string, fromMe bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, content)
	return nil
}

func (f *fakeAdmitter) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

type executeCall struct {
	executionID string
	stepID      string
	stepOrder   int
}

type fakeProcessor struct {
	mu    sync.Mutex
	calls []executeCall
}

func (f *fakeProcessor) Execute(ctx context.Context, executionID, stepID string, stepOrder int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, executeCall{executionID: executionID, stepID: stepID, stepOrder: stepOrder})
	return nil
}

func (f *fakeProcessor) snapshot() []executeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]executeCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func newTestInbound(t *testing.T) (*queue.Inbound, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return queue.NewInbound(rdb, "agentic:queue:incoming", "agentic_core_group", "worker-1"), rdb
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatch_MalformedPayloadIsAckedAndDropped(t *testing.T) {
	in, rdb := newTestInbound(t)
	ctx := context.Background()
	if err := in.EnsureGroup(ctx); err != nil {
		t.Fatalf("EnsureGroup: %v", err)
	}
	admitter := &fakeAdmitter{}
	proc := &fakeProcessor{}
	l := New(in, admitter, proc, silentLogger())

	l.dispatch(ctx, queue.Entry{ID: "1-1", Payload: []byte("not json")})

	waitFor(t, func() bool {
		pending, err := rdb.XPending(ctx, "agentic:queue:incoming", "agentic_core_group").Result()
		return err == nil && pending.Count == 0
	})
	if len(admitter.snapshot()) != 0 || len(proc.snapshot()) != 0 {
		t.Fatal("malformed payload must not reach admitter or processor")
	}
}

func TestDispatch_NewMessageRoutesToAdmitter(t *testing.T) {
	in, _ := newTestInbound(t)
	ctx := context.Background()
	if err := in.EnsureGroup(ctx); err != nil {
		t.Fatalf("EnsureGroup: %v", err)
	}
	admitter := &fakeAdmitter{}
	proc := &fakeProcessor{}
	l := New(in, admitter, proc, silentLogger())

	payload := []byte(`{"bot_id":"bot-1","session_id":"sess-1","platform_user_id":"u1","content":"hola"}`)
	l.dispatch(ctx, queue.Entry{ID: "1-1", Payload: payload})

	waitFor(t, func() bool { return len(admitter.snapshot()) == 1 })
	if admitter.snapshot()[0] != "hola" {
		t.Fatalf("unexpected admitter call: %v", admitter.snapshot())
	}
}

func TestDispatch_ExecuteStepRoutesToProcessor(t *testing.T) {
	in, _ := newTestInbound(t)
	ctx := context.Background()
	if err := in.EnsureGroup(ctx); err != nil {
		t.Fatalf("EnsureGroup: %v", err)
	}
	admitter := &fakeAdmitter{}
	proc := &fakeProcessor{}
	l := New(in, admitter, proc, silentLogger())

	payload := []byte(`{"type":"ExecuteStep","execution_id":"exec-1","step_id":"step-1"}`)
	l.dispatch(ctx, queue.Entry{ID: "1-1", Payload: payload})

	waitFor(t, func() bool { return len(proc.snapshot()) == 1 })
	call := proc.snapshot()[0]
	if call.executionID != "exec-1" || call.stepID != "step-1" || call.stepOrder != -1 {
		t.Fatalf("unexpected processor call: %+v", call)
	}
	if len(admitter.snapshot()) != 0 {
		t.Fatal("ExecuteStep must not reach the admitter")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	in, _ := newTestInbound(t)
	admitter := &fakeAdmitter{}
	proc := &fakeProcessor{}
	l := New(in, admitter, proc, silentLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Run(ctx); err == nil {
		t.Fatal("expected Run to return an error when context is already cancelled")
	}
}
