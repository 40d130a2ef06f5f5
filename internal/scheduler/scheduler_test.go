package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/eddndev/agentic-core/internal/model"
	"github.com/eddndev/agentic-core/internal/store"
)

func TestJitteredDelay_StaysWithinVariance(t *testing.T) {
	for i := 0; i < 200; i++ {
		d := jitteredDelay(1000, 20)
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("delay %v outside [800ms,1200ms]", d)
		}
	}
}

func TestJitteredDelay_ZeroJitterIsExact(t *testing.T) {
	if d := jitteredDelay(500, 0); d != 500*time.Millisecond {
		t.Fatalf("expected exact 500ms with zero jitter, got %v", d)
	}
}

func TestJitteredDelay_NeverNegative(t *testing.T) {
	for i := 0; i < 200; i++ {
		if d := jitteredDelay(10, 100); d < 0 {
			t.Fatalf("negative delay: %v", d)
		}
	}
}

type fakeStore struct {
	mu         sync.Mutex
	exec       *model.Execution
	steps      []model.Step
	running    []model.Execution
	completed  bool
	updatedTo  []int
	errorsSet  []string
}

func (f *fakeStore) ActiveTriggers(ctx context.Context, botID, sessionID string, scopes []model.TriggerScope) ([]model.Trigger, error) {
	return nil, nil
}
func (f *fakeStore) StepsByFlow(ctx context.Context, flowID string) ([]model.Step, error) {
	return f.steps, nil
}
func (f *fakeStore) StepByID(ctx context.Context, stepID string) (*model.Step, error) { return nil, nil }
func (f *fakeStore) ExecutionByID(ctx context.Context, executionID string) (*model.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exec, nil
}
func (f *fakeStore) RunningExecutions(ctx context.Context) ([]model.Execution, error) {
	return f.running, nil
}
func (f *fakeStore) UpdateExecutionStep(ctx context.Context, executionID string, currentStep int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatedTo = append(f.updatedTo, currentStep)
	return nil
}
func (f *fakeStore) CompleteExecution(ctx context.Context, executionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = true
	return nil
}
func (f *fakeStore) SetExecutionError(ctx context.Context, executionID, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errorsSet = append(f.errorsSet, errMsg)
	return nil
}
func (f *fakeStore) InsertFailedExecution(ctx context.Context, sessionID, flowID, platformUserID, triggerKeyword, reason string) error {
	return nil
}
func (f *fakeStore) SessionByID(ctx context.Context, sessionID string) (*model.Session, error) {
	return nil, nil
}
func (f *fakeStore) BeginTx(ctx context.Context) (store.Tx, error) {
	return nil, nil
}

type fakeProcessor struct {
	mu    sync.Mutex
	calls []int
	err   error
}

func (p *fakeProcessor) Execute(ctx context.Context, executionID, stepID string, stepOrder int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, stepOrder)
	return p.err
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedule_CompletesWhenNoStepAtOrder(t *testing.T) {
	fs := &fakeStore{
		exec:  &model.Execution{ID: "exec-1", Status: model.StatusRunning, FlowID: "flow-1"},
		steps: nil,
	}
	proc := &fakeProcessor{}
	s := New(fs, proc, silentLogger())

	s.scheduleSync(context.Background(), "exec-1", 0)

	if !fs.completed {
		t.Fatal("expected execution to complete when no step matches order")
	}
}

func TestSchedule_SkipsWhenExecutionNotRunning(t *testing.T) {
	fs := &fakeStore{
		exec: &model.Execution{ID: "exec-1", Status: model.StatusCompleted, FlowID: "flow-1"},
	}
	proc := &fakeProcessor{}
	s := New(fs, proc, silentLogger())

	s.scheduleSync(context.Background(), "exec-1", 0)

	if len(proc.calls) != 0 {
		t.Fatal("expected no step execution once execution left RUNNING")
	}
}

func TestSchedule_DispatchesStepAndAdvances(t *testing.T) {
	fs := &fakeStore{
		exec: &model.Execution{ID: "exec-1", Status: model.StatusRunning, FlowID: "flow-1"},
		steps: []model.Step{
			{ID: "step-0", FlowID: "flow-1", Order: 0, Type: model.StepText, DelayMs: 1, JitterPct: 0},
		},
	}
	proc := &fakeProcessor{}
	s := New(fs, proc, silentLogger())

	s.scheduleSync(context.Background(), "exec-1", 0)

	if len(proc.calls) != 1 || proc.calls[0] != 0 {
		t.Fatalf("expected step 0 executed once, got %v", proc.calls)
	}
	if len(fs.updatedTo) != 1 || fs.updatedTo[0] != 0 {
		t.Fatalf("expected currentStep updated to 0, got %v", fs.updatedTo)
	}
}

func TestSchedule_RecordsErrorButStillAdvances(t *testing.T) {
	fs := &fakeStore{
		exec: &model.Execution{ID: "exec-1", Status: model.StatusRunning, FlowID: "flow-1"},
		steps: []model.Step{
			{ID: "step-0", FlowID: "flow-1", Order: 0, Type: model.StepText, DelayMs: 1, JitterPct: 0},
		},
	}
	proc := &fakeProcessor{err: errBoom{}}
	s := New(fs, proc, silentLogger())

	s.executeAndAdvance(context.Background(), "exec-1", fs.steps[0], 0)

	if len(fs.errorsSet) != 1 {
		t.Fatalf("expected one error recorded, got %v", fs.errorsSet)
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
