// Package scheduler dispatches a flow's steps one at a time with a delay
// and jitter between each, re-reading execution state on every hop so a
// cancelled or completed execution stops advancing.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/eddndev/agentic-core/internal/model"
	"github.com/eddndev/agentic-core/internal/store"
)

// Processor is the subset of processor.Processor the scheduler needs, kept
// as an interface to avoid an import cycle.
type Processor interface {
	Execute(ctx context.Context, executionID, stepID string, stepOrder int) error
}

// Scheduler owns no goroutine pool of its own: each hop spawns exactly one
// goroutine that sleeps, executes, and reschedules the next order.
type Scheduler struct {
	store     store.Store
	processor Processor
	log       *slog.Logger
	now       func() time.Time
}

func New(st store.Store, proc Processor, log *slog.Logger) *Scheduler {
	return &Scheduler{store: st, processor: proc, log: log, now: time.Now}
}

// Schedule looks up executionID's flow, finds the step at order, and either
// dispatches it (after its delay+jitter) or completes the execution if no
// such step exists. Runs async; callers do not wait on it.
func (s *Scheduler) Schedule(ctx context.Context, executionID string, order int) {
	go s.scheduleSync(ctx, executionID, order)
}

func (s *Scheduler) scheduleSync(ctx context.Context, executionID string, order int) {
	exec, err := s.store.ExecutionByID(ctx, executionID)
	if err != nil {
		s.log.Error("load execution for scheduling", "execution_id", executionID, "error", err)
		return
	}
	if exec == nil || exec.Status != model.StatusRunning {
		return
	}

	steps, err := s.store.StepsByFlow(ctx, exec.FlowID)
	if err != nil {
		s.log.Error("load steps for scheduling", "flow_id", exec.FlowID, "error", err)
		return
	}

	step := findStep(steps, order)
	if step == nil {
		if err := s.store.CompleteExecution(ctx, executionID); err != nil {
			s.log.Error("complete execution", "execution_id", executionID, "error", err)
		}
		return
	}

	delay := jitteredDelay(step.DelayMs, step.JitterPct)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	s.executeAndAdvance(ctx, executionID, *step, order)
}

func (s *Scheduler) executeAndAdvance(ctx context.Context, executionID string, step model.Step, order int) {
	if err := s.store.UpdateExecutionStep(ctx, executionID, order); err != nil {
		s.log.Error("update execution step", "execution_id", executionID, "error", err)
	}

	if err := s.processor.Execute(ctx, executionID, step.ID, order); err != nil {
		msg := fmt.Sprintf("step %d error: %s", order, err)
		if setErr := s.store.SetExecutionError(ctx, executionID, msg); setErr != nil {
			s.log.Error("record step error", "execution_id", executionID, "error", setErr)
		}
	}

	s.Schedule(ctx, executionID, order+1)
}

// Recover re-schedules every execution left RUNNING from a prior crash,
// resuming each at its last recorded currentStep.
func (s *Scheduler) Recover(ctx context.Context) error {
	running, err := s.store.RunningExecutions(ctx)
	if err != nil {
		return err
	}
	for _, exec := range running {
		s.log.Info("recovering running execution", "execution_id", exec.ID, "current_step", exec.CurrentStep)
		s.Schedule(ctx, exec.ID, exec.CurrentStep)
	}
	return nil
}

func findStep(steps []model.Step, order int) *model.Step {
	for i := range steps {
		if steps[i].Order == order {
			return &steps[i]
		}
	}
	return nil
}

// jitteredDelay applies ±jitterPct% of delayMs uniformly at random, floored
// at zero.
func jitteredDelay(delayMs, jitterPct int) time.Duration {
	variance := delayMs * jitterPct / 100
	jitter := 0
	if variance > 0 {
		jitter = rand.Intn(2*variance+1) - variance
	}
	final := delayMs + jitter
	if final < 0 {
		final = 0
	}
	return time.Duration(final) * time.Millisecond
}
