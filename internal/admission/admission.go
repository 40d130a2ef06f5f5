// Package admission runs the trigger-match-to-execution pipeline: keyword
// matching, the distributed lock, and the transactional cooldown/usage/
// exclusion checks that decide whether a Flow may start.
package admission

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eddndev/agentic-core/internal/lock"
	"github.com/eddndev/agentic-core/internal/matcher"
	"github.com/eddndev/agentic-core/internal/model"
	"github.com/eddndev/agentic-core/internal/store"
)

// Scheduler is the subset of scheduler.Scheduler admission needs, kept as an
// interface here to avoid an import cycle (scheduler depends on store, not
// on admission).
type Scheduler interface {
	Schedule(ctx context.Context, executionID string, order int)
}

// Engine evaluates inbound content against a bot's triggers and admits the
// winning flow into execution.
type Engine struct {
	store     store.Store
	locker    *lock.Locker
	scheduler Scheduler
	log       *slog.Logger
}

func New(st store.Store, lk *lock.Locker, sched Scheduler, log *slog.Logger) *Engine {
	return &Engine{store: st, locker: lk, scheduler: sched, log: log}
}

// Process matches content against botID/sessionID's active triggers and, on
// a match, attempts to admit its flow. No match is not an error.
func (e *Engine) Process(ctx context.Context, botID, sessionID, platformUserID, content string, fromMe bool) error {
	scopes := []model.TriggerScope{model.ScopeIncoming, model.ScopeBoth}
	if fromMe {
		scopes = []model.TriggerScope{model.ScopeOutgoing, model.ScopeBoth}
	}

	triggers, err := e.store.ActiveTriggers(ctx, botID, sessionID, scopes)
	if err != nil {
		return fmt.Errorf("load triggers: %w", err)
	}

	trig, ok := matcher.Find(content, triggers)
	if !ok {
		return nil
	}

	return e.admit(ctx, sessionID, platformUserID, *trig)
}

// admit runs the single-flight lock + transactional admission checks for one
// matched trigger, always releasing the lock on the way out.
func (e *Engine) admit(ctx context.Context, sessionID, platformUserID string, trig model.Trigger) error {
	key := lock.Key(sessionID, trig.FlowID)
	acquired, err := e.locker.TryAcquire(ctx, key)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		e.log.Debug("flow already locked, skipping", "session_id", sessionID, "flow_id", trig.FlowID)
		return nil
	}
	defer func() {
		if relErr := e.locker.Release(ctx, key); relErr != nil {
			e.log.Warn("release lock failed", "key", key, "error", relErr)
		}
	}()

	executionID, rejection, err := e.tryAdmit(ctx, sessionID, platformUserID, trig)
	if err != nil {
		return fmt.Errorf("admission: %w", err)
	}
	if rejection != "" {
		if failErr := e.store.InsertFailedExecution(ctx, sessionID, trig.FlowID, platformUserID, trig.Keyword, rejection); failErr != nil {
			e.log.Error("record failed execution", "error", failErr)
		}
		return nil
	}

	e.scheduler.Schedule(ctx, executionID, 0)
	return nil
}

// tryAdmit performs the cooldown/usage/exclusion checks and, if all pass,
// inserts the RUNNING execution — all inside one transaction. A non-empty
// rejection reason means the transaction has been rolled back and the caller
// must record a FAILED row outside it.
func (e *Engine) tryAdmit(ctx context.Context, sessionID, platformUserID string, trig model.Trigger) (executionID string, rejection string, err error) {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = tx.Rollback() }()

	if trig.CooldownMs > 0 {
		lastStart, found, err := tx.LastExecutionStart(ctx, sessionID, trig.FlowID)
		if err != nil {
			return "", "", err
		}
		if found {
			elapsed := time.Since(lastStart)
			if elapsed < time.Duration(trig.CooldownMs)*time.Millisecond {
				reason := fmt.Sprintf("Cooldown active (%d/%dms)", elapsed.Milliseconds(), trig.CooldownMs)
				return "", reason, nil
			}
		}
	}

	if trig.UsageLimit > 0 {
		n, err := tx.CountExecutions(ctx, sessionID, trig.FlowID)
		if err != nil {
			return "", "", err
		}
		if n >= trig.UsageLimit {
			reason := fmt.Sprintf("Usage limit reached (%d/%d)", n, trig.UsageLimit)
			return "", reason, nil
		}
	}

	if len(trig.ExcludesFlows) > 0 {
		n, err := tx.CountExecutionsForFlows(ctx, sessionID, trig.ExcludesFlows)
		if err != nil {
			return "", "", err
		}
		if n > 0 {
			return "", "Mutually exclusive flow already executed", nil
		}
	}

	id := uuid.Must(uuid.NewV7()).String()
	if err := tx.InsertRunningExecution(ctx, id, sessionID, trig.FlowID, platformUserID, trig.Keyword); err != nil {
		return "", "", err
	}
	if err := tx.Commit(); err != nil {
		return "", "", err
	}
	return id, "", nil
}
