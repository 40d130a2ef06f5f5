// Package store defines typed access to the flow-automation schema.
// The concrete implementation (package pg) talks to a read-mostly,
// externally-owned Postgres schema; this package owns no migrations.
package store

import (
	"context"
	"time"

	"github.com/eddndev/agentic-core/internal/model"
)

// Store is the access layer the core needs: triggers, steps, executions,
// and sessions. Admission-time reads plus the RUNNING insert run inside a
// caller-managed *sql.Tx via the Tx variants; everything else is single-shot.
type Store interface {
	// ActiveTriggers returns active triggers in scopes, pre-filtered for the
	// given bot/session per the §4.4 scope filter, joined with their owning
	// flow's cooldown/usage/exclusion fields. Order is stable but otherwise
	// unspecified.
	ActiveTriggers(ctx context.Context, botID, sessionID string, scopes []model.TriggerScope) ([]model.Trigger, error)

	// StepsByFlow returns a flow's steps ordered by Order ascending.
	StepsByFlow(ctx context.Context, flowID string) ([]model.Step, error)
	// StepByID fetches a single step, or (nil, nil) if not found.
	StepByID(ctx context.Context, stepID string) (*model.Step, error)

	// ExecutionByID fetches an execution, or (nil, nil) if not found.
	ExecutionByID(ctx context.Context, executionID string) (*model.Execution, error)
	// RunningExecutions returns every execution with status RUNNING (startup recovery).
	RunningExecutions(ctx context.Context) ([]model.Execution, error)
	// UpdateExecutionStep sets currentStep and updatedAt.
	UpdateExecutionStep(ctx context.Context, executionID string, currentStep int) error
	// CompleteExecution marks an execution COMPLETED with completedAt := now.
	CompleteExecution(ctx context.Context, executionID string) error
	// SetExecutionError records a non-fatal processor error on an execution.
	SetExecutionError(ctx context.Context, executionID, errMsg string) error
	// InsertFailedExecution writes a terminal FAILED row for an admission rejection.
	// Runs outside any admission transaction so it survives a rollback (I4).
	InsertFailedExecution(ctx context.Context, sessionID, flowID, platformUserID, triggerKeyword, reason string) error

	// SessionByID fetches a session, or (nil, nil) if not found.
	SessionByID(ctx context.Context, sessionID string) (*model.Session, error)

	// BeginTx opens a transaction for admission (§4.4).
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is the subset of admission-time operations that must share one
// transaction: the cooldown/usage/exclusion reads and the RUNNING insert.
type Tx interface {
	// LastExecutionStart returns the most recent prior execution's startedAt
	// for (sessionID, flowID), regardless of status, or the zero time if none.
	LastExecutionStart(ctx context.Context, sessionID, flowID string) (time.Time, bool, error)
	// CountExecutions counts all prior executions (any status) for (sessionID, flowID).
	CountExecutions(ctx context.Context, sessionID, flowID string) (int, error)
	// CountExecutionsForFlows counts prior executions for sessionID across any of flowIDs.
	CountExecutionsForFlows(ctx context.Context, sessionID string, flowIDs []string) (int, error)
	// InsertRunningExecution creates a fresh RUNNING execution with currentStep=0.
	InsertRunningExecution(ctx context.Context, id, sessionID, flowID, platformUserID, triggerKeyword string) error

	Commit() error
	Rollback() error
}
