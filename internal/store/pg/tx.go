package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	storepkg "github.com/eddndev/agentic-core/internal/store"
)

// tx is the admission-time transaction: cooldown/usage/exclusion reads and
// the RUNNING insert all share it so a rejection can roll back cleanly.
type tx struct {
	tx *sql.Tx
}

func (s *Store) BeginTx(ctx context.Context) (storepkg.Tx, error) {
	t, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &tx{tx: t}, nil
}

func (t *tx) LastExecutionStart(ctx context.Context, sessionID, flowID string) (time.Time, bool, error) {
	var startedAt time.Time
	err := t.tx.QueryRowContext(ctx, `
		SELECT "startedAt" FROM "Execution"
		WHERE "sessionId" = $1 AND "flowId" = $2
		ORDER BY "startedAt" DESC
		LIMIT 1
	`, sessionID, flowID).Scan(&startedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return startedAt, true, nil
}

func (t *tx) CountExecutions(ctx context.Context, sessionID, flowID string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `
		SELECT count(*) FROM "Execution" WHERE "sessionId" = $1 AND "flowId" = $2
	`, sessionID, flowID).Scan(&n)
	return n, err
}

func (t *tx) CountExecutionsForFlows(ctx context.Context, sessionID string, flowIDs []string) (int, error) {
	if len(flowIDs) == 0 {
		return 0, nil
	}
	var n int
	err := t.tx.QueryRowContext(ctx, `
		SELECT count(*) FROM "Execution" WHERE "sessionId" = $1 AND "flowId" = ANY($2)
	`, sessionID, pq.Array(flowIDs)).Scan(&n)
	return n, err
}

func (t *tx) InsertRunningExecution(ctx context.Context, id, sessionID, flowID, platformUserID, triggerKeyword string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO "Execution" ("id", "sessionId", "flowId", "platformUserId", "status", "currentStep", "variableContext", "startedAt", "updatedAt", "trigger")
		VALUES ($1, $2, $3, $4, 'RUNNING', 0, '{}', now(), now(), $5)
	`, id, sessionID, flowID, platformUserID, triggerKeyword)
	return err
}

func (t *tx) Commit() error   { return t.tx.Commit() }
func (t *tx) Rollback() error { return t.tx.Rollback() }
