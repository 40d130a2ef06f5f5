// Package pg is the Postgres-backed implementation of store.Store. It reads
// a schema it does not own and never runs migrations against it.
package pg

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/eddndev/agentic-core/internal/model"
)

// Store wraps a *sql.DB open against the "pgx" driver.
type Store struct {
	db *sql.DB
}

// Open opens a pooled connection to dsn and caps it at maxOpenConns.
func Open(dsn string, maxOpenConns int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an already-open *sql.DB, for tests that supply a sqlmock handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const activeTriggersQuery = `
SELECT
	t."id", t."botId", t."sessionId", t."keyword", t."matchType", t."isActive",
	t."flowId", t."scope", t."createdAt", t."updatedAt",
	f."cooldownMs", f."usageLimit", f."excludesFlows"
FROM "Trigger" t
JOIN "Flow" f ON f."id" = t."flowId"
WHERE t."botId" = $1
  AND t."isActive" = true
  AND (t."sessionId" IS NULL OR t."sessionId" = $2)
  AND t."scope" = ANY($3)
`

func (s *Store) ActiveTriggers(ctx context.Context, botID, sessionID string, scopes []model.TriggerScope) ([]model.Trigger, error) {
	scopeStrs := make([]string, len(scopes))
	for i, sc := range scopes {
		scopeStrs[i] = string(sc)
	}

	rows, err := s.db.QueryContext(ctx, activeTriggersQuery, botID, sessionID, pq.Array(scopeStrs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Trigger
	for rows.Next() {
		var t model.Trigger
		var sessionID sql.NullString
		var cooldownMs, usageLimit sql.NullInt64
		var excludes pq.StringArray
		if err := rows.Scan(
			&t.ID, &t.BotID, &sessionID, &t.Keyword, &t.MatchType, &t.IsActive,
			&t.FlowID, &t.Scope, &t.CreatedAt, &t.UpdatedAt,
			&cooldownMs, &usageLimit, &excludes,
		); err != nil {
			return nil, err
		}
		if sessionID.Valid {
			v := sessionID.String
			t.SessionID = &v
		}
		if cooldownMs.Valid {
			t.CooldownMs = int(cooldownMs.Int64)
		}
		if usageLimit.Valid {
			t.UsageLimit = int(usageLimit.Int64)
		}
		t.ExcludesFlows = []string(excludes)
		out = append(out, t)
	}
	return out, rows.Err()
}

const stepsByFlowQuery = `
SELECT "id", "flowId", "order", "type", "content", "mediaUrl", "metadata", "delayMs", "jitterPct", "createdAt", "updatedAt"
FROM "Step"
WHERE "flowId" = $1
ORDER BY "order" ASC
`

func (s *Store) StepsByFlow(ctx context.Context, flowID string) ([]model.Step, error) {
	rows, err := s.db.QueryContext(ctx, stepsByFlowQuery, flowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Step
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

const stepByIDQuery = `
SELECT "id", "flowId", "order", "type", "content", "mediaUrl", "metadata", "delayMs", "jitterPct", "createdAt", "updatedAt"
FROM "Step"
WHERE "id" = $1
`

func (s *Store) StepByID(ctx context.Context, stepID string) (*model.Step, error) {
	row := s.db.QueryRowContext(ctx, stepByIDQuery, stepID)
	st, err := scanStep(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStep(r rowScanner) (model.Step, error) {
	var st model.Step
	var content, mediaURL sql.NullString
	var metadata []byte
	err := r.Scan(&st.ID, &st.FlowID, &st.Order, &st.Type, &content, &mediaURL, &metadata, &st.DelayMs, &st.JitterPct, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return model.Step{}, err
	}
	if content.Valid {
		v := content.String
		st.Content = &v
	}
	if mediaURL.Valid {
		v := mediaURL.String
		st.MediaURL = &v
	}
	st.Metadata = metadata
	return st, nil
}

const executionByIDQuery = `
SELECT "id", "sessionId", "flowId", "platformUserId", "status", "currentStep", "variableContext",
       "startedAt", "updatedAt", "completedAt", "error", "trigger"
FROM "Execution"
WHERE "id" = $1
`

func (s *Store) ExecutionByID(ctx context.Context, executionID string) (*model.Execution, error) {
	row := s.db.QueryRowContext(ctx, executionByIDQuery, executionID)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const runningExecutionsQuery = `
SELECT "id", "sessionId", "flowId", "platformUserId", "status", "currentStep", "variableContext",
       "startedAt", "updatedAt", "completedAt", "error", "trigger"
FROM "Execution"
WHERE "status" = 'RUNNING'
`

func (s *Store) RunningExecutions(ctx context.Context) ([]model.Execution, error) {
	rows, err := s.db.QueryContext(ctx, runningExecutionsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanExecution(r rowScanner) (model.Execution, error) {
	var e model.Execution
	var completedAt sql.NullTime
	var errMsg, trigger sql.NullString
	err := r.Scan(
		&e.ID, &e.SessionID, &e.FlowID, &e.PlatformUserID, &e.Status, &e.CurrentStep, &e.VariableContext,
		&e.StartedAt, &e.UpdatedAt, &completedAt, &errMsg, &trigger,
	)
	if err != nil {
		return model.Execution{}, err
	}
	if completedAt.Valid {
		v := completedAt.Time
		e.CompletedAt = &v
	}
	if errMsg.Valid {
		v := errMsg.String
		e.Error = &v
	}
	if trigger.Valid {
		v := trigger.String
		e.Trigger = &v
	}
	return e, nil
}

func (s *Store) UpdateExecutionStep(ctx context.Context, executionID string, currentStep int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE "Execution" SET "currentStep" = $1, "updatedAt" = now() WHERE "id" = $2`, currentStep, executionID)
	return err
}

func (s *Store) CompleteExecution(ctx context.Context, executionID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE "Execution" SET "status" = 'COMPLETED', "completedAt" = now(), "updatedAt" = now() WHERE "id" = $1`, executionID)
	return err
}

func (s *Store) SetExecutionError(ctx context.Context, executionID, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE "Execution" SET "error" = $1, "updatedAt" = now() WHERE "id" = $2`, errMsg, executionID)
	return err
}

func (s *Store) InsertFailedExecution(ctx context.Context, sessionID, flowID, platformUserID, triggerKeyword, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO "Execution" ("id", "sessionId", "flowId", "platformUserId", "status", "currentStep", "variableContext", "startedAt", "updatedAt", "completedAt", "error", "trigger")
		VALUES (gen_random_uuid(), $1, $2, $3, 'FAILED', 0, '{}', now(), now(), now(), $4, $5)
	`, sessionID, flowID, platformUserID, reason, triggerKeyword)
	return err
}

const sessionByIDQuery = `
SELECT "id", "platform", "identifier", "botId", "status", "createdAt", "updatedAt"
FROM "Session"
WHERE "id" = $1
`

func (s *Store) SessionByID(ctx context.Context, sessionID string) (*model.Session, error) {
	var sess model.Session
	err := s.db.QueryRowContext(ctx, sessionByIDQuery, sessionID).Scan(
		&sess.ID, &sess.Platform, &sess.Identifier, &sess.BotID, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}
