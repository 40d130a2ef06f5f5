// Package ingress runs the consumer-group loop over agentic:queue:incoming,
// decoding each entry and dispatching it to admission or the processor.
package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/eddndev/agentic-core/internal/queue"
)

const (
	readCount = 10
	readBlock = 5 * time.Second
	retryWait = 1 * time.Second
)

// Admitter is the subset of admission.Engine ingress needs.
type Admitter interface {
	Process(ctx context.Context, botID, sessionID, platformUserID, content string, fromMe bool) error
}

// Processor is the subset of processor.Processor ingress needs for the
// ExecuteStep message variant, which re-runs a single step directly rather
// than re-entering the scheduler's delay/advance flow.
type Processor interface {
	Execute(ctx context.Context, executionID, stepID string, stepOrder int) error
}

// incomingMessage mirrors the two payload variants published onto
// agentic:queue:incoming: a fresh NewMessage to admit, or an ExecuteStep
// resume naming the step to re-run directly.
type incomingMessage struct {
	Type string `json:"type"`

	// NewMessage fields.
	BotID          string `json:"bot_id"`
	SessionID      string `json:"session_id"`
	PlatformUserID string `json:"platform_user_id"`
	Content        string `json:"content"`
	FromMe         bool   `json:"from_me"`

	// ExecuteStep fields.
	ExecutionID string `json:"execution_id"`
	StepID      string `json:"step_id"`
}

// Loop consumes agentic:queue:incoming until ctx is cancelled.
type Loop struct {
	in        *queue.Inbound
	admitter  Admitter
	processor Processor
	log       *slog.Logger
}

func New(in *queue.Inbound, admitter Admitter, processor Processor, log *slog.Logger) *Loop {
	return &Loop{in: in, admitter: admitter, processor: processor, log: log}
}

// Run blocks until ctx is cancelled, reading and dispatching entries.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.in.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		entries, err := l.in.Read(ctx, readCount, readBlock)
		if err != nil {
			l.log.Error("stream read failed, retrying", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryWait):
			}
			continue
		}

		for _, entry := range entries {
			l.dispatch(ctx, entry)
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, entry queue.Entry) {
	var msg incomingMessage
	if err := json.Unmarshal(entry.Payload, &msg); err != nil {
		l.log.Warn("dropping malformed incoming message", "id", entry.ID, "error", err)
		l.ack(ctx, entry.ID)
		return
	}

	go func() {
		switch msg.Type {
		case "ExecuteStep":
			if err := l.processor.Execute(ctx, msg.ExecutionID, msg.StepID, -1); err != nil {
				l.log.Error("execute step failed", "id", entry.ID, "error", err)
			}
		default:
			if err := l.admitter.Process(ctx, msg.BotID, msg.SessionID, msg.PlatformUserID, msg.Content, msg.FromMe); err != nil {
				l.log.Error("process incoming message failed", "id", entry.ID, "error", err)
			}
		}
		l.ack(ctx, entry.ID)
	}()
}

func (l *Loop) ack(ctx context.Context, id string) {
	if err := l.in.Ack(ctx, id); err != nil {
		l.log.Error("ack failed", "id", id, "error", err)
	}
}
