// Package processor interprets a single flow step into an outbound WhatsApp
// message and publishes it to the outgoing queue. Any other platform, or any
// step the processor cannot satisfy (missing media, unmatched conditional),
// is logged and skipped without failing the execution.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/eddndev/agentic-core/internal/model"
	"github.com/eddndev/agentic-core/internal/queue"
	"github.com/eddndev/agentic-core/internal/store"
)

var mexicoCity = mustLoadLocation("America/Mexico_City")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// mediaPayload wraps a media URL, matching the original's MediaPayload.
type mediaPayload struct {
	URL string `json:"url"`
}

// outgoingPayload is the per-message content, nested under outboundMessage's
// "payload" field.
type outgoingPayload struct {
	Text    *string       `json:"text,omitempty"`
	Image   *mediaPayload `json:"image,omitempty"`
	Audio   *mediaPayload `json:"audio,omitempty"`
	Caption *string       `json:"caption,omitempty"`
	PTT     *bool         `json:"ptt,omitempty"`
}

func (p outgoingPayload) hasContent() bool {
	return p.Text != nil || p.Image != nil || p.Audio != nil
}

// outboundMessage is the record published on agentic:queue:outgoing.
type outboundMessage struct {
	BotID       string          `json:"bot_id"`
	Target      string          `json:"target"`
	ExecutionID string          `json:"execution_id"`
	StepOrder   int             `json:"step_order"`
	Payload     outgoingPayload `json:"payload"`
}

// conditionalBranch is one entry of a CONDITIONAL_TIME step's metadata.
type conditionalBranch struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	MediaURL  string `json:"mediaUrl"`
}

type conditionalMetadata struct {
	Branches []conditionalBranch `json:"branches"`
	Fallback *conditionalBranch  `json:"fallback"`
}

// Processor turns a step into outbound traffic.
type Processor struct {
	store *storeHandle
	out   *queue.Outbound
	log   *slog.Logger
	now   func() time.Time
}

// storeHandle keeps the store.Store dependency behind a narrow alias so the
// rest of the file reads in terms of domain lookups.
type storeHandle struct {
	store.Store
}

func New(st store.Store, out *queue.Outbound, log *slog.Logger) *Processor {
	return &Processor{store: &storeHandle{st}, out: out, log: log, now: time.Now}
}

// Execute fetches step/execution/session and, for WhatsApp sessions, builds
// and publishes the outbound message the step describes.
func (p *Processor) Execute(ctx context.Context, executionID, stepID string, stepOrder int) error {
	step, err := p.store.StepByID(ctx, stepID)
	if err != nil {
		return fmt.Errorf("load step: %w", err)
	}
	if step == nil {
		p.log.Warn("step not found, skipping", "step_id", stepID)
		return nil
	}

	exec, err := p.store.ExecutionByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("load execution: %w", err)
	}
	if exec == nil {
		p.log.Warn("execution not found, skipping", "execution_id", executionID)
		return nil
	}

	sess, err := p.store.SessionByID(ctx, exec.SessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		p.log.Warn("session not found, skipping", "session_id", exec.SessionID)
		return nil
	}

	if sess.Platform != model.PlatformWhatsApp {
		p.log.Debug("non-whatsapp session, skipping emission", "platform", sess.Platform)
		return nil
	}

	var payloadOut outgoingPayload
	if err := p.fill(&payloadOut, *step); err != nil {
		p.log.Error("build outbound message failed", "step_id", stepID, "error", err)
		return nil
	}
	if !payloadOut.hasContent() {
		p.log.Debug("step produced no content, skipping emission", "step_id", stepID, "type", step.Type)
		return nil
	}

	msg := outboundMessage{
		BotID:       sess.BotID,
		Target:      sess.Identifier,
		ExecutionID: executionID,
		StepOrder:   stepOrder,
		Payload:     payloadOut,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}
	if err := p.out.Publish(ctx, payload); err != nil {
		p.log.Error("publish outbound message failed", "step_id", stepID, "error", err)
		return nil
	}
	p.log.Info("step emitted", "step_id", stepID, "execution_id", executionID, "type", step.Type)
	return nil
}

func (p *Processor) fill(payload *outgoingPayload, step model.Step) error {
	switch step.Type {
	case model.StepText:
		payload.Text = step.Content
	case model.StepImage:
		if step.MediaURL == nil {
			return fmt.Errorf("image step missing mediaUrl")
		}
		payload.Image = &mediaPayload{URL: *step.MediaURL}
		payload.Caption = step.Content
	case model.StepAudio, model.StepPTT:
		if step.MediaURL == nil {
			return fmt.Errorf("audio step missing mediaUrl")
		}
		payload.Audio = &mediaPayload{URL: *step.MediaURL}
		ptt := step.Type == model.StepPTT
		payload.PTT = &ptt
	case model.StepVideo, model.StepDocument:
		p.log.Warn("step type not yet supported for emission, skipping", "type", step.Type)
	case model.StepConditionalTime:
		return p.fillConditional(payload, step)
	default:
		p.log.Warn("unrecognized step type, skipping", "type", step.Type)
	}
	return nil
}

func (p *Processor) fillConditional(payload *outgoingPayload, step model.Step) error {
	var meta conditionalMetadata
	if err := json.Unmarshal(step.Metadata, &meta); err != nil {
		return fmt.Errorf("parse conditional metadata: %w", err)
	}

	nowMinutes := minuteOfDay(p.now().In(mexicoCity))

	branch := selectBranch(meta.Branches, nowMinutes)
	if branch == nil {
		branch = meta.Fallback
	}
	if branch == nil {
		return nil
	}

	switch model.StepType(branch.Type) {
	case model.StepText:
		content := branch.Content
		payload.Text = &content
	case model.StepImage:
		if branch.MediaURL != "" {
			payload.Image = &mediaPayload{URL: branch.MediaURL}
			caption := branch.Content
			payload.Caption = &caption
		}
	case model.StepAudio, model.StepPTT:
		if branch.MediaURL != "" {
			payload.Audio = &mediaPayload{URL: branch.MediaURL}
			ptt := true
			payload.PTT = &ptt
		}
	default:
		p.log.Warn("conditional branch has unrecognized type, skipping", "type", branch.Type)
	}
	return nil
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// selectBranch returns the first branch whose [startTime,endTime) window
// contains nowMinutes, honoring windows that cross midnight.
func selectBranch(branches []conditionalBranch, nowMinutes int) *conditionalBranch {
	for i := range branches {
		b := &branches[i]
		start, err1 := parseHHMM(b.StartTime)
		end, err2 := parseHHMM(b.EndTime)
		if err1 != nil || err2 != nil {
			continue
		}
		if windowContains(start, end, nowMinutes) {
			return b
		}
	}
	return nil
}

func windowContains(start, end, now int) bool {
	if start < end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

func parseHHMM(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	return h*60 + m, nil
}
