// Package model defines the entities of the flow-automation domain: Flow,
// Trigger, Step, Execution, Session, and the enums that constrain them.
package model

import (
	"encoding/json"
	"time"
)

// MatchType is how a Trigger's keyword is compared against inbound content.
type MatchType string

const (
	MatchExact    MatchType = "EXACT"
	MatchContains MatchType = "CONTAINS"
	MatchRegex    MatchType = "REGEX" // reserved: no matcher implementation
)

// TriggerScope restricts a Trigger to message direction.
type TriggerScope string

const (
	ScopeIncoming TriggerScope = "INCOMING"
	ScopeOutgoing TriggerScope = "OUTGOING"
	ScopeBoth     TriggerScope = "BOTH"
)

// StepType is the action a Step performs when dispatched.
type StepType string

const (
	StepText            StepType = "TEXT"
	StepImage           StepType = "IMAGE"
	StepAudio           StepType = "AUDIO"
	StepVideo           StepType = "VIDEO"
	StepDocument        StepType = "DOCUMENT"
	StepPTT             StepType = "PTT"
	StepConditionalTime StepType = "CONDITIONAL_TIME"
)

// ExecutionStatus is the lifecycle state of an Execution.
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "RUNNING"
	StatusCompleted ExecutionStatus = "COMPLETED"
	StatusFailed    ExecutionStatus = "FAILED"
)

// Platform is the chat platform a Session lives on.
type Platform string

const (
	PlatformWhatsApp Platform = "WHATSAPP"
	PlatformTelegram Platform = "TELEGRAM"
)

// Flow is an ordered list of steps a bot performs as one scripted interaction.
type Flow struct {
	ID             string
	BotID          string
	Name           string
	CooldownMs     int
	UsageLimit     int
	ExcludesFlows  []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Trigger binds a keyword + match rule to a Flow. Joined queries populate
// CooldownMs/UsageLimit/ExcludesFlows from the owning Flow.
type Trigger struct {
	ID            string
	BotID         string
	SessionID     *string // nil = applies to all sessions of the bot
	Keyword       string
	MatchType     MatchType
	IsActive      bool
	FlowID        string
	Scope         TriggerScope
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Joined from Flow.
	CooldownMs    int
	UsageLimit    int
	ExcludesFlows []string
}

// Step is one atomic action inside a Flow.
type Step struct {
	ID        string
	FlowID    string
	Order     int
	Type      StepType
	Content   *string
	MediaURL  *string
	Metadata  json.RawMessage
	DelayMs   int
	JitterPct int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Execution is a single in-flight (or terminal) run of a Flow.
type Execution struct {
	ID              string
	SessionID       string
	FlowID          string
	PlatformUserID  string
	Status          ExecutionStatus
	CurrentStep     int
	VariableContext json.RawMessage
	StartedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
	Error           *string
	Trigger         *string
}

// Session is a bot's live presence on a platform for a given account identifier.
type Session struct {
	ID         string
	Platform   Platform
	Identifier string
	BotID      string
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
