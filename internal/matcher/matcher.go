// Package matcher implements priority-based keyword matching of inbound
// content against a bot's active triggers.
package matcher

import (
	"strings"

	"github.com/eddndev/agentic-core/internal/model"
)

// Find returns the first trigger matching content, preferring EXACT over
// CONTAINS. REGEX triggers are reserved and never matched. Returns nil, false
// if content is empty after trimming or nothing matches.
func Find(content string, triggers []model.Trigger) (*model.Trigger, bool) {
	normalized := strings.ToLower(strings.TrimSpace(content))
	if normalized == "" {
		return nil, false
	}

	for i := range triggers {
		t := &triggers[i]
		if t.MatchType == model.MatchExact && strings.ToLower(t.Keyword) == normalized {
			return t, true
		}
	}

	for i := range triggers {
		t := &triggers[i]
		if t.MatchType == model.MatchContains && strings.Contains(normalized, strings.ToLower(t.Keyword)) {
			return t, true
		}
	}

	return nil, false
}
