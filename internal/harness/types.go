package harness

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/anchorage/internal/engine"
)

// TraceEvent is one engine event, flattened for golden comparison.
type TraceEvent struct {
	Seq     int    `json:"seq"`
	Session int    `json:"session"`
	Kind    string `json:"kind"`
	Detail  string `json:"detail,omitempty"`
}

// String renders the event as one golden-file line.
func (e TraceEvent) String() string {
	line := fmt.Sprintf("%03d s%d %s", e.Seq, e.Session, e.Kind)
	if e.Detail != "" {
		line += " " + e.Detail
	}
	return line
}

// describe flattens the fields of ev that matter for its kind.
func describe(ev engine.Event) string {
	var parts []string
	add := func(format string, args ...any) {
		parts = append(parts, fmt.Sprintf(format, args...))
	}

	switch ev.Kind {
	case engine.EventSaveAttached:
		add("handle=%s", ev.Detail)
		add("at=%s", ev.Position)
	case engine.EventSaveCommitted:
		add("index=%d", ev.Index)
		add("id=%s", ev.ID)
	case engine.EventSaveWarning:
		add("handle=%s", ev.Detail)
		add("code=%s", errorCode(ev.Err))
	case engine.EventSaveFailed:
		add("trackable=%s", ev.Detail)
		add("code=%s", errorCode(ev.Err))
	case engine.EventLoadState:
		add("state=%s", ev.State)
		if ev.HasIndex {
			add("index=%d", ev.Index)
		}
	case engine.EventTrackingPoll:
		add("stable=%t", ev.Stable)
	case engine.EventResolveRequest:
		add("index=%d", ev.Index)
		add("id=%s", ev.ID)
	case engine.EventOutcome:
		add("index=%d", ev.Index)
		if ev.Outcome != nil {
			add("kind=%s", ev.Outcome.Kind)
			if ev.Outcome.Reason != "" {
				add("reason=%s", ev.Outcome.Reason)
			}
		}
	case engine.EventPlaced:
		add("at=%s", ev.Position)
		add("rot=%s", ev.Rotation)
		if ev.HasIndex {
			add("index=%d", ev.Index)
		}
	}
	return strings.Join(parts, " ")
}

func errorCode(err error) string {
	var e *engine.Error
	if errors.As(err, &e) {
		return string(e.Code)
	}
	return "unknown"
}

// SaveSummary is the result of one save step.
type SaveSummary struct {
	// Result is "committed", "warning", "attach_failed" or "cancelled".
	Result  string `json:"result"`
	Index   uint64 `json:"index,omitempty"`
	ID      string `json:"id,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// OutcomeSummary is one record's load outcome.
type OutcomeSummary struct {
	Index  uint64 `json:"index"`
	Kind   string `json:"kind"`
	ID     string `json:"id,omitempty"`
	At     Vec    `json:"at"`
	Reason string `json:"reason,omitempty"`
}

// LoadSummary is the result of a session's load pass.
type LoadSummary struct {
	// Result is "done", "timed_out" or "cancelled".
	Result    string           `json:"result"`
	Attempted uint64           `json:"attempted"`
	Outcomes  []OutcomeSummary `json:"outcomes"`

	// Requested lists the record indices handed to the subsystem.
	Requested []uint64 `json:"requested"`
}

// SessionResult is what one session did.
type SessionResult struct {
	Saves []SaveSummary `json:"saves,omitempty"`
	Load  *LoadSummary  `json:"load,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	Trace    []TraceEvent    `json:"trace"`
	Sessions []SessionResult `json:"sessions"`

	// Count is the record count after the last session.
	Count uint64 `json:"count"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
