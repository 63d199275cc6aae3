package audit

import (
	"encoding/json"
	"time"
)

// Outcome represents the result of an audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeDenied  Outcome = "denied"
	OutcomeError   Outcome = "error"
)

// Actions recorded by Nucleus.
const (
	ActionSignIn          = "sign_in"
	ActionSignOut         = "sign_out"
	ActionForcedSignOut   = "forced_sign_out"
	ActionMeetingCreated  = "meeting_created"
	ActionTranscriptSaved = "transcript_updated"
	ActionSpeakerRenamed  = "speaker_renamed"
	ActionDurationSaved   = "duration_updated"
	ActionMappingConfirm  = "deal_stage_mapping_confirmed"
)

// Event is a single audit log entry. Events are immutable once written.
type Event struct {
	ID         string          `json:"id"`
	Actor      string          `json:"actor"`
	Action     string          `json:"action"`
	EntityType *string         `json:"entityType,omitempty"`
	EntityID   *string         `json:"entityId,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	Outcome    Outcome         `json:"outcome"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Entry is what callers hand to Record, directly or through the event bus.
type Entry struct {
	Actor      string
	Action     string
	EntityType string
	EntityID   string
	Details    map[string]any
	Outcome    Outcome
}

// Topic is the event bus topic audit entries are published on.
const Topic = "audit.entry"
