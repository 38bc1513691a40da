package models

import (
	"time"

	"gorm.io/gorm"
)

// SequenceProgress statuses
const (
	ProgressStatusScheduled = "scheduled"
	ProgressStatusSent      = "sent"
	ProgressStatusFailed    = "failed"
)

// SequenceProgress records one attempted step for one contact. The unique
// index on (contact_id, step_number) is what makes redundant scheduler
// invocations safe: a second pass cannot create a duplicate row for the same
// step.
//
// Invariant: for a given contact the sent rows always form a contiguous
// prefix of the step ordering, and at most one scheduled row exists at a
// time.
type SequenceProgress struct {
	gorm.Model
	ContactID  uint `gorm:"not null;index;uniqueIndex:idx_progress_contact_step" json:"contact_id"`
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`

	StepNumber     int  `gorm:"not null;uniqueIndex:idx_progress_contact_step" json:"step_number"`
	SequenceStepID uint `gorm:"not null;index" json:"sequence_step_id"`

	Status     string     `gorm:"not null;default:'scheduled';index" json:"status"`
	SentAt     *time.Time `json:"sent_at"`
	MessageID  string     `json:"message_id"`
	FailReason string     `json:"fail_reason"`
	SenderID   *uint      `gorm:"index" json:"sender_id"`
}

// AutomationLog is one line of the scheduler's diagnostic trail. The run
// summary returned by the trigger endpoint is an aggregate over these rows.
type AutomationLog struct {
	gorm.Model
	RunID      string `gorm:"not null;index" json:"run_id"`
	CampaignID *uint  `gorm:"index" json:"campaign_id"`
	ContactID  *uint  `gorm:"index" json:"contact_id"`
	SenderID   *uint  `json:"sender_id"`

	LogType      string `gorm:"not null;index" json:"log_type"` // run_start, email_scheduled, email_skipped, ...
	Status       string `gorm:"not null" json:"status"`         // success, skipped, failed
	Message      string `json:"message"`
	SkipReason   string `gorm:"index" json:"skip_reason"`
	SequenceStep int    `json:"sequence_step"`
	Timezone     string `json:"timezone"`

	ExecutionTimeMs int64                  `json:"execution_time_ms"`
	Details         map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"details"`
}
