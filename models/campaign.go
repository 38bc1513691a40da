package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign statuses. A campaign starts in Draft, warms its senders in
// Warming, and only sends cold outreach while Active.
const (
	CampaignStatusDraft     = "Draft"
	CampaignStatusWarming   = "Warming"
	CampaignStatusActive    = "Active"
	CampaignStatusPaused    = "Paused"
	CampaignStatusCompleted = "Completed"
)

// Campaign represents an outreach campaign
type Campaign struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`

	Status      string     `gorm:"default:'Draft';index" json:"status"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	// Statistics (denormalized for performance)
	TotalContacts int `gorm:"default:0" json:"total_contacts"`
	SentCount     int `gorm:"default:0" json:"sent_count"`
	ReplyCount    int `gorm:"default:0" json:"reply_count"`
	BounceCount   int `gorm:"default:0" json:"bounce_count"`

	// Relations
	Schedule *CampaignSchedule `gorm:"foreignKey:CampaignID" json:"schedule,omitempty"`
	Steps    []SequenceStep    `gorm:"foreignKey:CampaignID" json:"steps,omitempty"`
	Senders  []Sender          `gorm:"foreignKey:CampaignID" json:"senders,omitempty"`
}

// CampaignSchedule holds the sending-window settings for a campaign.
// ActiveDays uses short weekday names ("Mon".."Sun"); TimezoneGroups is the
// small set of reference zones the campaign-level window is evaluated in.
type CampaignSchedule struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`

	ActiveDays     []string `gorm:"type:jsonb;serializer:json" json:"active_days"`
	TimezoneGroups []string `gorm:"type:jsonb;serializer:json" json:"timezone_groups"`

	SendingStartHour int `gorm:"default:8" json:"sending_start_hour"`
	SendingEndHour   int `gorm:"default:17" json:"sending_end_hour"`

	// Max contacts emitted per day across the whole campaign
	DailyContactLimit int `gorm:"default:35" json:"daily_contact_limit"`
}

// DefaultActiveDays is the weekday list used when a schedule leaves it empty.
var DefaultActiveDays = []string{"Mon", "Tue", "Wed", "Thu", "Fri"}

// EffectiveActiveDays returns the configured weekdays or the default set.
func (s *CampaignSchedule) EffectiveActiveDays() []string {
	if s == nil || len(s.ActiveDays) == 0 {
		return DefaultActiveDays
	}
	return s.ActiveDays
}

// SequenceStep represents one templated message in a campaign's cadence.
// StepNumber is 1-based and contiguous within a campaign; TimingDays is the
// delay in whole days from the previous step's send (0 = as soon as due).
type SequenceStep struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index;uniqueIndex:idx_campaign_step" json:"campaign_id"`

	StepNumber int    `gorm:"not null;uniqueIndex:idx_campaign_step" json:"step_number"`
	Subject    string `gorm:"not null" json:"subject"`
	Body       string `gorm:"type:text" json:"body"`
	TimingDays int    `gorm:"not null;default:0" json:"timing_days"`

	// Tracking
	SentCount int     `gorm:"default:0" json:"sent_count"`
	OpenRate  float64 `gorm:"default:0" json:"open_rate"`
	ReplyRate float64 `gorm:"default:0" json:"reply_rate"`
}
