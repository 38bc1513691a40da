package models

import (
	"time"

	"gorm.io/gorm"
)

// Sender represents a sending identity attached to a campaign. Credentials
// are opaque to the scheduler; it only reads limits and counters.
type Sender struct {
	gorm.Model
	UserID     uint `gorm:"not null;index" json:"user_id"`
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`

	FromEmail string `gorm:"not null;index" json:"from_email"`
	FromName  string `json:"from_name"`

	ProviderType string `json:"provider_type"` // smtp, gmail, outlook, sendgrid
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"-"` // Encrypted in application layer

	IsActive bool `gorm:"default:true;index" json:"is_active"`

	// ========= Usage Metrics =========
	// EmailsSentToday is reset at the local-midnight boundary by the daily
	// reset job; the scheduler only reads and increments it.
	DailyLimit       int        `gorm:"default:50" json:"daily_limit"`
	EmailsSentToday  int        `gorm:"default:0" json:"emails_sent_today"`
	TotalSent        int        `gorm:"default:0" json:"total_sent"`
	RotationPriority int        `gorm:"default:0;index" json:"rotation_priority"`
	LastUsedAt       *time.Time `json:"last_used_at"`
	LastResetAt      *time.Time `json:"last_reset_at"`

	// ========= Engagement counters (fed by delivery webhooks) =========
	TotalBounced int `gorm:"default:0" json:"total_bounced"`
	TotalOpened  int `gorm:"default:0" json:"total_opened"`
	TotalClicked int `gorm:"default:0" json:"total_clicked"`
	TotalReplied int `gorm:"default:0" json:"total_replied"`
	RecentSent   int `gorm:"default:0" json:"recent_sent"` // trailing 7 days

	LastError *string `json:"last_error"`

	// Relations
	Warmup *WarmupState `gorm:"foreignKey:SenderID" json:"warmup,omitempty"`
}

// Sanitize strips credentials before the sender leaves the API surface.
func (s *Sender) Sanitize() {
	s.SMTPPassword = ""
	s.SMTPUsername = ""
}

// WarmupState statuses
const (
	WarmupStatusActive    = "active"
	WarmupStatusPaused    = "paused"
	WarmupStatusCompleted = "completed"
)

// Warmup phase daily targets and minimum durations. Phase and
// TotalWarmingDays only ever move forward; DailyTarget only ever increases
// across transitions.
const (
	WarmupPhase1Target = 5
	WarmupPhase2Target = 15
	WarmupPhase3Target = 30

	WarmupPhase1Days = 7
	WarmupPhase2Days = 14
	WarmupPhase3Days = 14

	DefaultTargetHealthScore = 90
)

// WarmupState is the per-sender ramp state machine while the sender's
// campaign is Warming.
type WarmupState struct {
	gorm.Model
	SenderID   uint `gorm:"not null;uniqueIndex" json:"sender_id"`
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`

	Phase            int `gorm:"default:1" json:"phase"` // 1..3
	DayInPhase       int `gorm:"default:1" json:"day_in_phase"`
	TotalWarmingDays int `gorm:"default:0" json:"total_warming_days"`
	DailyTarget      int `gorm:"default:5" json:"daily_target"`

	InitialHealthScore int `gorm:"default:40" json:"initial_health_score"`
	HealthScore        int `gorm:"default:40" json:"health_score"` // 0..100
	TargetHealthScore  int `gorm:"default:90" json:"target_health_score"`

	Status         string     `gorm:"default:'active';index" json:"status"`
	LastAdvancedAt *time.Time `json:"last_advanced_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}

// PhaseTarget returns the daily send target for a warmup phase.
func PhaseTarget(phase int) int {
	switch phase {
	case 1:
		return WarmupPhase1Target
	case 2:
		return WarmupPhase2Target
	default:
		return WarmupPhase3Target
	}
}
