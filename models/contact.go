package models

import (
	"time"

	"gorm.io/gorm"
)

// Contact email statuses. Replied, Unsubscribed, Bounced and Completed are
// terminal: the scheduler never selects those contacts again.
const (
	EmailStatusActive       = "Active"
	EmailStatusInProgress   = "In Progress"
	EmailStatusCompleted    = "Completed"
	EmailStatusReplied      = "Replied"
	EmailStatusUnsubscribed = "Unsubscribed"
	EmailStatusBounced      = "Bounced"
)

// Contact represents a single prospect enrolled in a campaign
type Contact struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`
	UserID     uint `gorm:"index" json:"user_id"`

	Email     string `gorm:"not null;index" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Position  string `json:"position"`

	// Free-text location ("Sydney, Australia") resolved to a timezone bucket
	// at evaluation time
	Location string `json:"location"`

	EmailStatus string `gorm:"default:'Active';index" json:"email_status"`

	// SequenceStep caches the count of sent steps. The progress rows are the
	// source of truth; the tracker corrects this column when they diverge.
	SequenceStep    int        `gorm:"default:0" json:"sequence_step"`
	LastContactedAt *time.Time `json:"last_contacted_at"`

	// Sender pin: set on first assignment so every step of the sequence goes
	// out from the same identity
	AssignedSenderID *uint `gorm:"index" json:"assigned_sender_id"`
}

// TerminalEmailStatuses are the statuses that permanently exclude a contact
// from selection.
var TerminalEmailStatuses = []string{
	EmailStatusCompleted,
	EmailStatusReplied,
	EmailStatusUnsubscribed,
	EmailStatusBounced,
}

// IsTerminal reports whether the contact is permanently excluded from
// selection.
func (c *Contact) IsTerminal() bool {
	switch c.EmailStatus {
	case EmailStatusCompleted, EmailStatusReplied, EmailStatusUnsubscribed, EmailStatusBounced:
		return true
	}
	return false
}

// FullName joins the name parts for template variables.
func (c *Contact) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}
