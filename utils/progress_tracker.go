package utils

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leadpilot/models"
)

// ErrAlreadyScheduled is returned when a scheduled row for the step already
// exists -- another pass got there first.
var ErrAlreadyScheduled = errors.New("step already scheduled for contact")

// ProgressTracker is the authoritative record of which steps have been
// scheduled, sent or failed for each contact. Contact.SequenceStep is only a
// cache; the tracker reconciles it against the sent rows whenever they
// disagree.
type ProgressTracker struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewProgressTracker(db *gorm.DB, logger *log.Logger) *ProgressTracker {
	return &ProgressTracker{DB: db, Logger: logger}
}

// CurrentStep derives the contact's completed-step count from sent progress
// rows, correcting the cached column as a side effect when it lags.
func (pt *ProgressTracker) CurrentStep(contact *models.Contact) (int, error) {
	var sent int64
	err := pt.DB.Model(&models.SequenceProgress{}).
		Where("contact_id = ? AND status = ?", contact.ID, models.ProgressStatusSent).
		Count(&sent).Error
	if err != nil {
		return 0, fmt.Errorf("counting sent steps for contact %d: %w", contact.ID, err)
	}

	current := int(sent)
	if contact.SequenceStep != current {
		pt.Logger.Printf("Reconciling contact %d step cache %d -> %d", contact.ID, contact.SequenceStep, current)
		if err := pt.DB.Model(&models.Contact{}).
			Where("id = ?", contact.ID).
			Update("sequence_step", current).Error; err != nil {
			return current, fmt.Errorf("correcting step cache for contact %d: %w", contact.ID, err)
		}
		contact.SequenceStep = current
	}
	return current, nil
}

// HasOutstandingSchedule reports whether the contact already has a scheduled
// row awaiting delivery confirmation.
func (pt *ProgressTracker) HasOutstandingSchedule(contactID uint) (bool, error) {
	var n int64
	err := pt.DB.Model(&models.SequenceProgress{}).
		Where("contact_id = ? AND status = ?", contactID, models.ProgressStatusScheduled).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("checking outstanding schedule for contact %d: %w", contactID, err)
	}
	return n > 0, nil
}

// RecordScheduled inserts the scheduled row for a step. The unique index on
// (contact_id, step_number) makes this the race arbiter between redundant
// passes: the loser gets ErrAlreadyScheduled and drops the contact.
func (pt *ProgressTracker) RecordScheduled(contact *models.Contact, step *models.SequenceStep, senderID uint) error {
	row := models.SequenceProgress{
		ContactID:      contact.ID,
		CampaignID:     contact.CampaignID,
		StepNumber:     step.StepNumber,
		SequenceStepID: step.ID,
		Status:         models.ProgressStatusScheduled,
		SenderID:       &senderID,
	}

	res := pt.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return fmt.Errorf("recording schedule for contact %d step %d: %w", contact.ID, step.StepNumber, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyScheduled
	}
	return nil
}

// RecordSent applies an asynchronous delivery confirmation: the progress row
// flips to sent and the contact cache advances.
func (pt *ProgressTracker) RecordSent(contactID uint, stepNumber int, sentAt time.Time, messageID string) error {
	res := pt.DB.Model(&models.SequenceProgress{}).
		Where("contact_id = ? AND step_number = ?", contactID, stepNumber).
		Updates(map[string]interface{}{
			"status":      models.ProgressStatusSent,
			"sent_at":     sentAt,
			"message_id":  messageID,
			"fail_reason": "",
		})
	if res.Error != nil {
		return fmt.Errorf("recording sent for contact %d step %d: %w", contactID, stepNumber, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no progress row for contact %d step %d", contactID, stepNumber)
	}

	return pt.DB.Model(&models.Contact{}).
		Where("id = ?", contactID).
		Updates(map[string]interface{}{
			"sequence_step":     gorm.Expr("(SELECT COUNT(*) FROM sequence_progresses WHERE contact_id = ? AND status = ? AND deleted_at IS NULL)", contactID, models.ProgressStatusSent),
			"last_contacted_at": sentAt,
			"email_status":      models.EmailStatusInProgress,
		}).Error
}

// RecordFailed marks a delivery failure. The step does not advance and the
// contact stays eligible for a later pass.
func (pt *ProgressTracker) RecordFailed(contactID uint, stepNumber int, reason string) error {
	res := pt.DB.Model(&models.SequenceProgress{}).
		Where("contact_id = ? AND step_number = ?", contactID, stepNumber).
		Updates(map[string]interface{}{
			"status":      models.ProgressStatusFailed,
			"fail_reason": reason,
		})
	if res.Error != nil {
		return fmt.Errorf("recording failure for contact %d step %d: %w", contactID, stepNumber, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no progress row for contact %d step %d", contactID, stepNumber)
	}
	return nil
}

// ClearFailed drops failed rows for a contact step so a later pass can
// schedule it again. Hard delete: a soft-deleted row would still hold the
// (contact_id, step_number) unique index and block the retry.
func (pt *ProgressTracker) ClearFailed(contactID uint, stepNumber int) error {
	return pt.DB.Unscoped().
		Where("contact_id = ? AND step_number = ? AND status = ?",
			contactID, stepNumber, models.ProgressStatusFailed).
		Delete(&models.SequenceProgress{}).Error
}

// ClearScheduled drops a scheduled row that will not be dispatched after
// all, reopening the step for a later pass. Hard delete for the same
// unique-index reason as ClearFailed.
func (pt *ProgressTracker) ClearScheduled(contactID uint, stepNumber int) error {
	return pt.DB.Unscoped().
		Where("contact_id = ? AND step_number = ? AND status = ?",
			contactID, stepNumber, models.ProgressStatusScheduled).
		Delete(&models.SequenceProgress{}).Error
}

// LastSentAt returns the timestamp of the most recent sent row, or nil when
// nothing has gone out yet.
func (pt *ProgressTracker) LastSentAt(contactID uint) (*time.Time, error) {
	var row models.SequenceProgress
	err := pt.DB.
		Where("contact_id = ? AND status = ?", contactID, models.ProgressStatusSent).
		Order("sent_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up last send for contact %d: %w", contactID, err)
	}
	return row.SentAt, nil
}

// Resequence repairs progress rows after a campaign's steps are reordered.
// Scheduled rows are re-pointed at the steps' new positions instead of being
// left orphaned; rows whose step no longer exists are dropped.
func (pt *ProgressTracker) Resequence(campaignID uint, steps []models.SequenceStep) error {
	byStepID := make(map[uint]int, len(steps))
	for _, s := range steps {
		byStepID[s.ID] = s.StepNumber
	}

	return pt.DB.Transaction(func(tx *gorm.DB) error {
		var scheduled []models.SequenceProgress
		if err := tx.Where("campaign_id = ? AND status = ?", campaignID, models.ProgressStatusScheduled).
			Find(&scheduled).Error; err != nil {
			return fmt.Errorf("loading scheduled rows for campaign %d: %w", campaignID, err)
		}

		for _, row := range scheduled {
			newNumber, ok := byStepID[row.SequenceStepID]
			if !ok {
				pt.Logger.Printf("Dropping schedule for contact %d: step %d removed", row.ContactID, row.SequenceStepID)
				if err := tx.Unscoped().Delete(&models.SequenceProgress{}, row.ID).Error; err != nil {
					return err
				}
				continue
			}
			if newNumber == row.StepNumber {
				continue
			}
			if err := tx.Model(&models.SequenceProgress{}).
				Where("id = ?", row.ID).
				Update("step_number", newNumber).Error; err != nil {
				return fmt.Errorf("remapping schedule %d to step %d: %w", row.ID, newNumber, err)
			}
		}
		return nil
	})
}
