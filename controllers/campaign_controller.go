package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"leadpilot/models"
	"leadpilot/utils"
)

type CampaignController struct {
	DB      *gorm.DB
	Logger  *log.Logger
	Tracker *utils.ProgressTracker
}

func NewCampaignController(db *gorm.DB, logger *log.Logger) *CampaignController {
	return &CampaignController{
		DB:      db,
		Logger:  logger,
		Tracker: utils.NewProgressTracker(db, logger),
	}
}

type resequenceStepInput struct {
	StepID     uint `json:"step_id" validate:"required,min=1"`
	StepNumber int  `json:"step_number" validate:"required,min=1"`
	TimingDays int  `json:"timing_days" validate:"min=0"`
}

type resequenceInput struct {
	Steps []resequenceStepInput `json:"steps" validate:"required,min=1,dive"`
}

// ResequenceCampaign applies a new step ordering and timing to a campaign and
// repairs outstanding scheduled rows so they track the steps' new positions.
func (cc *CampaignController) ResequenceCampaign(c *fiber.Ctx) error {
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := cc.DB.First(&campaign, campaignID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	var input resequenceInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"details": err.Error(),
		})
	}

	seen := make(map[int]bool, len(input.Steps))
	for _, s := range input.Steps {
		if seen[s.StepNumber] {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Duplicate step_number in request",
			})
		}
		seen[s.StepNumber] = true
	}
	// Step numbers must stay 1..N with no gaps; a hole in the numbering
	// would strand every contact whose next step falls into it.
	for n := 1; n <= len(input.Steps); n++ {
		if !seen[n] {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "step_number values must be contiguous starting at 1",
			})
		}
	}

	err := cc.DB.Transaction(func(tx *gorm.DB) error {
		// Park the steps on negative numbers first so swaps cannot trip the
		// (campaign_id, step_number) unique index mid-transaction.
		for _, s := range input.Steps {
			res := tx.Model(&models.SequenceStep{}).
				Where("id = ? AND campaign_id = ?", s.StepID, campaign.ID).
				Update("step_number", -int(s.StepID))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
		}
		for _, s := range input.Steps {
			if err := tx.Model(&models.SequenceStep{}).
				Where("id = ?", s.StepID).
				Updates(map[string]interface{}{
					"step_number": s.StepNumber,
					"timing_days": s.TimingDays,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Step does not belong to this campaign",
			})
		}
		utils.LogError("resequence_failed", err, map[string]interface{}{
			"campaign_id": campaign.ID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update steps",
		})
	}

	var steps []models.SequenceStep
	if err := cc.DB.Where("campaign_id = ?", campaign.ID).
		Order("step_number ASC").
		Find(&steps).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to reload steps",
		})
	}

	if err := cc.Tracker.Resequence(campaign.ID, steps); err != nil {
		utils.LogError("resequence_repair_failed", err, map[string]interface{}{
			"campaign_id": campaign.ID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to repair scheduled progress",
		})
	}

	cc.Logger.Printf("Resequenced campaign %d: %d steps", campaign.ID, len(steps))
	return c.JSON(fiber.Map{
		"message": "Campaign resequenced successfully",
		"steps":   steps,
	})
}

// GetCampaignProgress summarizes sequence progress across a campaign's
// contacts.
func (cc *CampaignController) GetCampaignProgress(c *fiber.Ctx) error {
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := cc.DB.First(&campaign, campaignID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	type statusCount struct {
		EmailStatus string `json:"email_status"`
		Count       int64  `json:"count"`
	}
	var byStatus []statusCount
	if err := cc.DB.Model(&models.Contact{}).
		Select("email_status, COUNT(*) as count").
		Where("campaign_id = ?", campaign.ID).
		Group("email_status").
		Scan(&byStatus).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load contact stats",
		})
	}

	var scheduled, sent, failed int64
	cc.DB.Model(&models.SequenceProgress{}).
		Where("campaign_id = ? AND status = ?", campaign.ID, models.ProgressStatusScheduled).Count(&scheduled)
	cc.DB.Model(&models.SequenceProgress{}).
		Where("campaign_id = ? AND status = ?", campaign.ID, models.ProgressStatusSent).Count(&sent)
	cc.DB.Model(&models.SequenceProgress{}).
		Where("campaign_id = ? AND status = ?", campaign.ID, models.ProgressStatusFailed).Count(&failed)

	return c.JSON(fiber.Map{
		"campaign_id": campaign.ID,
		"status":      campaign.Status,
		"contacts":    byStatus,
		"progress": fiber.Map{
			"scheduled": scheduled,
			"sent":      sent,
			"failed":    failed,
		},
	})
}
