package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"leadpilot/models"
	"leadpilot/utils"
)

type WarmupController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewWarmupController(db *gorm.DB, logger *log.Logger) *WarmupController {
	return &WarmupController{
		DB:     db,
		Logger: logger,
	}
}

// GetWarmupStatus returns a sender's warmup state together with its current
// health score breakdown.
func (wc *WarmupController) GetWarmupStatus(c *fiber.Ctx) error {
	senderID := c.Params("id")

	var sender models.Sender
	if err := wc.DB.Preload("Warmup").First(&sender, senderID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sender not found",
		})
	}

	score, breakdown := utils.SenderHealth(&sender)
	sender.Sanitize()

	resp := fiber.Map{
		"sender_id":    sender.ID,
		"from_email":   sender.FromEmail,
		"health_score": score,
		"breakdown":    breakdown,
	}
	if sender.Warmup != nil {
		resp["warmup"] = sender.Warmup
	} else {
		resp["warmup"] = nil
	}

	return c.JSON(resp)
}

// GetCampaignWarmupStatus summarizes warmup progress across a campaign's
// senders, with the campaign's graduation readiness.
func (wc *WarmupController) GetCampaignWarmupStatus(c *fiber.Ctx) error {
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := wc.DB.First(&campaign, campaignID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	var senders []models.Sender
	if err := wc.DB.Preload("Warmup").
		Where("campaign_id = ? AND is_active = ?", campaign.ID, true).
		Find(&senders).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load senders",
		})
	}

	completed := 0
	items := make([]fiber.Map, 0, len(senders))
	for i := range senders {
		s := &senders[i]
		score, _ := utils.SenderHealth(s)
		item := fiber.Map{
			"sender_id":    s.ID,
			"from_email":   s.FromEmail,
			"health_score": score,
			"warmup":       s.Warmup,
		}
		if s.Warmup != nil && s.Warmup.Status == models.WarmupStatusCompleted {
			completed++
		}
		items = append(items, item)
	}

	return c.JSON(fiber.Map{
		"campaign_id":      campaign.ID,
		"status":           campaign.Status,
		"senders":          items,
		"completed":        completed,
		"total":            len(senders),
		"ready_to_advance": len(senders) > 0 && completed == len(senders),
	})
}
