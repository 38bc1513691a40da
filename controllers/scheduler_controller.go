package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"leadpilot/models"
	"leadpilot/utils"
	"leadpilot/worker"
)

type SchedulerController struct {
	DB     *gorm.DB
	Logger *log.Logger
	Worker *worker.SchedulerWorker
}

func NewSchedulerController(db *gorm.DB, logger *log.Logger, w *worker.SchedulerWorker) *SchedulerController {
	return &SchedulerController{
		DB:     db,
		Logger: logger,
		Worker: w,
	}
}

type triggerRunInput struct {
	CampaignID uint `json:"campaign_id" validate:"omitempty,min=1"`
	TestMode   bool `json:"test_mode"`
}

// TriggerRun runs one scheduling pass on demand and returns the run summary.
// With test_mode set, selection and allocation run fully but nothing is
// persisted or published.
func (sc *SchedulerController) TriggerRun(c *fiber.Ctx) error {
	var input triggerRunInput
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&input); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"details": err.Error(),
		})
	}

	if input.CampaignID != 0 {
		var campaign models.Campaign
		if err := sc.DB.First(&campaign, input.CampaignID).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Campaign not found",
			})
		}
		if campaign.Status != models.CampaignStatusActive {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Campaign is not active",
			})
		}
	}

	summary, err := sc.Worker.RunOnce(c.Context(), worker.RunOptions{
		CampaignID: input.CampaignID,
		TestMode:   input.TestMode,
	})
	if err != nil {
		utils.LogError("scheduler_trigger_failed", err, map[string]interface{}{
			"campaign_id": input.CampaignID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Scheduler run failed",
		})
	}

	sc.Logger.Printf("Triggered run %s in %s: %d due, %d assigned",
		summary.RunID,
		utils.FormatDuration(time.Duration(summary.DurationMs)*time.Millisecond),
		summary.Due, summary.Assigned)
	return c.JSON(summary)
}

// GetRunLogs returns the automation log trail for a run.
func (sc *SchedulerController) GetRunLogs(c *fiber.Ctx) error {
	runID := c.Params("runId")

	var logs []models.AutomationLog
	if err := sc.DB.Where("run_id = ?", runID).Order("id ASC").Find(&logs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load run logs",
		})
	}
	if len(logs) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Run not found",
		})
	}

	return c.JSON(fiber.Map{
		"run_id": runID,
		"count":  len(logs),
		"logs":   logs,
	})
}
