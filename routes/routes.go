package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"

	controller "leadpilot/controllers"
	"leadpilot/middleware"
	"leadpilot/worker"
)

func SetupAPIRoutes(app *fiber.App, db *gorm.DB, schedulerWorker *worker.SchedulerWorker) {
	// Initialize controllers with their respective loggers
	schedulerController := controller.NewSchedulerController(db, log.New(os.Stdout, "SCHEDULER: ", log.LstdFlags), schedulerWorker)
	warmupController := controller.NewWarmupController(db, log.New(os.Stdout, "WARMUP: ", log.LstdFlags))
	campaignController := controller.NewCampaignController(db, log.New(os.Stdout, "CAMPAIGN: ", log.LstdFlags))

	// API group with versioning
	api := app.Group("/api/v1", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Scheduler routes with rate limiting on the manual trigger
	scheduler := api.Group("/scheduler")
	scheduler.Post("/run", middleware.TriggerRateLimiter(), schedulerController.TriggerRun)
	scheduler.Get("/runs/:runId/logs", schedulerController.GetRunLogs)

	// Warmup routes
	warmup := api.Group("/warmup")
	warmup.Get("/senders/:id", warmupController.GetWarmupStatus)
	warmup.Get("/campaigns/:id", warmupController.GetCampaignWarmupStatus)

	// Campaign routes
	campaign := api.Group("/campaigns")
	campaign.Post("/:id/resequence", campaignController.ResequenceCampaign)
	campaign.Get("/:id/progress", campaignController.GetCampaignProgress)

	log.Println("API routes initialized successfully")
}
