package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/robfig/cron/v3"

	"leadpilot/config"
	"leadpilot/middleware"
	"leadpilot/routes"
	"leadpilot/utils"
	"leadpilot/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "LEADPILOT: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	if config.AppConfig.DefaultTimezone != "" {
		utils.DefaultTimezone = config.AppConfig.DefaultTimezone
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Delivery handoff: RabbitMQ when configured, log-only otherwise
	var delivery utils.Delivery
	if config.AppConfig.AMQPURL != "" {
		amqpDelivery, err := utils.NewAMQPDelivery(config.AppConfig.AMQPURL)
		if err != nil {
			logger.Fatalf("Failed to connect to AMQP broker: %v", err)
		}
		delivery = amqpDelivery
	} else {
		logger.Println("AMQP_URL not set - work items will only be logged")
		delivery = &utils.LogDelivery{Logger: log.New(os.Stdout, "DELIVERY: ", log.LstdFlags)}
	}
	defer delivery.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the scheduler worker
	schedulerWorker := worker.NewSchedulerWorker(config.DB, delivery, log.New(os.Stdout, "SCHEDULER: ", log.LstdFlags))
	schedulerWorker.Interval = time.Duration(config.AppConfig.SchedulerIntervalMinutes) * time.Minute

	if config.AppConfig.SchedulerCron != "" {
		// Cron cadence takes over from the internal ticker
		c := cron.New()
		if _, err := c.AddFunc(config.AppConfig.SchedulerCron, func() {
			if _, err := schedulerWorker.RunOnce(ctx, worker.RunOptions{}); err != nil {
				logger.Printf("Scheduled run failed: %v", err)
			}
		}); err != nil {
			logger.Fatalf("Invalid SCHEDULER_CRON expression: %v", err)
		}
		c.Start()
		defer c.Stop()
		logger.Printf("Scheduler running on cron %q", config.AppConfig.SchedulerCron)
	} else {
		go schedulerWorker.Start(ctx)
	}

	// Initialize and start warmup worker
	warmupWorker := worker.NewWarmupWorker(config.DB, log.New(os.Stdout, "WARMUP: ", log.LstdFlags))
	go warmupWorker.Start(ctx)

	// Midnight reset of per-sender daily counters
	campaignSender := utils.NewCampaignSender(config.DB, log.New(os.Stdout, "SENDER: ", log.LstdFlags))
	go campaignSender.ResetDailyCounters()

	// Setup routes
	routes.SetupAPIRoutes(app, config.DB, schedulerWorker)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
