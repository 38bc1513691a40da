package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"leadpilot/models"
	"leadpilot/utils"
)

// nowFunc is swapped out in tests.
var nowFunc = time.Now

// Skip reasons reported in the run summary. A stalled campaign shows up here
// long before anyone notices missing sends.
const (
	SkipNotDue           = "not_due"
	SkipOutsideHours     = "outside_hours"
	SkipSenderExhausted  = "sender_exhausted"
	SkipAlreadyScheduled = "already_scheduled"
	SkipInvalidEmail     = "invalid_email"
	SkipCapReached       = "cap_reached"
	SkipNoSenders        = "no_senders"
	SkipNoSteps          = "no_steps"
)

// RunOptions narrows a scheduler invocation. TestMode runs the full
// selection and allocation without persisting or publishing anything.
type RunOptions struct {
	CampaignID uint `json:"campaign_id"`
	TestMode   bool `json:"test_mode"`
}

// CampaignSummary is the per-campaign slice of a run summary.
type CampaignSummary struct {
	CampaignID uint           `json:"campaign_id"`
	Name       string         `json:"name"`
	Evaluated  int            `json:"evaluated"`
	Due        int            `json:"due"`
	Assigned   int            `json:"assigned"`
	Completed  int            `json:"completed"`
	Errors     int            `json:"errors"`
	Skipped    map[string]int `json:"skipped"`
	Warnings   []string       `json:"warnings,omitempty"`
}

func newCampaignSummary(c *models.Campaign) *CampaignSummary {
	return &CampaignSummary{
		CampaignID: c.ID,
		Name:       c.Name,
		Skipped:    make(map[string]int),
	}
}

func (s *CampaignSummary) skip(reason string, n int) { s.Skipped[reason] += n }

// RunSummary is the structured result the trigger surface returns.
type RunSummary struct {
	RunID      string             `json:"run_id"`
	StartedAt  time.Time          `json:"started_at"`
	DurationMs int64              `json:"duration_ms"`
	TestMode   bool               `json:"test_mode"`
	Campaigns  []*CampaignSummary `json:"campaigns"`
	Evaluated  int                `json:"evaluated"`
	Due        int                `json:"due"`
	Assigned   int                `json:"assigned"`
	Completed  int                `json:"completed"`
	Errors     int                `json:"errors"`
	Skipped    map[string]int     `json:"skipped"`
}

// SchedulerWorker runs the send-scheduling pass: one campaign at a time per
// goroutine, campaigns in parallel, no state shared between them except the
// per-campaign rotation cursors.
type SchedulerWorker struct {
	DB       *gorm.DB
	Delivery utils.Delivery
	Logger   *log.Logger

	Tracker *utils.ProgressTracker
	Senders *utils.CampaignSender

	// Interval is the internal cadence; CampaignBudget bounds one campaign's
	// evaluation so a huge contact list cannot starve the others.
	Interval       time.Duration
	CampaignBudget time.Duration

	cursorMu sync.Mutex
	cursors  map[uint]int
}

func NewSchedulerWorker(db *gorm.DB, delivery utils.Delivery, logger *log.Logger) *SchedulerWorker {
	return &SchedulerWorker{
		DB:             db,
		Delivery:       delivery,
		Logger:         logger,
		Tracker:        utils.NewProgressTracker(db, logger),
		Senders:        utils.NewCampaignSender(db, logger),
		Interval:       5 * time.Minute,
		CampaignBudget: 2 * time.Minute,
		cursors:        make(map[uint]int),
	}
}

// Start runs the scheduler on its fixed cadence until the context is
// cancelled.
func (sw *SchedulerWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	sw.Logger.Println("Scheduler worker started")

	ticker := time.NewTicker(sw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.Logger.Println("Scheduler worker shutting down...")
			return
		case <-ticker.C:
			if _, err := sw.RunOnce(ctx, RunOptions{}); err != nil {
				sw.Logger.Printf("Scheduler pass failed: %v", err)
			}
		}
	}
}

// RunOnce executes one scheduling pass over the active campaigns. Safe to
// invoke concurrently or redundantly: duplicate work is shed by the
// outstanding-schedule check and the progress uniqueness constraint, not by
// locking.
func (sw *SchedulerWorker) RunOnce(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	started := nowFunc()
	summary := &RunSummary{
		RunID:     uuid.New().String(),
		StartedAt: started,
		TestMode:  opts.TestMode,
		Skipped:   make(map[string]int),
	}

	query := sw.DB.Preload("Schedule").
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_number ASC") }).
		Where("status = ?", models.CampaignStatusActive)
	if opts.CampaignID != 0 {
		query = query.Where("id = ?", opts.CampaignID)
	}

	var campaigns []models.Campaign
	if err := query.Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("loading active campaigns: %w", err)
	}

	sw.logRun(summary.RunID, nil, "run_start", "success", "",
		fmt.Sprintf("Scheduler run started: %d active campaign(s)", len(campaigns)))

	var wg sync.WaitGroup
	results := make([]*CampaignSummary, len(campaigns))
	for i := range campaigns {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = sw.processCampaign(ctx, &campaigns[i], summary.RunID, opts.TestMode)
		}(i)
	}
	wg.Wait()

	for _, cs := range results {
		summary.Campaigns = append(summary.Campaigns, cs)
		summary.Evaluated += cs.Evaluated
		summary.Due += cs.Due
		summary.Assigned += cs.Assigned
		summary.Completed += cs.Completed
		summary.Errors += cs.Errors
		for reason, n := range cs.Skipped {
			summary.Skipped[reason] += n
		}
	}

	summary.DurationMs = nowFunc().Sub(started).Milliseconds()
	sw.logRun(summary.RunID, nil, "run_complete", "success", "",
		fmt.Sprintf("Scheduler run completed: %d due, %d assigned", summary.Due, summary.Assigned))
	return summary, nil
}

// processCampaign runs one campaign's pass. Per-contact failures are
// isolated; only this campaign's slice of the run is affected.
func (sw *SchedulerWorker) processCampaign(ctx context.Context, campaign *models.Campaign, runID string, testMode bool) *CampaignSummary {
	cs := newCampaignSummary(campaign)
	now := nowFunc()

	if sw.CampaignBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sw.CampaignBudget)
		defer cancel()
	}

	if len(campaign.Steps) == 0 {
		cs.Warnings = append(cs.Warnings, "campaign has no sequence steps")
		cs.skip(SkipNoSteps, 1)
		sw.logRun(runID, &campaign.ID, "campaign_skipped", "skipped", SkipNoSteps,
			"Active campaign has no sequence steps")
		return cs
	}

	schedule := campaign.Schedule
	startHour, endHour := scheduleHours(schedule)

	contacts, err := sw.loadContacts(campaign.ID)
	if err != nil {
		cs.Errors++
		utils.LogError("contact_load_failed", err, map[string]interface{}{"campaign_id": campaign.ID})
		return cs
	}

	if !campaignWindowOpen(now, schedule) {
		cs.skip(SkipOutsideHours, len(contacts))
		sw.logRun(runID, &campaign.ID, "campaign_skipped", "skipped", SkipOutsideHours,
			"Outside the campaign sending window")
		return cs
	}

	rotation, err := sw.Senders.LoadRotation(campaign.ID)
	if err != nil {
		if errors.Is(err, utils.ErrNoActiveSenders) {
			// This silently disables the campaign, so make it loud.
			cs.Warnings = append(cs.Warnings, "no active senders configured")
			cs.skip(SkipNoSenders, len(contacts))
			utils.LogError("no_active_senders", err, map[string]interface{}{"campaign_id": campaign.ID})
			sw.logRun(runID, &campaign.ID, "error", "failed", SkipNoSenders,
				"No active senders available - campaign cannot send")
		} else {
			cs.Errors++
			utils.LogError("rotation_load_failed", err, map[string]interface{}{"campaign_id": campaign.ID})
		}
		return cs
	}
	rotation.SetCursor(sw.loadCursor(campaign.ID))
	defer sw.saveCursor(campaign.ID, rotation.Cursor())

	capRemaining := sw.dailyCapRemaining(campaign.ID, schedule, now)

	for i := range contacts {
		if ctx.Err() != nil {
			cs.Warnings = append(cs.Warnings, "campaign time budget exhausted; remaining contacts deferred")
			break
		}
		contact := &contacts[i]
		cs.Evaluated++

		if cs.Assigned >= capRemaining {
			cs.skip(SkipCapReached, 1)
			continue
		}

		if !utils.ValidEmailSyntax(contact.Email) {
			cs.skip(SkipInvalidEmail, 1)
			sw.markContact(contact, models.EmailStatusBounced)
			continue
		}

		outstanding, err := sw.Tracker.HasOutstandingSchedule(contact.ID)
		if err != nil {
			cs.Errors++
			utils.LogError("progress_lookup_failed", err, map[string]interface{}{"contact_id": contact.ID})
			continue
		}
		if outstanding {
			cs.skip(SkipAlreadyScheduled, 1)
			continue
		}

		currentStep, err := sw.Tracker.CurrentStep(contact)
		if err != nil {
			cs.Errors++
			utils.LogError("step_reconcile_failed", err, map[string]interface{}{"contact_id": contact.ID})
			continue
		}

		// Sent rows beyond the defined steps reconcile to "done", never to
		// an error.
		if currentStep >= len(campaign.Steps) {
			sw.markContact(contact, models.EmailStatusCompleted)
			cs.Completed++
			continue
		}

		lastSentAt, err := sw.Tracker.LastSentAt(contact.ID)
		if err != nil {
			cs.Errors++
			continue
		}

		due := utils.DueInput{
			ContactID:   fmt.Sprint(contact.ID),
			Location:    contact.Location,
			CreatedAt:   contact.CreatedAt,
			CurrentStep: currentStep,
			LastSentAt:  lastSentAt,
			Steps:       campaign.Steps,
		}.NextSendTime()

		if due == nil {
			sw.markContact(contact, models.EmailStatusCompleted)
			cs.Completed++
			continue
		}
		if now.Before(due.At) {
			cs.skip(SkipNotDue, 1)
			continue
		}

		zone := utils.ResolveTimezone(contact.Location)
		if !utils.IsBusinessHours(now, zone, startHour, endHour) {
			cs.skip(SkipOutsideHours, 1)
			sw.logContact(runID, campaign.ID, contact.ID, "email_skipped", "skipped",
				SkipOutsideHours, currentStep+1, zone,
				fmt.Sprintf("Outside business hours for %s", zone))
			continue
		}

		cs.Due++
		step := &campaign.Steps[currentStep]

		sender, ok := rotation.Assign(contact)
		if !ok {
			cs.skip(SkipSenderExhausted, 1)
			sw.logContact(runID, campaign.ID, contact.ID, "email_skipped", "skipped",
				SkipSenderExhausted, step.StepNumber, zone, "No sender capacity this pass")
			continue
		}

		if testMode {
			cs.Assigned++
			sw.logContact(runID, campaign.ID, contact.ID, "email_scheduled", "success",
				"", step.StepNumber, zone,
				fmt.Sprintf("[TEST] Would send step %d to %s via %s", step.StepNumber, contact.Email, sender.FromEmail))
			continue
		}

		// A failed row from an earlier delivery attempt would block the
		// retry via the uniqueness constraint.
		if err := sw.Tracker.ClearFailed(contact.ID, step.StepNumber); err != nil {
			cs.Errors++
			utils.LogError("failed_row_clear_failed", err, map[string]interface{}{
				"contact_id": contact.ID, "step": step.StepNumber,
			})
			rotation.Refund(sender.ID)
			continue
		}

		if err := sw.Tracker.RecordScheduled(contact, step, sender.ID); err != nil {
			rotation.Refund(sender.ID)
			if errors.Is(err, utils.ErrAlreadyScheduled) {
				cs.skip(SkipAlreadyScheduled, 1)
			} else {
				cs.Errors++
				utils.LogError("schedule_record_failed", err, map[string]interface{}{
					"contact_id": contact.ID, "step": step.StepNumber,
				})
			}
			continue
		}

		if err := sw.Senders.CommitAssignment(sender.ID, rotation.Limit(sender.ID), contact, now); err != nil {
			rotation.Refund(sender.ID)
			if clearErr := sw.Tracker.ClearScheduled(contact.ID, step.StepNumber); clearErr != nil {
				utils.LogError("schedule_rollback_failed", clearErr, map[string]interface{}{
					"contact_id": contact.ID, "step": step.StepNumber,
				})
			}
			if errors.Is(err, utils.ErrSenderCapReached) {
				// A concurrent pass drained the sender between Assign and
				// commit; the contact waits for the next pass.
				cs.skip(SkipSenderExhausted, 1)
			} else {
				cs.Errors++
				utils.LogError("assignment_commit_failed", err, map[string]interface{}{
					"contact_id": contact.ID, "sender_id": sender.ID,
				})
			}
			continue
		}

		item := utils.WorkItem{
			ContactID:  contact.ID,
			CampaignID: campaign.ID,
			SenderID:   sender.ID,
			StepID:     step.ID,
			StepNumber: step.StepNumber,
			Subject:    step.Subject,
			TemplateVariables: map[string]string{
				"first_name": contact.FirstName,
				"last_name":  contact.LastName,
				"full_name":  contact.FullName(),
				"company":    contact.Company,
				"email":      contact.Email,
			},
		}
		if err := sw.Delivery.Enqueue(item); err != nil {
			// The step must not advance; the failed row keeps the contact
			// eligible for a later pass.
			cs.Errors++
			utils.LogError("delivery_enqueue_failed", err, map[string]interface{}{
				"contact_id": contact.ID, "sender_id": sender.ID,
			})
			if ferr := sw.Tracker.RecordFailed(contact.ID, step.StepNumber, err.Error()); ferr != nil {
				sw.Logger.Printf("Failed to record delivery failure for contact %d: %v", contact.ID, ferr)
			}
			continue
		}

		cs.Assigned++
		sw.logContact(runID, campaign.ID, contact.ID, "email_scheduled", "success",
			"", step.StepNumber, zone,
			fmt.Sprintf("Scheduled step %d to %s via %s", step.StepNumber, contact.Email, sender.FromEmail))
	}

	return cs
}

func (sw *SchedulerWorker) loadContacts(campaignID uint) ([]models.Contact, error) {
	var contacts []models.Contact
	err := sw.DB.
		Where("campaign_id = ? AND email_status NOT IN ?", campaignID, models.TerminalEmailStatuses).
		Order("id ASC").
		Find(&contacts).Error
	return contacts, err
}

// dailyCapRemaining counts progress rows created today against the
// campaign's daily contact cap.
func (sw *SchedulerWorker) dailyCapRemaining(campaignID uint, schedule *models.CampaignSchedule, now time.Time) int {
	limit := 35
	if schedule != nil && schedule.DailyContactLimit > 0 {
		limit = schedule.DailyContactLimit
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var today int64
	if err := sw.DB.Model(&models.SequenceProgress{}).
		Where("campaign_id = ? AND created_at >= ?", campaignID, dayStart).
		Count(&today).Error; err != nil {
		sw.Logger.Printf("Failed to count today's schedules for campaign %d: %v", campaignID, err)
		return limit
	}

	remaining := limit - int(today)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// campaignWindowOpen checks the campaign-level gate: the current moment must
// fall on an active weekday inside the sending-hour window in at least one
// of the campaign's reference timezone groups.
func campaignWindowOpen(now time.Time, schedule *models.CampaignSchedule) bool {
	startHour, endHour := scheduleHours(schedule)

	zones := []string{utils.DefaultTimezone}
	if schedule != nil && len(schedule.TimezoneGroups) > 0 {
		zones = schedule.TimezoneGroups
	}
	days := schedule.EffectiveActiveDays()

	for _, zone := range zones {
		if !utils.IsActiveDay(now, zone, days) {
			continue
		}
		h := now.In(utils.LoadZone(zone)).Hour()
		if h >= startHour && h < endHour {
			return true
		}
	}
	return false
}

func scheduleHours(schedule *models.CampaignSchedule) (int, int) {
	if schedule == nil || schedule.SendingEndHour <= schedule.SendingStartHour {
		return 8, 17
	}
	return schedule.SendingStartHour, schedule.SendingEndHour
}

func (sw *SchedulerWorker) markContact(contact *models.Contact, status string) {
	if err := sw.DB.Model(&models.Contact{}).
		Where("id = ?", contact.ID).
		Update("email_status", status).Error; err != nil {
		sw.Logger.Printf("Failed to mark contact %d as %s: %v", contact.ID, status, err)
		return
	}
	contact.EmailStatus = status
}

func (sw *SchedulerWorker) loadCursor(campaignID uint) int {
	sw.cursorMu.Lock()
	defer sw.cursorMu.Unlock()
	return sw.cursors[campaignID]
}

func (sw *SchedulerWorker) saveCursor(campaignID uint, cursor int) {
	sw.cursorMu.Lock()
	defer sw.cursorMu.Unlock()
	sw.cursors[campaignID] = cursor
}

func (sw *SchedulerWorker) logRun(runID string, campaignID *uint, logType, status, skipReason, message string) {
	row := models.AutomationLog{
		RunID:      runID,
		CampaignID: campaignID,
		LogType:    logType,
		Status:     status,
		SkipReason: skipReason,
		Message:    message,
	}
	if err := sw.DB.Create(&row).Error; err != nil {
		sw.Logger.Printf("Failed to write automation log: %v", err)
	}
}

func (sw *SchedulerWorker) logContact(runID string, campaignID, contactID uint, logType, status, skipReason string, step int, zone, message string) {
	row := models.AutomationLog{
		RunID:        runID,
		CampaignID:   &campaignID,
		ContactID:    &contactID,
		LogType:      logType,
		Status:       status,
		SkipReason:   skipReason,
		SequenceStep: step,
		Timezone:     zone,
		Message:      message,
	}
	if err := sw.DB.Create(&row).Error; err != nil {
		sw.Logger.Printf("Failed to write automation log: %v", err)
	}
}
