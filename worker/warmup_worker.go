package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"leadpilot/models"
	"leadpilot/utils"
)

// WarmupWorker advances sender warmup state machines and graduates campaigns
// out of Warming once every sender has completed its ramp.
type WarmupWorker struct {
	DB     *gorm.DB
	Logger *log.Logger

	// Interval is how often states are checked; the advance itself only
	// happens once per calendar day per sender.
	Interval time.Duration
}

func NewWarmupWorker(db *gorm.DB, logger *log.Logger) *WarmupWorker {
	return &WarmupWorker{
		DB:       db,
		Logger:   logger,
		Interval: time.Hour,
	}
}

// Start runs the warmup controller until the context is cancelled.
func (ww *WarmupWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(15 * time.Second)

	ww.Logger.Println("Warmup worker started")

	ticker := time.NewTicker(ww.Interval)
	defer ticker.Stop()

	// Run once on startup so a restarted process does not wait a full
	// interval to catch up on missed days.
	ww.RunOnce()

	for {
		select {
		case <-ctx.Done():
			ww.Logger.Println("Warmup worker shutting down...")
			return
		case <-ticker.C:
			ww.RunOnce()
		}
	}
}

// RunOnce advances every active warmup state that has crossed a calendar-day
// boundary since its last advance, then graduates campaigns whose senders
// have all completed.
func (ww *WarmupWorker) RunOnce() {
	var states []models.WarmupState
	if err := ww.DB.Where("status = ?", models.WarmupStatusActive).Find(&states).Error; err != nil {
		ww.Logger.Printf("Failed to load warmup states: %v", err)
		return
	}

	now := nowFunc()
	advanced := 0
	for i := range states {
		state := &states[i]
		if !ww.dayBoundaryCrossed(state, now) {
			continue
		}
		if err := ww.advanceState(state, now); err != nil {
			utils.LogError("warmup_advance_failed", err, map[string]interface{}{
				"sender_id": state.SenderID,
				"phase":     state.Phase,
			})
			continue
		}
		advanced++
	}

	if advanced > 0 {
		ww.Logger.Printf("Advanced %d warmup state(s)", advanced)
	}

	ww.graduateCampaigns()
}

// dayBoundaryCrossed reports whether a new warmup day has started since the
// state last advanced, in the default reference timezone. A state that has
// never advanced is due immediately.
func (ww *WarmupWorker) dayBoundaryCrossed(state *models.WarmupState, now time.Time) bool {
	if state.LastAdvancedAt == nil {
		return true
	}
	loc := utils.LoadZone(utils.DefaultTimezone)
	last := state.LastAdvancedAt.In(loc)
	cur := now.In(loc)
	return last.Year() != cur.Year() || last.YearDay() != cur.YearDay()
}

// advanceState moves the state machine one day forward. Phase and
// TotalWarmingDays never move backward and DailyTarget never decreases;
// phase 3 completes only once the sender's health score has reached its
// target, so a struggling sender keeps warming rather than being promoted.
func (ww *WarmupWorker) advanceState(state *models.WarmupState, now time.Time) error {
	var sender models.Sender
	if err := ww.DB.Preload("Warmup").First(&sender, state.SenderID).Error; err != nil {
		return fmt.Errorf("loading sender %d: %w", state.SenderID, err)
	}

	score, _ := utils.SenderHealth(&sender)

	state.HealthScore = score
	state.DayInPhase++
	state.TotalWarmingDays++
	state.LastAdvancedAt = &now

	if state.DayInPhase >= phaseDays(state.Phase) {
		switch {
		case state.Phase < 3:
			state.Phase++
			state.DayInPhase = 1
			state.DailyTarget = models.PhaseTarget(state.Phase)
			ww.Logger.Printf("Sender %d entered warmup phase %d (target %d/day)",
				state.SenderID, state.Phase, state.DailyTarget)
		case state.HealthScore >= state.TargetHealthScore:
			state.Status = models.WarmupStatusCompleted
			state.CompletedAt = &now
			ww.Logger.Printf("Sender %d completed warmup after %d days (health %d)",
				state.SenderID, state.TotalWarmingDays, state.HealthScore)
		default:
			// Phase 3 holds until the health target is met.
			ww.Logger.Printf("Sender %d holding in phase 3: health %d below target %d",
				state.SenderID, state.HealthScore, state.TargetHealthScore)
		}
	}

	return ww.DB.Save(state).Error
}

func phaseDays(phase int) int {
	switch phase {
	case 1:
		return models.WarmupPhase1Days
	case 2:
		return models.WarmupPhase2Days
	default:
		return models.WarmupPhase3Days
	}
}

// graduateCampaigns flips Warming campaigns to Active once every active
// sender's warmup has completed.
func (ww *WarmupWorker) graduateCampaigns() {
	var campaigns []models.Campaign
	if err := ww.DB.Where("status = ?", models.CampaignStatusWarming).Find(&campaigns).Error; err != nil {
		ww.Logger.Printf("Failed to load warming campaigns: %v", err)
		return
	}

	for i := range campaigns {
		campaign := &campaigns[i]

		ready, err := ww.allSendersWarmed(campaign.ID)
		if err != nil {
			utils.LogError("graduation_check_failed", err, map[string]interface{}{
				"campaign_id": campaign.ID,
			})
			continue
		}
		if !ready {
			continue
		}

		if err := ww.DB.Model(&models.Campaign{}).
			Where("id = ? AND status = ?", campaign.ID, models.CampaignStatusWarming).
			Update("status", models.CampaignStatusActive).Error; err != nil {
			utils.LogError("graduation_failed", err, map[string]interface{}{
				"campaign_id": campaign.ID,
			})
			continue
		}

		ww.Logger.Printf("Campaign %d graduated from Warming to Active", campaign.ID)
		utils.LogEvent("campaign_activated", map[string]interface{}{
			"campaign_id": campaign.ID,
			"name":        campaign.Name,
		})
	}
}

// allSendersWarmed reports whether the campaign has at least one active
// sender and all of them have completed warmup.
func (ww *WarmupWorker) allSendersWarmed(campaignID uint) (bool, error) {
	var senders []models.Sender
	if err := ww.DB.Preload("Warmup").
		Where("campaign_id = ? AND is_active = ?", campaignID, true).
		Find(&senders).Error; err != nil {
		return false, err
	}
	if len(senders) == 0 {
		return false, nil
	}

	for i := range senders {
		w := senders[i].Warmup
		if w == nil || w.Status != models.WarmupStatusCompleted {
			return false, nil
		}
	}
	return true, nil
}
