package utils

import (
	"errors"
	"log"
	"sort"
	"time"

	"gorm.io/gorm"

	"leadpilot/models"
)

// ErrNoActiveSenders means the campaign cannot send at all -- this silently
// disables a campaign, so callers must surface it prominently.
var ErrNoActiveSenders = errors.New("no active senders available")

// ErrSenderCapReached means another pass consumed the sender's remaining
// daily capacity between Assign and commit.
var ErrSenderCapReached = errors.New("sender daily cap reached")

type CampaignSender struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewCampaignSender(db *gorm.DB, logger *log.Logger) *CampaignSender {
	return &CampaignSender{DB: db, Logger: logger}
}

// Rotation is the allocator state for one campaign pass. It is built fresh
// per pass and threaded through the run explicitly -- never shared across
// campaigns -- so concurrent campaign passes cannot interfere.
type Rotation struct {
	senders []models.Sender
	usage   map[uint]int
	limits  map[uint]int
	cursor  int
}

// LoadRotation builds the pass-local rotation for a campaign: active senders
// in priority order (least-recently-used breaking ties), usage seeded from
// today's counters, warming senders capped at their warmup daily target.
func (cs *CampaignSender) LoadRotation(campaignID uint) (*Rotation, error) {
	var senders []models.Sender
	if err := cs.DB.Preload("Warmup").
		Where("campaign_id = ? AND is_active = ?", campaignID, true).
		Find(&senders).Error; err != nil {
		return nil, err
	}
	if len(senders) == 0 {
		return nil, ErrNoActiveSenders
	}

	sort.SliceStable(senders, func(i, j int) bool {
		if senders[i].RotationPriority != senders[j].RotationPriority {
			return senders[i].RotationPriority < senders[j].RotationPriority
		}
		li, lj := senders[i].LastUsedAt, senders[j].LastUsedAt
		switch {
		case li == nil:
			return lj != nil
		case lj == nil:
			return false
		}
		return li.Before(*lj)
	})

	rot := &Rotation{
		senders: senders,
		usage:   make(map[uint]int, len(senders)),
		limits:  make(map[uint]int, len(senders)),
	}
	for _, s := range senders {
		rot.usage[s.ID] = s.EmailsSentToday
		rot.limits[s.ID] = effectiveDailyLimit(&s)
	}
	return rot, nil
}

// effectiveDailyLimit is the sender's cap for today. While warming, the
// warmup daily target overrides the configured limit downward.
func effectiveDailyLimit(s *models.Sender) int {
	limit := s.DailyLimit
	if s.Warmup != nil && s.Warmup.Status == models.WarmupStatusActive && s.Warmup.DailyTarget < limit {
		limit = s.Warmup.DailyTarget
	}
	return limit
}

// Assign picks the sender for a due contact. A pinned contact keeps its
// sender while that sender has capacity; otherwise the rotation walks from
// the cursor and the first sender under its limit wins. Returns false when a
// full rotation finds no capacity -- the contact is dropped for this pass,
// not an error.
func (r *Rotation) Assign(contact *models.Contact) (*models.Sender, bool) {
	if contact.AssignedSenderID != nil {
		for i := range r.senders {
			s := &r.senders[i]
			if s.ID != *contact.AssignedSenderID {
				continue
			}
			if r.usage[s.ID] < r.limits[s.ID] {
				r.usage[s.ID]++
				return s, true
			}
			// Pinned sender exhausted: the contact waits rather than
			// switching identity mid-sequence.
			return nil, false
		}
		// Pin points at a removed/deactivated sender; fall back to rotation.
	}

	for i := 0; i < len(r.senders); i++ {
		idx := (r.cursor + i) % len(r.senders)
		s := &r.senders[idx]
		if r.usage[s.ID] < r.limits[s.ID] {
			r.usage[s.ID]++
			r.cursor = (idx + 1) % len(r.senders)
			return s, true
		}
	}
	return nil, false
}

// Usage returns the pass-local count assigned to a sender.
func (r *Rotation) Usage(senderID uint) int { return r.usage[senderID] }

// Limit returns the sender's effective daily cap for this pass.
func (r *Rotation) Limit(senderID uint) int { return r.limits[senderID] }

// Refund releases a slot taken by Assign when the assignment could not be
// recorded (e.g. a concurrent pass already scheduled the step).
func (r *Rotation) Refund(senderID uint) {
	if r.usage[senderID] > 0 {
		r.usage[senderID]--
	}
}

// Cursor and SetCursor expose the rotation position so the scheduler can
// carry it across passes per campaign.
func (r *Rotation) Cursor() int { return r.cursor }

func (r *Rotation) SetCursor(c int) {
	if len(r.senders) > 0 {
		r.cursor = ((c % len(r.senders)) + len(r.senders)) % len(r.senders)
	}
}

// Remaining reports how many assignments the rotation can still hand out.
func (r *Rotation) Remaining() int {
	total := 0
	for _, s := range r.senders {
		if left := r.limits[s.ID] - r.usage[s.ID]; left > 0 {
			total += left
		}
	}
	return total
}

// CommitAssignment persists one assignment: daily counter, rotation
// bookkeeping, and the contact's sender pin. The counter increment is
// guarded by the cap so two passes over the same campaign cannot jointly
// push a sender past its limit; losing the race returns
// ErrSenderCapReached.
func (cs *CampaignSender) CommitAssignment(senderID uint, limit int, contact *models.Contact, now time.Time) error {
	res := cs.DB.Model(&models.Sender{}).
		Where("id = ? AND emails_sent_today < ?", senderID, limit).
		Updates(map[string]interface{}{
			"emails_sent_today": gorm.Expr("emails_sent_today + ?", 1),
			"total_sent":        gorm.Expr("total_sent + ?", 1),
			"last_used_at":      now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSenderCapReached
	}

	if contact.AssignedSenderID == nil || *contact.AssignedSenderID != senderID {
		if err := cs.DB.Model(&models.Contact{}).
			Where("id = ?", contact.ID).
			Update("assigned_sender_id", senderID).Error; err != nil {
			return err
		}
		contact.AssignedSenderID = &senderID
	}
	return nil
}

// ResetDailyCounters resets all sender counters at midnight. Runs as its own
// goroutine; the scheduler itself only ever reads and increments.
func (cs *CampaignSender) ResetDailyCounters() {
	for {
		now := time.Now()
		nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
		time.Sleep(time.Until(nextMidnight))

		if err := cs.DB.Model(&models.Sender{}).
			Where("emails_sent_today > 0").
			Updates(map[string]interface{}{
				"emails_sent_today": 0,
				"last_reset_at":     time.Now(),
			}).Error; err != nil {
			cs.Logger.Printf("Failed to reset sender counters: %v", err)
		} else {
			cs.Logger.Println("Successfully reset sender daily counters")
		}
	}
}
