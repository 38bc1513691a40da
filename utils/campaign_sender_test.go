package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"leadpilot/models"
)

func seedSender(t *testing.T, db *gorm.DB, campaignID uint, email string, priority, dailyLimit int) *models.Sender {
	t.Helper()
	s := &models.Sender{
		UserID:           1,
		CampaignID:       campaignID,
		FromEmail:        email,
		IsActive:         true,
		DailyLimit:       dailyLimit,
		RotationPriority: priority,
	}
	require.NoError(t, db.Create(s).Error)
	return s
}

func TestLoadRotationNoSenders(t *testing.T) {
	db := newTestDB(t)
	cs := NewCampaignSender(db, discardLogger())

	_, err := cs.LoadRotation(1)
	assert.ErrorIs(t, err, ErrNoActiveSenders)
}

func TestLoadRotationIgnoresInactiveSenders(t *testing.T) {
	db := newTestDB(t)
	s := seedSender(t, db, 1, "a@example.com", 0, 10)
	require.NoError(t, db.Model(s).Update("is_active", false).Error)

	cs := NewCampaignSender(db, discardLogger())
	_, err := cs.LoadRotation(1)
	assert.ErrorIs(t, err, ErrNoActiveSenders)
}

func TestRotationWalksInPriorityOrder(t *testing.T) {
	db := newTestDB(t)
	used := time.Date(2026, 6, 8, 10, 0, 0, 0, time.UTC)

	b := seedSender(t, db, 1, "b@example.com", 1, 10)
	require.NoError(t, db.Model(b).Update("last_used_at", used).Error)
	c := seedSender(t, db, 1, "c@example.com", 1, 10) // never used, wins the tie
	a := seedSender(t, db, 1, "a@example.com", 0, 10)

	cs := NewCampaignSender(db, discardLogger())
	rot, err := cs.LoadRotation(1)
	require.NoError(t, err)

	var got []uint
	for i := 0; i < 4; i++ {
		s, ok := rot.Assign(&models.Contact{})
		require.True(t, ok)
		got = append(got, s.ID)
	}
	assert.Equal(t, []uint{a.ID, c.ID, b.ID, a.ID}, got)
}

func TestRotationNeverExceedsDailyLimit(t *testing.T) {
	db := newTestDB(t)
	a := seedSender(t, db, 1, "a@example.com", 0, 2)
	b := seedSender(t, db, 1, "b@example.com", 1, 3)

	cs := NewCampaignSender(db, discardLogger())
	rot, err := cs.LoadRotation(1)
	require.NoError(t, err)

	granted := 0
	for i := 0; i < 20; i++ {
		if _, ok := rot.Assign(&models.Contact{}); ok {
			granted++
		}
	}

	assert.Equal(t, 5, granted)
	assert.Equal(t, 2, rot.Usage(a.ID))
	assert.Equal(t, 3, rot.Usage(b.ID))
	assert.Equal(t, 0, rot.Remaining())
}

func TestRotationSeedsUsageFromTodayCounter(t *testing.T) {
	db := newTestDB(t)
	s := seedSender(t, db, 1, "a@example.com", 0, 2)
	require.NoError(t, db.Model(s).Update("emails_sent_today", 1).Error)

	cs := NewCampaignSender(db, discardLogger())
	rot, err := cs.LoadRotation(1)
	require.NoError(t, err)

	assert.Equal(t, 1, rot.Remaining())
}

func TestWarmupTargetCapsDailyLimit(t *testing.T) {
	db := newTestDB(t)
	s := seedSender(t, db, 1, "warm@example.com", 0, 50)
	require.NoError(t, db.Create(&models.WarmupState{
		SenderID:    s.ID,
		CampaignID:  1,
		Phase:       1,
		DailyTarget: models.WarmupPhase1Target,
		Status:      models.WarmupStatusActive,
	}).Error)

	cs := NewCampaignSender(db, discardLogger())
	rot, err := cs.LoadRotation(1)
	require.NoError(t, err)

	assert.Equal(t, models.WarmupPhase1Target, rot.Remaining())
}

func TestCompletedWarmupDoesNotCapLimit(t *testing.T) {
	db := newTestDB(t)
	s := seedSender(t, db, 1, "done@example.com", 0, 50)
	require.NoError(t, db.Create(&models.WarmupState{
		SenderID:    s.ID,
		CampaignID:  1,
		DailyTarget: models.WarmupPhase3Target,
		Status:      models.WarmupStatusCompleted,
	}).Error)

	cs := NewCampaignSender(db, discardLogger())
	rot, err := cs.LoadRotation(1)
	require.NoError(t, err)

	assert.Equal(t, 50, rot.Remaining())
}

func TestPinnedContactKeepsItsSender(t *testing.T) {
	db := newTestDB(t)
	seedSender(t, db, 1, "a@example.com", 0, 10)
	pinned := seedSender(t, db, 1, "b@example.com", 1, 1)

	cs := NewCampaignSender(db, discardLogger())
	rot, err := cs.LoadRotation(1)
	require.NoError(t, err)

	contact := &models.Contact{AssignedSenderID: &pinned.ID}
	s, ok := rot.Assign(contact)
	require.True(t, ok)
	assert.Equal(t, pinned.ID, s.ID)

	// Pinned sender is now at its limit: the contact waits instead of
	// switching identity.
	_, ok = rot.Assign(contact)
	assert.False(t, ok)
}

func TestPinToRemovedSenderFallsBack(t *testing.T) {
	db := newTestDB(t)
	a := seedSender(t, db, 1, "a@example.com", 0, 10)

	cs := NewCampaignSender(db, discardLogger())
	rot, err := cs.LoadRotation(1)
	require.NoError(t, err)

	gone := uint(9999)
	s, ok := rot.Assign(&models.Contact{AssignedSenderID: &gone})
	require.True(t, ok)
	assert.Equal(t, a.ID, s.ID)
}

func TestRefundReleasesSlot(t *testing.T) {
	db := newTestDB(t)
	a := seedSender(t, db, 1, "a@example.com", 0, 1)

	cs := NewCampaignSender(db, discardLogger())
	rot, err := cs.LoadRotation(1)
	require.NoError(t, err)

	_, ok := rot.Assign(&models.Contact{})
	require.True(t, ok)
	assert.Equal(t, 0, rot.Remaining())

	rot.Refund(a.ID)
	assert.Equal(t, 1, rot.Remaining())
}

func TestSetCursorNormalizes(t *testing.T) {
	db := newTestDB(t)
	seedSender(t, db, 1, "a@example.com", 0, 10)
	seedSender(t, db, 1, "b@example.com", 1, 10)

	cs := NewCampaignSender(db, discardLogger())
	rot, err := cs.LoadRotation(1)
	require.NoError(t, err)

	rot.SetCursor(5)
	assert.Equal(t, 1, rot.Cursor())
	rot.SetCursor(-1)
	assert.Equal(t, 1, rot.Cursor())
}

func TestCommitAssignmentPersistsCountersAndPin(t *testing.T) {
	db := newTestDB(t)
	s := seedSender(t, db, 1, "a@example.com", 0, 10)

	contact := &models.Contact{CampaignID: 1, Email: "lead@example.com"}
	require.NoError(t, db.Create(contact).Error)

	cs := NewCampaignSender(db, discardLogger())
	now := time.Date(2026, 6, 9, 15, 0, 0, 0, time.UTC)
	require.NoError(t, cs.CommitAssignment(s.ID, 10, contact, now))
	require.NoError(t, cs.CommitAssignment(s.ID, 10, contact, now))

	var reloaded models.Sender
	require.NoError(t, db.First(&reloaded, s.ID).Error)
	assert.Equal(t, 2, reloaded.EmailsSentToday)
	assert.Equal(t, 2, reloaded.TotalSent)
	require.NotNil(t, reloaded.LastUsedAt)

	var pinned models.Contact
	require.NoError(t, db.First(&pinned, contact.ID).Error)
	require.NotNil(t, pinned.AssignedSenderID)
	assert.Equal(t, s.ID, *pinned.AssignedSenderID)
}

func TestCommitAssignmentStopsAtDailyCap(t *testing.T) {
	db := newTestDB(t)
	s := seedSender(t, db, 1, "a@example.com", 0, 2)
	require.NoError(t, db.Model(s).Update("emails_sent_today", 2).Error)

	contact := &models.Contact{CampaignID: 1, Email: "lead@example.com"}
	require.NoError(t, db.Create(contact).Error)

	// Another pass filled the counter after this pass built its rotation.
	cs := NewCampaignSender(db, discardLogger())
	now := time.Date(2026, 6, 9, 15, 0, 0, 0, time.UTC)
	err := cs.CommitAssignment(s.ID, 2, contact, now)
	assert.ErrorIs(t, err, ErrSenderCapReached)

	var reloaded models.Sender
	require.NoError(t, db.First(&reloaded, s.ID).Error)
	assert.Equal(t, 2, reloaded.EmailsSentToday)
	assert.Equal(t, 0, reloaded.TotalSent)

	var pinned models.Contact
	require.NoError(t, db.First(&pinned, contact.ID).Error)
	assert.Nil(t, pinned.AssignedSenderID)
}
