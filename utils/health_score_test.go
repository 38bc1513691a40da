package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"leadpilot/models"
)

func TestHealthScoreFreshSender(t *testing.T) {
	score, b := HealthScore(SenderStats{})

	assert.Equal(t, 50, b.WarmupScore)
	assert.Equal(t, 100, b.DeliverabilityScore, "no sends means no bounces")
	assert.Equal(t, 50, b.EngagementScore, "no sends is neutral, not bad")
	assert.Equal(t, 30, b.VolumeScore)
	assert.Equal(t, 40, b.ReputationScore)
	assert.Equal(t, 62, score)
}

func TestHealthScoreStrongSender(t *testing.T) {
	score, b := HealthScore(SenderStats{
		WarmupStatus: models.WarmupStatusCompleted,
		TotalSent:    1000,
		TotalBounced: 5,
		TotalOpened:  300,
		TotalClicked: 60,
		TotalReplied: 40,
		RecentSent:   75,
		AccountAge:   200,
	})

	assert.Equal(t, 100, b.WarmupScore)
	assert.Equal(t, 100, b.DeliverabilityScore)
	assert.Equal(t, 100, b.EngagementScore)
	assert.Equal(t, 100, b.VolumeScore)
	assert.Equal(t, 100, b.ReputationScore)
	assert.Equal(t, 100, score)
}

func TestHealthScoreHighBounceRate(t *testing.T) {
	_, b := HealthScore(SenderStats{
		TotalSent:    100,
		TotalBounced: 12,
	})
	assert.Equal(t, 25, b.DeliverabilityScore)
}

func TestHealthScoreWarmupProgressIsProportional(t *testing.T) {
	_, b := HealthScore(SenderStats{WarmupStatus: models.WarmupStatusActive, WarmupDays: 15})
	assert.Equal(t, 50, b.WarmupScore)

	_, b = HealthScore(SenderStats{WarmupStatus: models.WarmupStatusActive, WarmupDays: 45})
	assert.Equal(t, 100, b.WarmupScore, "progress caps at 100")
}

func TestHealthScoreVolumePenalizesBursts(t *testing.T) {
	_, moderate := HealthScore(SenderStats{RecentSent: 75})
	_, burst := HealthScore(SenderStats{RecentSent: 500})
	assert.Greater(t, moderate.VolumeScore, burst.VolumeScore)
}

func TestSenderHealthUsesAccountAge(t *testing.T) {
	fixed := time.Date(2026, 6, 9, 12, 0, 0, 0, time.UTC)
	orig := nowFunc
	nowFunc = func() time.Time { return fixed }
	defer func() { nowFunc = orig }()

	sender := &models.Sender{
		Model:  gorm.Model{CreatedAt: fixed.AddDate(0, 0, -40)},
		Warmup: &models.WarmupState{Status: models.WarmupStatusCompleted},
	}

	_, b := SenderHealth(sender)
	assert.Equal(t, 70, b.ReputationScore)
	assert.Equal(t, 100, b.WarmupScore)
}
