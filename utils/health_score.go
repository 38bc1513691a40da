package utils

import "leadpilot/models"

// SenderStats is the raw material for a health score, independent of where
// the numbers came from so the calculation stays trivially testable.
type SenderStats struct {
	WarmupStatus string // active, paused, completed, or empty
	WarmupDays   int

	TotalSent    int
	TotalBounced int
	TotalOpened  int
	TotalClicked int
	TotalReplied int

	RecentSent int // trailing window volume
	AccountAge int // days since the sender was created
}

// HealthBreakdown is the per-component view behind a composite score.
type HealthBreakdown struct {
	WarmupScore         int `json:"warmup_score"`
	DeliverabilityScore int `json:"deliverability_score"`
	EngagementScore     int `json:"engagement_score"`
	VolumeScore         int `json:"volume_score"`
	ReputationScore     int `json:"reputation_score"`
}

// HealthScore blends five bucketed components into a 0-100 composite:
// warmup progress 25%, deliverability 30%, engagement 25%, volume
// consistency 10%, account age 10%. Components are stepped rather than
// continuous so a single noisy day cannot swing the score.
func HealthScore(stats SenderStats) (int, HealthBreakdown) {
	var b HealthBreakdown

	switch stats.WarmupStatus {
	case models.WarmupStatusCompleted:
		b.WarmupScore = 100
	case models.WarmupStatusActive:
		b.WarmupScore = stats.WarmupDays * 100 / 30
		if b.WarmupScore > 100 {
			b.WarmupScore = 100
		}
	case models.WarmupStatusPaused:
		b.WarmupScore = 60
	default:
		b.WarmupScore = 50
	}

	bounceRate := rate(stats.TotalBounced, stats.TotalSent)
	switch {
	case bounceRate < 1:
		b.DeliverabilityScore = 100
	case bounceRate < 2:
		b.DeliverabilityScore = 90
	case bounceRate < 5:
		b.DeliverabilityScore = 75
	case bounceRate < 10:
		b.DeliverabilityScore = 50
	default:
		b.DeliverabilityScore = 25
	}

	b.EngagementScore = engagementScore(stats)

	switch {
	case stats.RecentSent == 0:
		b.VolumeScore = 30
	case stats.RecentSent < 10:
		b.VolumeScore = 60
	case stats.RecentSent < 50:
		b.VolumeScore = 85
	case stats.RecentSent < 100:
		b.VolumeScore = 100
	default:
		b.VolumeScore = 75 // suspiciously high volume is itself a risk
	}

	switch {
	case stats.AccountAge > 180:
		b.ReputationScore = 100
	case stats.AccountAge > 90:
		b.ReputationScore = 85
	case stats.AccountAge > 30:
		b.ReputationScore = 70
	case stats.AccountAge > 7:
		b.ReputationScore = 55
	default:
		b.ReputationScore = 40
	}

	score := (b.WarmupScore*25 + b.DeliverabilityScore*30 + b.EngagementScore*25 +
		b.VolumeScore*10 + b.ReputationScore*10 + 50) / 100

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score, b
}

// engagementScore buckets open (40%), click (30%) and reply (30%) rates.
// With no sends yet there is no signal, so it sits at a neutral 50.
func engagementScore(stats SenderStats) int {
	if stats.TotalSent == 0 {
		return 50
	}

	openRate := rate(stats.TotalOpened, stats.TotalSent)
	clickRate := rate(stats.TotalClicked, stats.TotalSent)
	replyRate := rate(stats.TotalReplied, stats.TotalSent)

	total := 0
	switch {
	case openRate > 25:
		total += 40
	case openRate > 20:
		total += 32
	case openRate > 15:
		total += 24
	case openRate > 10:
		total += 16
	default:
		total += 8
	}

	switch {
	case clickRate > 5:
		total += 30
	case clickRate > 3:
		total += 24
	case clickRate > 2:
		total += 18
	case clickRate > 1:
		total += 12
	default:
		total += 6
	}

	switch {
	case replyRate > 3:
		total += 30
	case replyRate > 2:
		total += 24
	case replyRate > 1:
		total += 18
	case replyRate > 0.5:
		total += 12
	default:
		total += 6
	}

	return total
}

func rate(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// SenderHealth derives the stats for a sender row and scores it.
func SenderHealth(s *models.Sender) (int, HealthBreakdown) {
	stats := SenderStats{
		TotalSent:    s.TotalSent,
		TotalBounced: s.TotalBounced,
		TotalOpened:  s.TotalOpened,
		TotalClicked: s.TotalClicked,
		TotalReplied: s.TotalReplied,
		RecentSent:   s.RecentSent,
		AccountAge:   int(nowFunc().Sub(s.CreatedAt).Hours() / 24),
	}
	if s.Warmup != nil {
		stats.WarmupStatus = s.Warmup.Status
		stats.WarmupDays = s.Warmup.TotalWarmingDays
	}
	return HealthScore(stats)
}
