package controller

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"leadpilot/models"
)

func seedSequence(t *testing.T, db *gorm.DB) (*models.Campaign, []models.SequenceStep) {
	t.Helper()

	c := &models.Campaign{UserID: 1, Name: "Outreach", Status: models.CampaignStatusActive}
	require.NoError(t, db.Create(c).Error)

	steps := []models.SequenceStep{
		{CampaignID: c.ID, StepNumber: 1, Subject: "Hello", TimingDays: 0},
		{CampaignID: c.ID, StepNumber: 2, Subject: "Following up", TimingDays: 3},
	}
	for i := range steps {
		require.NoError(t, db.Create(&steps[i]).Error)
	}
	return c, steps
}

func newCampaignApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()
	cc := NewCampaignController(db, discardLogger())
	app := fiber.New()
	app.Post("/campaigns/:id/resequence", cc.ResequenceCampaign)
	return app
}

func postResequence(t *testing.T, app *fiber.App, campaignID uint, body string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost,
		fmt.Sprintf("/campaigns/%d/resequence", campaignID),
		strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestResequenceRejectsNonContiguousNumbering(t *testing.T) {
	db := newTestDB(t)
	campaign, steps := seedSequence(t, db)
	app := newCampaignApp(t, db)

	// A hole in the numbering would strand contacts whose next step falls
	// into it, so {1, 3} must be rejected outright.
	body := fmt.Sprintf(
		`{"steps":[{"step_id":%d,"step_number":1,"timing_days":0},{"step_id":%d,"step_number":3,"timing_days":3}]}`,
		steps[0].ID, steps[1].ID)
	assert.Equal(t, fiber.StatusBadRequest, postResequence(t, app, campaign.ID, body))

	var stored []models.SequenceStep
	require.NoError(t, db.Where("campaign_id = ?", campaign.ID).
		Order("step_number ASC").Find(&stored).Error)
	require.Len(t, stored, 2)
	assert.Equal(t, 1, stored[0].StepNumber)
	assert.Equal(t, 2, stored[1].StepNumber)
}

func TestResequenceRejectsDuplicateNumbering(t *testing.T) {
	db := newTestDB(t)
	campaign, steps := seedSequence(t, db)
	app := newCampaignApp(t, db)

	body := fmt.Sprintf(
		`{"steps":[{"step_id":%d,"step_number":1,"timing_days":0},{"step_id":%d,"step_number":1,"timing_days":3}]}`,
		steps[0].ID, steps[1].ID)
	assert.Equal(t, fiber.StatusBadRequest, postResequence(t, app, campaign.ID, body))
}

func TestResequenceSwapsSteps(t *testing.T) {
	db := newTestDB(t)
	campaign, steps := seedSequence(t, db)
	app := newCampaignApp(t, db)

	body := fmt.Sprintf(
		`{"steps":[{"step_id":%d,"step_number":2,"timing_days":2},{"step_id":%d,"step_number":1,"timing_days":0}]}`,
		steps[0].ID, steps[1].ID)
	assert.Equal(t, fiber.StatusOK, postResequence(t, app, campaign.ID, body))

	var stored []models.SequenceStep
	require.NoError(t, db.Where("campaign_id = ?", campaign.ID).
		Order("step_number ASC").Find(&stored).Error)
	require.Len(t, stored, 2)
	assert.Equal(t, steps[1].ID, stored[0].ID)
	assert.Equal(t, "Following up", stored[0].Subject)
	assert.Equal(t, steps[0].ID, stored[1].ID)
	assert.Equal(t, 2, stored[1].TimingDays)
}
