package worker

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"leadpilot/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Campaign{},
		&models.CampaignSchedule{},
		&models.SequenceStep{},
		&models.Contact{},
		&models.SequenceProgress{},
		&models.AutomationLog{},
		&models.Sender{},
		&models.WarmupState{},
	))
	return db
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// freezeTime pins the worker clock for the duration of a test.
func freezeTime(t *testing.T, at time.Time) {
	t.Helper()
	orig := nowFunc
	nowFunc = func() time.Time { return at }
	t.Cleanup(func() { nowFunc = orig })
}
