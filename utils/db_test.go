package utils

import (
	"io"
	"log"
	"testing"

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
