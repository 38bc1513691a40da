package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvFallback(t *testing.T) {
	t.Setenv("LEADPILOT_TEST_KEY", "value")
	assert.Equal(t, "value", getEnv("LEADPILOT_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", getEnv("LEADPILOT_TEST_MISSING", "fallback"))
}

func TestGetEnvAsInt(t *testing.T) {
	t.Setenv("LEADPILOT_TEST_INT", "42")
	assert.Equal(t, 42, getEnvAsInt("LEADPILOT_TEST_INT", 7))

	t.Setenv("LEADPILOT_TEST_INT", "not-a-number")
	assert.Equal(t, 7, getEnvAsInt("LEADPILOT_TEST_INT", 7))

	assert.Equal(t, 7, getEnvAsInt("LEADPILOT_TEST_INT_MISSING", 7))
}

func TestMaskPassword(t *testing.T) {
	assert.Equal(t,
		"host=db password=***** dbname=x",
		maskPassword("host=db password=hunter2 dbname=x"))
	assert.Equal(t, "password=*****", maskPassword("password=hunter2"))
	assert.Equal(t, "host=db", maskPassword("host=db"))
}
