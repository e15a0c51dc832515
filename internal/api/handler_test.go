package api

import (
	"testing"
	"time"

	"price-tracker/config"

	"github.com/stretchr/testify/assert"
)

func TestTriggerTimeoutFollowsBatchWindow(t *testing.T) {
	assert.Equal(t, 25*time.Minute,
		triggerTimeout(config.ScrapeConfig{BatchDurationMinutes: 10}))

	// long batch windows get a correspondingly longer bound
	assert.Equal(t, 135*time.Minute,
		triggerTimeout(config.ScrapeConfig{BatchDurationMinutes: 120}))
}
