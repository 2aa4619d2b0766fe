package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduleDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("never sent is due immediately", func(t *testing.T) {
		s := &Schedule{Frequency: FrequencyDaily, IsActive: true}
		assert.True(t, s.Due(now))
	})

	t.Run("inactive never due", func(t *testing.T) {
		s := &Schedule{Frequency: FrequencyDaily, IsActive: false}
		assert.False(t, s.Due(now))
	})

	t.Run("disabled never due", func(t *testing.T) {
		s := &Schedule{Frequency: FrequencyDisabled, IsActive: true}
		assert.False(t, s.Due(now))
	})

	t.Run("daily honors the period", func(t *testing.T) {
		halfDayAgo := now.Add(-12 * time.Hour)
		s := &Schedule{Frequency: FrequencyDaily, IsActive: true, LastSent: &halfDayAgo}
		assert.False(t, s.Due(now))
		assert.True(t, s.Due(now.Add(12*time.Hour+time.Second)))
	})

	t.Run("boundary is inclusive", func(t *testing.T) {
		lastSent := now.Add(-time.Minute)
		s := &Schedule{Frequency: FrequencyMinute, IsActive: true, LastSent: &lastSent}
		assert.True(t, s.Due(now))
	})
}

func TestFrequencyPeriod(t *testing.T) {
	assert.Equal(t, time.Minute, FrequencyMinute.Period())
	assert.Equal(t, 24*time.Hour, FrequencyDaily.Period())
	assert.Equal(t, 7*24*time.Hour, FrequencyWeekly.Period())
	assert.Equal(t, 30*24*time.Hour, FrequencyMonthly.Period())
	assert.Equal(t, time.Duration(0), FrequencyDisabled.Period())
}
