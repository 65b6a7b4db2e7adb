package lnmtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsValidFundingSettlementTime(t *testing.T) {
	valid := []time.Time{
		time.Date(2021, 6, 1, 8, 0, 0, 0, time.UTC),   // phase A
		time.Date(2022, 1, 1, 4, 0, 0, 0, time.UTC),   // phase B
		time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC),  // phase B
		time.Date(2022, 1, 1, 20, 0, 0, 0, time.UTC),  // phase B
		time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),   // phase C
		time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),   // phase C
		time.Date(2025, 5, 1, 16, 0, 0, 0, time.UTC),  // phase C
		SettlementAStart,
		SettlementAEnd,
		SettlementBStart,
		SettlementBEnd,
		SettlementCStart,
	}
	for _, tm := range valid {
		assert.True(t, IsValidFundingSettlementTime(tm), "expected valid: %v", tm)
	}

	invalid := []time.Time{
		time.Date(2021, 6, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2021, 12, 7, 12, 0, 0, 0, time.UTC), // dead zone between A end and B start
		time.Date(2025, 4, 11, 10, 0, 0, 0, time.UTC), // dead zone between B end and C start
		time.Date(2020, 1, 1, 8, 0, 0, 0, time.UTC),   // before schedule starts
		time.Date(2022, 1, 1, 4, 0, 30, 0, time.UTC),  // not on the minute
	}
	for _, tm := range invalid {
		assert.False(t, IsValidFundingSettlementTime(tm), "expected invalid: %v", tm)
	}
}

func TestCeilFloorAreIdentityOnValidTimes(t *testing.T) {
	valid := []time.Time{
		time.Date(2021, 6, 1, 8, 0, 0, 0, time.UTC),
		time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2025, 5, 1, 16, 0, 0, 0, time.UTC),
	}
	for _, tm := range valid {
		assert.Equal(t, tm, CeilFundingSettlementTime(tm))
		assert.Equal(t, tm, FloorFundingSettlementTime(tm))
	}
}

func TestCeilFloorSnapAcrossDeadZones(t *testing.T) {
	deadZoneA := time.Date(2021, 12, 7, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, SettlementBStart, CeilFundingSettlementTime(deadZoneA))
	assert.Equal(t, SettlementAEnd, FloorFundingSettlementTime(deadZoneA))

	deadZoneB := time.Date(2025, 4, 11, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, SettlementCStart, CeilFundingSettlementTime(deadZoneB))
	assert.Equal(t, SettlementBEnd, FloorFundingSettlementTime(deadZoneB))
}

func TestCeilFloorWithinPhase(t *testing.T) {
	mid := time.Date(2022, 3, 15, 10, 0, 0, 0, time.UTC) // phase B, between 04 and 12
	assert.Equal(t, time.Date(2022, 3, 15, 12, 0, 0, 0, time.UTC), CeilFundingSettlementTime(mid))
	assert.Equal(t, time.Date(2022, 3, 15, 4, 0, 0, 0, time.UTC), FloorFundingSettlementTime(mid))
}

func TestFloorMinuteAndIsRoundMinute(t *testing.T) {
	tm := time.Date(2024, 1, 1, 10, 30, 45, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC), FloorMinute(tm))
	assert.False(t, IsRoundMinute(tm))
	assert.True(t, IsRoundMinute(FloorMinute(tm)))
}
