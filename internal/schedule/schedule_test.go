package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindme/internal/clock"
)

// Wednesday.
var wedMorning = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

func tod(h, m int) clock.TimeOfDay {
	return clock.TimeOfDay{Hour: h, Minute: m}
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestNextOccurrenceSameDayFuture(t *testing.T) {
	got := NextOccurrence(clock.Wednesday, tod(14, 0), 0, wedMorning)
	assert.Equal(t, time.Date(2025, 1, 1, 14, 0, 0, 0, time.UTC), got)
}

func TestNextOccurrenceTodaySlotPassed(t *testing.T) {
	got := NextOccurrence(clock.Wednesday, tod(9, 0), 0, wedMorning)
	assert.Equal(t, time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC), got)
}

func TestNextOccurrenceLeadPushesToNextWeek(t *testing.T) {
	// Slot 10:30 with 60 minute lead: trigger 09:30 already passed at 10:00,
	// so the occurrence moves a full week out.
	got := NextOccurrence(clock.Wednesday, tod(10, 30), 60, wedMorning)
	assert.Equal(t, time.Date(2025, 1, 8, 10, 30, 0, 0, time.UTC), got)
}

func TestNextOccurrenceLeadStillSafeToday(t *testing.T) {
	got := NextOccurrence(clock.Wednesday, tod(12, 0), 60, wedMorning)
	assert.Equal(t, time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), got)
}

func TestNextOccurrenceOtherDays(t *testing.T) {
	// Tomorrow.
	got := NextOccurrence(clock.Thursday, tod(10, 0), 0, wedMorning)
	assert.Equal(t, time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC), got)

	// Wrapping around the week end.
	got = NextOccurrence(clock.Monday, tod(10, 0), 0, wedMorning)
	assert.Equal(t, time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC), got)
}

func TestNextOccurrenceTriggerAlwaysFuture(t *testing.T) {
	nows := []time.Time{
		wedMorning,
		time.Date(2025, 1, 5, 23, 59, 0, 0, time.UTC),
		time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
	}
	times := []clock.TimeOfDay{tod(0, 0), tod(9, 0), tod(23, 45)}
	leads := []int{0, 15, 60, 120, 1440}

	for _, now := range nows {
		for day := clock.Monday; day <= clock.Sunday; day++ {
			for _, at := range times {
				for _, lead := range leads {
					occ := NextOccurrence(day, at, lead, now)
					trigger := occ.Add(-time.Duration(lead) * time.Minute)
					assert.True(t, trigger.After(now),
						"day=%s at=%s lead=%d now=%s occ=%s", day, at, lead, now, occ)
					assert.Equal(t, day, clock.CurrentDay(occ))
				}
			}
		}
	}
}

func TestNextOccurrenceWeeklyPeriodicity(t *testing.T) {
	first := NextOccurrence(clock.Friday, tod(8, 30), 0, wedMorning)
	second := NextOccurrence(clock.Friday, tod(8, 30), 0, first.Add(time.Minute))
	assert.Equal(t, first.AddDate(0, 0, 7), second)
}

func TestRecurrenceValidate(t *testing.T) {
	ok := Recurrence{Kind: KindBiweekly, IntervalWeeks: 2, StartDate: wedMorning}
	require.NoError(t, ok.Validate())

	bad := []Recurrence{
		{Kind: KindWeekly, IntervalWeeks: 2, StartDate: wedMorning},
		{Kind: KindBiweekly, IntervalWeeks: 1, StartDate: wedMorning},
		{Kind: "monthly", IntervalWeeks: 4, StartDate: wedMorning},
		{Kind: KindWeekly, IntervalWeeks: 1},
		{Kind: KindWeekly, IntervalWeeks: 1, StartDate: wedMorning, EndDate: datePtr(2024, 12, 1)},
	}
	for i, rec := range bad {
		assert.ErrorIs(t, rec.Validate(), ErrRecurrence, "case %d", i)
	}
}

func TestExpandBiweeklySeries(t *testing.T) {
	// Monday series: Jan 1 2024 is a Monday.
	rec := Recurrence{
		Kind:          KindBiweekly,
		IntervalWeeks: 2,
		StartDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       datePtr(2024, 2, 15),
	}
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	got := Expand(rec, clock.Monday, tod(10, 0), 15, Horizon{}, now)
	want := []time.Time{
		time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 29, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 12, 10, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, want, got)
}

func TestExpandStaysInBoundsAndCadence(t *testing.T) {
	rec := Recurrence{
		Kind:          KindBiweekly,
		IntervalWeeks: 2,
		StartDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       datePtr(2024, 6, 30),
	}
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	got := Expand(rec, clock.Monday, tod(10, 0), 15, Horizon{MaxCount: 10}, now)
	require.NotEmpty(t, got)
	for i, occ := range got {
		assert.False(t, occ.Before(rec.StartDate), "occurrence %d before start", i)
		assert.False(t, occ.After(rec.EndDate.AddDate(0, 0, 1)), "occurrence %d after end", i)
		if i > 0 {
			assert.Equal(t, 14*24*time.Hour, occ.Sub(got[i-1]), "cadence at %d", i)
		}
	}
}

func TestExpandSkipsPassedTriggersKeepingPhase(t *testing.T) {
	rec := Recurrence{
		Kind:          KindBiweekly,
		IntervalWeeks: 2,
		StartDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	// Mid-series: Jan 16 is a Tuesday, between the Jan 15 and Jan 29
	// occurrences. The next emission must stay on the start-date parity.
	now := time.Date(2024, 1, 16, 12, 0, 0, 0, time.UTC)

	got := Expand(rec, clock.Monday, tod(10, 0), 15, Horizon{MaxCount: 2}, now)
	want := []time.Time{
		time.Date(2024, 1, 29, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 12, 10, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, want, got)
}

func TestExpandEmptyWhenSeriesOver(t *testing.T) {
	rec := Recurrence{
		Kind:          KindBiweekly,
		IntervalWeeks: 2,
		StartDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       datePtr(2024, 1, 31),
	}
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, Expand(rec, clock.Monday, tod(10, 0), 15, Horizon{}, now))
}

func TestExpandAlignsAnchorToLectureWeekday(t *testing.T) {
	// Series starts on a Wednesday but the lecture runs Fridays: the first
	// occurrence is the first Friday at or after the start date.
	rec := Recurrence{
		Kind:          KindBiweekly,
		IntervalWeeks: 2,
		StartDate:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	got := Expand(rec, clock.Friday, tod(9, 0), 15, Horizon{MaxCount: 2}, now)
	want := []time.Time{
		time.Date(2025, 1, 3, 9, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 17, 9, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, want, got)
}

func TestExpandHonorsMaxDate(t *testing.T) {
	rec := Recurrence{
		Kind:          KindBiweekly,
		IntervalWeeks: 2,
		StartDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	got := Expand(rec, clock.Monday, tod(10, 0), 15,
		Horizon{MaxCount: 10, MaxDate: time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)}, now)
	want := []time.Time{
		time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, want, got)
}

func TestExpandRejectsInvalidRecurrence(t *testing.T) {
	rec := Recurrence{Kind: "monthly", IntervalWeeks: 4, StartDate: wedMorning}
	assert.Nil(t, Expand(rec, clock.Monday, tod(10, 0), 15, Horizon{}, wedMorning))
}

func TestOccurrenceTrigger(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	occ := At(start, 15)
	assert.Equal(t, start, occ.Start)
	assert.Equal(t, start.Add(-15*time.Minute), occ.Trigger)
}
