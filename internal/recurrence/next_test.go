package recurrence

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func datep(y int, m time.Month, d int) *time.Time {
	t := Date(y, m, d)
	return &t
}

func TestMonthlyClampsToMonthEnd(t *testing.T) {
	r := Rule{Frequency: Monthly, Interval: 1, DayOfMonth: intp(31), StartDate: Date(2024, time.January, 31)}

	first, ok := First(r)
	require.True(t, ok)
	assert.Equal(t, Date(2024, time.January, 31), first)

	want := []time.Time{
		Date(2024, time.February, 29),
		Date(2024, time.March, 31),
		Date(2024, time.April, 30),
		Date(2024, time.May, 31),
	}
	d := first
	for _, w := range want {
		d, ok = Next(r, d)
		require.True(t, ok)
		assert.Equal(t, w, d)
	}
}

func TestMonthlyClampNonLeapYear(t *testing.T) {
	r := Rule{Frequency: Monthly, Interval: 1, DayOfMonth: intp(31), StartDate: Date(2025, time.January, 31)}

	d, ok := Next(r, Date(2025, time.January, 31))
	require.True(t, ok)
	assert.Equal(t, Date(2025, time.February, 28), d)

	d, ok = Next(r, d)
	require.True(t, ok)
	assert.Equal(t, Date(2025, time.March, 31), d)
}

func TestWeeklyStartOnMatchingWeekday(t *testing.T) {
	start := Date(2026, time.October, 20) // Tuesday
	r := Rule{Frequency: Weekly, Interval: 2, DayOfWeek: intp(2), StartDate: start}

	first, ok := First(r)
	require.True(t, ok)
	assert.Equal(t, start, first)

	seeded, ok := Next(r, start.AddDate(0, 0, -1))
	require.True(t, ok)
	assert.Equal(t, start, seeded, "seeding with the day before start yields start")

	second, ok := Next(r, first)
	require.True(t, ok)
	assert.Equal(t, start.AddDate(0, 0, 14), second)
}

func TestWeeklyStartOnOtherWeekday(t *testing.T) {
	start := Date(2026, time.October, 21) // Wednesday
	r := Rule{Frequency: Biweekly, Interval: 1, DayOfWeek: intp(2), StartDate: start}

	first, ok := First(r)
	require.True(t, ok)
	assert.Equal(t, Date(2026, time.October, 27), first)

	second, ok := Next(r, first)
	require.True(t, ok)
	assert.Equal(t, Date(2026, time.November, 10), second)
}

func TestDailyInterval(t *testing.T) {
	r := Rule{Frequency: Daily, Interval: 3, StartDate: Date(2024, time.February, 27)}

	d, ok := Next(r, Date(2024, time.February, 27))
	require.True(t, ok)
	assert.Equal(t, Date(2024, time.March, 1), d)
}

func TestQuarterlyAndYearly(t *testing.T) {
	q := Rule{Frequency: Quarterly, Interval: 1, DayOfMonth: intp(30), StartDate: Date(2024, time.November, 30)}
	d, ok := Next(q, Date(2024, time.November, 30))
	require.True(t, ok)
	assert.Equal(t, Date(2025, time.February, 28), d)

	y := Rule{Frequency: Yearly, Interval: 1, DayOfMonth: intp(29), StartDate: Date(2024, time.February, 29)}
	d, ok = Next(y, Date(2024, time.February, 29))
	require.True(t, ok)
	assert.Equal(t, Date(2025, time.February, 28), d)

	d, ok = Next(y, Date(2027, time.February, 28))
	require.True(t, ok)
	assert.Equal(t, Date(2028, time.February, 29), d)
}

func TestNextRespectsEndDate(t *testing.T) {
	r := Rule{
		Frequency: Weekly, Interval: 1, DayOfWeek: intp(2),
		StartDate: Date(2026, time.October, 20),
		EndDate:   datep(2026, time.November, 2),
	}

	d, ok := Next(r, Date(2026, time.October, 20))
	require.True(t, ok)
	assert.Equal(t, Date(2026, time.October, 27), d)

	_, ok = Next(r, d)
	assert.False(t, ok)
}

func TestEndDateIsInclusive(t *testing.T) {
	r := Rule{Frequency: Daily, Interval: 1, StartDate: Date(2026, time.March, 1), EndDate: datep(2026, time.March, 2)}

	d, ok := Next(r, Date(2026, time.March, 1))
	require.True(t, ok)
	assert.Equal(t, Date(2026, time.March, 2), d)
}

func TestFirstPastEndDate(t *testing.T) {
	r := Rule{
		Frequency: Monthly, Interval: 1, DayOfMonth: intp(5),
		StartDate: Date(2026, time.March, 10),
		EndDate:   datep(2026, time.March, 31),
	}
	_, ok := First(r)
	assert.False(t, ok)
}

func TestNextIsStrictlyLaterAndAnchored(t *testing.T) {
	rules := []Rule{
		{Frequency: Daily, Interval: 1},
		{Frequency: Daily, Interval: 5},
		{Frequency: Weekly, Interval: 1, DayOfWeek: intp(0)},
		{Frequency: Weekly, Interval: 3, DayOfWeek: intp(6)},
		{Frequency: Biweekly, Interval: 1, DayOfWeek: intp(4)},
		{Frequency: Monthly, Interval: 1, DayOfMonth: intp(31)},
		{Frequency: Monthly, Interval: 2, DayOfMonth: intp(29)},
		{Frequency: Quarterly, Interval: 1, DayOfMonth: intp(30)},
		{Frequency: Yearly, Interval: 1, DayOfMonth: intp(31)},
	}

	base := Date(2023, time.December, 1)
	for _, r := range rules {
		r.StartDate = base
		t.Run(fmt.Sprintf("%s_x%d", r.Frequency, r.Interval), func(t *testing.T) {
			for i := 0; i < 500; i++ {
				after := base.AddDate(0, 0, i)
				n, ok := Next(r, after)
				require.True(t, ok)
				require.True(t, n.After(after), "next %s must be after %s", n, after)
				require.True(t, r.aligned(n), "next %s is not anchored", n)
			}
		})
	}
}

func TestUpcomingKeepsPhase(t *testing.T) {
	r := Rule{Frequency: Weekly, Interval: 2, DayOfWeek: intp(2), StartDate: Date(2026, time.January, 6)}

	d, ok := Upcoming(r, Date(2026, time.January, 6), Date(2026, time.January, 21))
	require.True(t, ok)
	assert.Equal(t, Date(2026, time.February, 3), d)

	d, ok = Upcoming(r, Date(2026, time.January, 6), Date(2026, time.January, 6))
	require.True(t, ok)
	assert.Equal(t, Date(2026, time.January, 6), d)
}

func TestLatestOnOrBefore(t *testing.T) {
	r := Rule{Frequency: Daily, Interval: 2, StartDate: Date(2026, time.May, 1)}

	d, ok := LatestOnOrBefore(r, Date(2026, time.May, 1), Date(2026, time.May, 8))
	require.True(t, ok)
	assert.Equal(t, Date(2026, time.May, 7), d)

	_, ok = LatestOnOrBefore(r, Date(2026, time.May, 9), Date(2026, time.May, 8))
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	start := Date(2026, time.January, 1)
	tests := []struct {
		name  string
		rule  Rule
		field string
	}{
		{"unknown frequency", Rule{Frequency: "hourly", Interval: 1, StartDate: start}, "frequency"},
		{"zero interval", Rule{Frequency: Daily, Interval: 0, StartDate: start}, "interval"},
		{"weekly without weekday", Rule{Frequency: Weekly, Interval: 1, StartDate: start}, "day_of_week"},
		{"weekday out of range", Rule{Frequency: Biweekly, Interval: 1, DayOfWeek: intp(7), StartDate: start}, "day_of_week"},
		{"daily with weekday", Rule{Frequency: Daily, Interval: 1, DayOfWeek: intp(1), StartDate: start}, "day_of_week"},
		{"monthly without day", Rule{Frequency: Monthly, Interval: 1, StartDate: start}, "day_of_month"},
		{"monthly day out of range", Rule{Frequency: Monthly, Interval: 1, DayOfMonth: intp(32), StartDate: start}, "day_of_month"},
		{"weekly with day of month", Rule{Frequency: Weekly, Interval: 1, DayOfWeek: intp(1), DayOfMonth: intp(1), StartDate: start}, "day_of_month"},
		{"missing start", Rule{Frequency: Daily, Interval: 1}, "start_date"},
		{"end before start", Rule{Frequency: Daily, Interval: 1, StartDate: start, EndDate: datep(2025, time.December, 31)}, "end_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			var ruleErr *RuleError
			require.ErrorAs(t, err, &ruleErr)
			assert.Equal(t, tt.field, ruleErr.Field)
		})
	}

	ok := Rule{Frequency: Quarterly, Interval: 1, DayOfMonth: intp(15), StartDate: start}
	assert.NoError(t, ok.Validate())
}

func TestToday(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*3600)
	now := time.Date(2026, time.October, 19, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, Date(2026, time.October, 18), Today(now, loc))
	assert.Equal(t, Date(2026, time.October, 19), Today(now, nil))
}
