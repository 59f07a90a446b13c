package appstore

import "slices"

// compatibility lists the offer durations allowed for each period.
var compatibility = map[Period][]Duration{
	PeriodOneWeek: {DurationThreeDays},
	PeriodOneMonth: {
		DurationOneWeek, DurationTwoWeeks,
		DurationOneMonth, DurationTwoMonths, DurationThreeMonths,
	},
	PeriodTwoMonths: {
		DurationOneMonth, DurationTwoMonths, DurationThreeMonths, DurationSixMonths,
	},
	PeriodThreeMonths: {
		DurationOneMonth, DurationTwoMonths, DurationThreeMonths, DurationSixMonths,
	},
	PeriodSixMonths: {
		DurationOneMonth, DurationThreeMonths, DurationSixMonths,
	},
	PeriodOneYear: {
		DurationOneWeek,
		DurationOneMonth, DurationTwoMonths, DurationThreeMonths, DurationSixMonths,
		DurationOneYear,
	},
}

// Compatible reports whether an offer of duration d may be attached to a
// subscription billed every p.
func Compatible(p Period, d Duration) bool {
	return slices.Contains(compatibility[p], d)
}

// AllowedDurations returns the durations valid for p.
func AllowedDurations(p Period) []Duration {
	return slices.Clone(compatibility[p])
}
