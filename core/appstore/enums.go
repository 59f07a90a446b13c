package appstore

import (
	"fmt"
	"strings"
)

// Period is a subscription's billing period.
type Period string

const (
	PeriodOneWeek     Period = "ONE_WEEK"
	PeriodOneMonth    Period = "ONE_MONTH"
	PeriodTwoMonths   Period = "TWO_MONTHS"
	PeriodThreeMonths Period = "THREE_MONTHS"
	PeriodSixMonths   Period = "SIX_MONTHS"
	PeriodOneYear     Period = "ONE_YEAR"
)

var periodAliases = map[string]Period{
	"1w": PeriodOneWeek,
	"1m": PeriodOneMonth,
	"2m": PeriodTwoMonths,
	"3m": PeriodThreeMonths,
	"6m": PeriodSixMonths,
	"1y": PeriodOneYear,
}

// ParsePeriod accepts the short form (1w, 1m, 2m, 3m, 6m, 1y) or the API name.
func ParsePeriod(s string) (Period, error) {
	key := strings.TrimSpace(s)
	if p, ok := periodAliases[strings.ToLower(key)]; ok {
		return p, nil
	}
	p := Period(strings.ToUpper(key))
	if _, ok := compatibility[p]; ok {
		return p, nil
	}
	return "", fmt.Errorf("invalid period %q (use 1w, 1m, 2m, 3m, 6m or 1y)", s)
}

// Duration is the length of an introductory offer.
type Duration string

const (
	DurationThreeDays   Duration = "THREE_DAYS"
	DurationOneWeek     Duration = "ONE_WEEK"
	DurationTwoWeeks    Duration = "TWO_WEEKS"
	DurationOneMonth    Duration = "ONE_MONTH"
	DurationTwoMonths   Duration = "TWO_MONTHS"
	DurationThreeMonths Duration = "THREE_MONTHS"
	DurationSixMonths   Duration = "SIX_MONTHS"
	DurationOneYear     Duration = "ONE_YEAR"
)

var durationAliases = map[string]Duration{
	"3d": DurationThreeDays,
	"1w": DurationOneWeek,
	"2w": DurationTwoWeeks,
	"1m": DurationOneMonth,
	"2m": DurationTwoMonths,
	"3m": DurationThreeMonths,
	"6m": DurationSixMonths,
	"1y": DurationOneYear,
}

// ParseDuration accepts the short form (3d, 1w, 2w, 1m, 2m, 3m, 6m, 1y) or
// the API name.
func ParseDuration(s string) (Duration, error) {
	key := strings.TrimSpace(s)
	if d, ok := durationAliases[strings.ToLower(key)]; ok {
		return d, nil
	}
	d := Duration(strings.ToUpper(key))
	for _, known := range durationAliases {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("invalid duration %q (use 3d, 1w, 2w, 1m, 2m, 3m, 6m or 1y)", s)
}

// OfferMode is how an introductory offer is charged.
type OfferMode string

const (
	OfferModeFreeTrial  OfferMode = "FREE_TRIAL"
	OfferModePayAsYouGo OfferMode = "PAY_AS_YOU_GO"
	OfferModePayUpFront OfferMode = "PAY_UP_FRONT"
)

// ParseOfferMode accepts free-trial, pay-as-you-go, pay-up-front or the API name.
func ParseOfferMode(s string) (OfferMode, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	switch OfferMode(normalized) {
	case OfferModeFreeTrial, OfferModePayAsYouGo, OfferModePayUpFront:
		return OfferMode(normalized), nil
	}
	return "", fmt.Errorf("invalid offer type %q (use free-trial, pay-as-you-go or pay-up-front)", s)
}

// RequiresPricePoint reports whether the mode charges the customer and so
// needs a price point per territory.
func (m OfferMode) RequiresPricePoint() bool {
	return m == OfferModePayAsYouGo || m == OfferModePayUpFront
}

// State is a subscription's review state.
type State string

const (
	StateMissingMetadata      State = "MISSING_METADATA"
	StateReadyToSubmit        State = "READY_TO_SUBMIT"
	StateWaitingForReview     State = "WAITING_FOR_REVIEW"
	StateInReview             State = "IN_REVIEW"
	StateDeveloperActionNeed  State = "DEVELOPER_ACTION_NEEDED"
	StateRejected             State = "REJECTED"
	StateApproved             State = "APPROVED"
	StateDeveloperRemovedSale State = "DEVELOPER_REMOVED_FROM_SALE"
	StateRemovedFromSale      State = "REMOVED_FROM_SALE"
)
