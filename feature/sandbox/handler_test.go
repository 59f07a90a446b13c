package sandbox

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"asc-manager/core/appstore"
	"asc-manager/core/jsonapi"
	"asc-manager/core/ratelimit"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T, opts Options) (*Simulator, *fiber.App) {
	t.Helper()
	sim := New(opts)
	app, err := sim.App()
	require.NoError(t, err)
	return sim, app
}

func send(t *testing.T, app *fiber.App, method, path string, payload *jsonapi.Payload) (*http.Response, jsonapi.Document) {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, "http://sandbox.test"+path, &body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var doc jsonapi.Document
	if resp.StatusCode != fiber.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	}
	return resp, doc
}

func payload(t *testing.T, typ, id string, attrs any, rels map[string]jsonapi.Relationship) *jsonapi.Payload {
	t.Helper()
	r, err := jsonapi.NewResource(typ, id, attrs, rels)
	require.NoError(t, err)
	return &jsonapi.Payload{Data: r}
}

func offerPayload(t *testing.T, subID, territory, ppID, duration, mode, start, end string) *jsonapi.Payload {
	rels := map[string]jsonapi.Relationship{
		"subscription": jsonapi.NewToOne(appstore.TypeSubscriptions, subID),
		"territory":    jsonapi.NewToOne(appstore.TypeTerritories, territory),
	}
	if ppID != "" {
		rels["subscriptionPricePoint"] = jsonapi.NewToOne(appstore.TypePricePoints, ppID)
	}
	attrs := map[string]any{"duration": duration, "offerMode": mode, "numberOfPeriods": 1}
	if start != "" {
		attrs["startDate"] = start
	}
	if end != "" {
		attrs["endDate"] = end
	}
	return payload(t, appstore.TypeIntroductoryOffers, "", attrs, rels)
}

func TestLoader(t *testing.T) {
	feature := NewFeature(New(Options{}))

	assert.Equal(t, "sandbox", feature.Name())
	assert.True(t, feature.IsEnabled())
	assert.NoError(t, feature.Load(fiber.New()))
}

func TestFixture_Territories(t *testing.T) {
	codes := TerritoryCodes()
	assert.Len(t, codes, 175)

	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		assert.False(t, seen[code], "duplicate territory %s", code)
		seen[code] = true
	}
}

// TestHandleListTerritories_Paging tests that next links are absolute and
// keep the request's other parameters.
func TestHandleListTerritories_Paging(t *testing.T) {
	_, app := setupTestApp(t, Options{})

	resp, doc := send(t, app, "GET", "/v1/territories?limit=100", nil)
	require.Equal(t, 200, resp.StatusCode)
	records, err := doc.Resources()
	require.NoError(t, err)
	assert.Len(t, records, 100)
	assert.Equal(t, 175, doc.Meta.Paging.Total)

	next, err := url.Parse(doc.NextLink())
	require.NoError(t, err)
	assert.Equal(t, "sandbox.test", next.Host)
	assert.Equal(t, "/v1/territories", next.Path)
	assert.Equal(t, "100", next.Query().Get("limit"))
	assert.Equal(t, "100", next.Query().Get("offset"))

	resp, doc = send(t, app, "GET", next.RequestURI(), nil)
	require.Equal(t, 200, resp.StatusCode)
	records, err = doc.Resources()
	require.NoError(t, err)
	assert.Len(t, records, 75)
	assert.Empty(t, doc.NextLink())
}

func TestHandleListTerritories_LimitTooLarge(t *testing.T) {
	_, app := setupTestApp(t, Options{})

	resp, doc := send(t, app, "GET", "/v1/territories?limit=201", nil)
	assert.Equal(t, 400, resp.StatusCode)
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, "PARAMETER_ERROR.INVALID", doc.Errors[0].Code)
}

func TestHandleListPricePoints_Filter(t *testing.T) {
	_, app := setupTestApp(t, Options{Fixture: Fixture{Tiers: 5}})

	resp, doc := send(t, app, "GET", "/v1/subscriptions/sub-monthly/pricePoints?filter[territory]=GBR&include=territory", nil)
	require.Equal(t, 200, resp.StatusCode)
	records, err := doc.Resources()
	require.NoError(t, err)
	require.Len(t, records, 5)
	for _, r := range records {
		assert.Equal(t, "GBR", r.RelationshipID("territory"))
		inc, ok := r.RelatedOne("territory")
		require.True(t, ok)
		assert.Equal(t, "GBR", inc.ID)
	}
	assert.Equal(t, PricePointID("GBR", 1), records[0].ID)
}

// TestHandleEqualizations tests that the same tier is returned for every
// other territory except the unequalized ones.
func TestHandleEqualizations(t *testing.T) {
	_, app := setupTestApp(t, Options{Fixture: Fixture{Tiers: 3, Unequalized: []string{"RUS"}}})

	resp, doc := send(t, app, "GET", "/v1/subscriptionPricePoints/"+PricePointID("USA", 2)+"/equalizations?limit=200", nil)
	require.Equal(t, 200, resp.StatusCode)
	records, err := doc.Resources()
	require.NoError(t, err)
	assert.Len(t, records, 173)
	for _, r := range records {
		assert.Equal(t, PricePointID(r.RelationshipID("territory"), 2), r.ID)
		assert.NotEqual(t, "USA", r.RelationshipID("territory"))
		assert.NotEqual(t, "RUS", r.RelationshipID("territory"))
	}
}

// TestHandleUpdateSubscription_PeriodImmutable tests that a period can be
// set once, repeated, but never changed.
func TestHandleUpdateSubscription_PeriodImmutable(t *testing.T) {
	sim, app := setupTestApp(t, Options{})
	body := func(period string) *jsonapi.Payload {
		return payload(t, appstore.TypeSubscriptions, "sub-monthly", map[string]string{"subscriptionPeriod": period}, nil)
	}

	resp, _ := send(t, app, "PATCH", "/v1/subscriptions/sub-monthly", body("ONE_MONTH"))
	assert.Equal(t, 200, resp.StatusCode)

	resp, _ = send(t, app, "PATCH", "/v1/subscriptions/sub-monthly", body("ONE_MONTH"))
	assert.Equal(t, 200, resp.StatusCode)

	resp, doc := send(t, app, "PATCH", "/v1/subscriptions/sub-monthly", body("ONE_YEAR"))
	assert.Equal(t, 409, resp.StatusCode)
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, jsonapi.CodeAttributeInvalid, doc.Errors[0].Code)

	sub, ok := sim.Subscription("sub-monthly")
	require.True(t, ok)
	assert.Equal(t, appstore.PeriodOneMonth, sub.Period)
	assert.Len(t, sim.Mutations(), 1)
}

func TestHandleCreatePrice(t *testing.T) {
	sim, app := setupTestApp(t, Options{})
	body := payload(t, appstore.TypePrices, "", map[string]any{}, map[string]jsonapi.Relationship{
		"subscription":           jsonapi.NewToOne(appstore.TypeSubscriptions, "sub-monthly"),
		"subscriptionPricePoint": jsonapi.NewToOne(appstore.TypePricePoints, PricePointID("GBR", 10)),
	})

	t.Run("TerritoryUnavailable", func(t *testing.T) {
		resp, doc := send(t, app, "POST", "/v1/subscriptionPrices", body)
		assert.Equal(t, 409, resp.StatusCode)
		require.Len(t, doc.Errors, 1)
		assert.Equal(t, jsonapi.CodeStateError, doc.Errors[0].Code)
	})

	t.Run("Created", func(t *testing.T) {
		sim.SeedAvailability("sub-monthly", []string{"GBR"})
		sim.SeedPrice("sub-monthly", "GBR", 5)

		resp, doc := send(t, app, "POST", "/v1/subscriptionPrices", body)
		require.Equal(t, 201, resp.StatusCode)
		created, err := doc.Resource()
		require.NoError(t, err)
		assert.Equal(t, "GBR", created.RelationshipID("territory"))

		prices := sim.Prices("sub-monthly")
		require.Len(t, prices, 1)
		assert.Equal(t, PricePointID("GBR", 10), prices[0].PricePointID)
	})
}

func TestHandleCreateAvailability_Replaces(t *testing.T) {
	sim, app := setupTestApp(t, Options{})
	body := func(codes ...string) *jsonapi.Payload {
		return payload(t, appstore.TypeAvailabilities, "", map[string]bool{"availableInNewTerritories": false}, map[string]jsonapi.Relationship{
			"subscription":         jsonapi.NewToOne(appstore.TypeSubscriptions, "sub-yearly"),
			"availableTerritories": jsonapi.NewToMany(appstore.TypeTerritories, codes...),
		})
	}

	resp, _ := send(t, app, "GET", "/v1/subscriptions/sub-yearly/subscriptionAvailability", nil)
	assert.Equal(t, 404, resp.StatusCode)

	resp, _ = send(t, app, "POST", "/v1/subscriptionAvailabilities", body("USA", "GBR"))
	require.Equal(t, 201, resp.StatusCode)
	first, _ := sim.Availability("sub-yearly")

	resp, _ = send(t, app, "POST", "/v1/subscriptionAvailabilities", body("USA", "GBR", "DEU"))
	require.Equal(t, 201, resp.StatusCode)

	avail, ok := sim.Availability("sub-yearly")
	require.True(t, ok)
	assert.Equal(t, first.ID, avail.ID)
	assert.Equal(t, []string{"USA", "GBR", "DEU"}, avail.Territories)

	resp, _ = send(t, app, "POST", "/v1/subscriptionAvailabilities", body("USA", "ZZZ"))
	assert.Equal(t, 409, resp.StatusCode)
}

func TestHandleCreateOffer(t *testing.T) {
	sim, app := setupTestApp(t, Options{})
	sim.SeedPeriod("sub-monthly", appstore.PeriodOneMonth)
	sim.SeedAvailability("sub-monthly", []string{"USA", "GBR"})
	sim.SeedOffer(appstore.IntroductoryOffer{
		SubscriptionID: "sub-monthly", Territory: "GBR", Mode: appstore.OfferModeFreeTrial,
		Duration: appstore.DurationOneWeek, NumberOfPeriods: 1, StartDate: "2026-01-01", EndDate: "2026-01-31",
	})

	tests := []struct {
		name     string
		body     *jsonapi.Payload
		wantCode int
		wantErr  string
	}{
		{
			name:     "PeriodUnset",
			body:     offerPayload(t, "sub-yearly", "USA", "", "ONE_WEEK", "FREE_TRIAL", "", ""),
			wantCode: 409,
			wantErr:  jsonapi.CodeRelationshipInvalid,
		},
		{
			name:     "IncompatibleDuration",
			body:     offerPayload(t, "sub-monthly", "USA", "", "ONE_YEAR", "FREE_TRIAL", "", ""),
			wantCode: 409,
			wantErr:  jsonapi.CodeAttributeInvalid,
		},
		{
			name:     "PaidWithoutPricePoint",
			body:     offerPayload(t, "sub-monthly", "USA", "", "ONE_MONTH", "PAY_UP_FRONT", "", ""),
			wantCode: 409,
			wantErr:  jsonapi.CodeRelationshipInvalid,
		},
		{
			name:     "TerritoryUnavailable",
			body:     offerPayload(t, "sub-monthly", "FRA", "", "ONE_WEEK", "FREE_TRIAL", "", ""),
			wantCode: 409,
			wantErr:  jsonapi.CodeStateError,
		},
		{
			name:     "Overlapping",
			body:     offerPayload(t, "sub-monthly", "GBR", "", "ONE_WEEK", "FREE_TRIAL", "2026-01-15", ""),
			wantCode: 409,
			wantErr:  jsonapi.CodeStateError,
		},
		{
			name:     "AfterExisting",
			body:     offerPayload(t, "sub-monthly", "GBR", "", "ONE_WEEK", "FREE_TRIAL", "2026-02-01", ""),
			wantCode: 201,
		},
		{
			name:     "PaidInUSA",
			body:     offerPayload(t, "sub-monthly", "USA", PricePointID("USA", 1), "ONE_MONTH", "PAY_AS_YOU_GO", "", ""),
			wantCode: 201,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, doc := send(t, app, "POST", "/v1/subscriptionIntroductoryOffers", tt.body)
			assert.Equal(t, tt.wantCode, resp.StatusCode)
			if tt.wantErr != "" {
				require.Len(t, doc.Errors, 1)
				assert.Equal(t, tt.wantErr, doc.Errors[0].Code)
			}
		})
	}

	assert.Len(t, sim.Offers("sub-monthly"), 3)
}

func TestHandleDeleteOffer(t *testing.T) {
	sim, app := setupTestApp(t, Options{})
	offer := sim.SeedOffer(appstore.IntroductoryOffer{SubscriptionID: "sub-monthly", Territory: "USA", Mode: appstore.OfferModeFreeTrial})

	resp, _ := send(t, app, "DELETE", "/v1/subscriptionIntroductoryOffers/"+offer.ID, nil)
	assert.Equal(t, 204, resp.StatusCode)
	assert.Empty(t, sim.Offers("sub-monthly"))

	resp, _ = send(t, app, "DELETE", "/v1/subscriptionIntroductoryOffers/"+offer.ID, nil)
	assert.Equal(t, 404, resp.StatusCode)
}

// TestThrottle tests that the budget answers 429 with a Retry-After until
// the oldest request leaves the window.
func TestThrottle(t *testing.T) {
	clock := ratelimit.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	sim, app := setupTestApp(t, Options{Budget: 2, Window: time.Minute, Clock: clock})

	for range 2 {
		resp, _ := send(t, app, "GET", "/v1/territories", nil)
		require.Equal(t, 200, resp.StatusCode)
		clock.Advance(10 * time.Second)
	}

	resp, doc := send(t, app, "GET", "/v1/territories", nil)
	assert.Equal(t, 429, resp.StatusCode)
	assert.Equal(t, "40", resp.Header.Get("Retry-After"))
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, jsonapi.CodeRateLimitExceeded, doc.Errors[0].Code)

	clock.Advance(40 * time.Second)
	resp, _ = send(t, app, "GET", "/v1/territories", nil)
	assert.Equal(t, 200, resp.StatusCode)

	accepted, rejected := sim.Accepted()
	assert.Len(t, accepted, 3)
	assert.Equal(t, 1, rejected)
}

func TestFault_FiresOnce(t *testing.T) {
	sim, app := setupTestApp(t, Options{})
	sim.SeedAvailability("sub-monthly", []string{"USA"})
	sim.AddFault(Fault{Method: "POST", Type: appstore.TypePrices, Territory: "USA", Status: 500, Code: "UNEXPECTED_ERROR", Times: 1})

	body := payload(t, appstore.TypePrices, "", nil, map[string]jsonapi.Relationship{
		"subscription":           jsonapi.NewToOne(appstore.TypeSubscriptions, "sub-monthly"),
		"subscriptionPricePoint": jsonapi.NewToOne(appstore.TypePricePoints, PricePointID("USA", 3)),
	})

	resp, _ := send(t, app, "POST", "/v1/subscriptionPrices", body)
	assert.Equal(t, 500, resp.StatusCode)
	resp, _ = send(t, app, "POST", "/v1/subscriptionPrices", body)
	assert.Equal(t, 201, resp.StatusCode)

	requests := sim.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, 500, requests[0].Status)
	assert.Equal(t, "/v1/subscriptionPrices", requests[1].Path)
}

func TestAuth_Token(t *testing.T) {
	_, app := setupTestApp(t, Options{Token: "secret"})

	resp, _ := send(t, app, "GET", "/v1/territories", nil)
	assert.Equal(t, 401, resp.StatusCode)

	req := httptest.NewRequest("GET", "/v1/territories", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
