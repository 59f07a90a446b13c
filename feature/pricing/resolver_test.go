package pricing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"asc-manager/core/appstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) FindPricePoint(ctx context.Context, subscriptionID, territory string, price decimal.Decimal) (appstore.PricePoint, error) {
	args := m.Called(ctx, subscriptionID, territory, price.String())
	return args.Get(0).(appstore.PricePoint), args.Error(1)
}

func (m *mockLookup) Equalizations(ctx context.Context, pricePointID string) ([]appstore.PricePoint, error) {
	args := m.Called(ctx, pricePointID)
	points, _ := args.Get(0).([]appstore.PricePoint)
	return points, args.Error(1)
}

var (
	usa = appstore.PricePoint{ID: "pp-usa-10", Territory: "USA", CustomerPrice: decimal.RequireFromString("9.99")}
	gbr = appstore.PricePoint{ID: "pp-gbr-10", Territory: "GBR", CustomerPrice: decimal.RequireFromString("8.99")}
	deu = appstore.PricePoint{ID: "pp-deu-10", Territory: "DEU", CustomerPrice: decimal.RequireFromString("9.49")}
)

func TestResolver_Resolve(t *testing.T) {
	lookup := new(mockLookup)
	lookup.On("FindPricePoint", mock.Anything, "sub-1", "USA", "9.99").Return(usa, nil).Once()
	lookup.On("Equalizations", mock.Anything, "pp-usa-10").Return([]appstore.PricePoint{gbr, deu}, nil).Once()

	r := NewResolver(Config{}, lookup, nil)
	res, err := r.Resolve(context.Background(), "sub-1", decimal.RequireFromString("9.99"), []string{"USA", "GBR", "RUS", "DEU"})
	require.NoError(t, err)

	assert.Equal(t, usa, res.Reference)
	assert.Equal(t, "pp-usa-10", res.Points["USA"].ID)
	assert.Equal(t, "pp-gbr-10", res.Points["GBR"].ID)
	assert.Equal(t, "pp-deu-10", res.Points["DEU"].ID)
	assert.Equal(t, []string{"RUS"}, res.Unresolved)
	lookup.AssertExpectations(t)
}

// TestResolver_CachesAcrossSubscriptions tests that the same reference price
// point is equalized once per run, whichever subscription asks.
func TestResolver_CachesAcrossSubscriptions(t *testing.T) {
	lookup := new(mockLookup)
	lookup.On("FindPricePoint", mock.Anything, mock.Anything, "USA", "9.99").Return(usa, nil).Twice()
	lookup.On("Equalizations", mock.Anything, "pp-usa-10").Return([]appstore.PricePoint{gbr}, nil).Once()

	r := NewResolver(Config{ReferenceTerritory: "USA"}, lookup, nil)
	ctx := context.Background()
	price := decimal.RequireFromString("9.99")

	for _, sub := range []string{"sub-1", "sub-2", "sub-1"} {
		res, err := r.Resolve(ctx, sub, price, []string{"GBR"})
		require.NoError(t, err)
		assert.Equal(t, "pp-gbr-10", res.Points["GBR"].ID)
	}

	hits, misses := r.CacheStats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
	lookup.AssertExpectations(t)
}

// TestResolver_ConcurrentLookupsShareOneCall tests that concurrent misses for
// the same reference price point collapse into one remote call.
func TestResolver_ConcurrentLookupsShareOneCall(t *testing.T) {
	lookup := new(mockLookup)
	lookup.On("FindPricePoint", mock.Anything, mock.Anything, "USA", "9.99").Return(usa, nil)
	lookup.On("Equalizations", mock.Anything, "pp-usa-10").
		After(20*time.Millisecond).
		Return([]appstore.PricePoint{gbr, deu}, nil).Once()

	r := NewResolver(Config{}, lookup, nil)
	price := decimal.RequireFromString("9.99")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Resolve(context.Background(), "sub-1", price, []string{"DEU"})
			assert.NoError(t, err)
			assert.Equal(t, "pp-deu-10", res.Points["DEU"].ID)
		}()
	}
	wg.Wait()

	lookup.AssertNumberOfCalls(t, "Equalizations", 1)
}

// TestResolver_ErrorsAreNotCached tests that a failed lookup is retried by
// the next caller.
func TestResolver_ErrorsAreNotCached(t *testing.T) {
	lookup := new(mockLookup)
	lookup.On("FindPricePoint", mock.Anything, "sub-1", "USA", "9.99").Return(usa, nil)
	lookup.On("Equalizations", mock.Anything, "pp-usa-10").Return(nil, errors.New("boom")).Once()
	lookup.On("Equalizations", mock.Anything, "pp-usa-10").Return([]appstore.PricePoint{gbr}, nil).Once()

	r := NewResolver(Config{}, lookup, nil)
	price := decimal.RequireFromString("9.99")

	_, err := r.Resolve(context.Background(), "sub-1", price, []string{"GBR"})
	require.Error(t, err)

	res, err := r.Resolve(context.Background(), "sub-1", price, []string{"GBR"})
	require.NoError(t, err)
	assert.Contains(t, res.Points, "GBR")
}

func TestResolver_ReferenceNotFound(t *testing.T) {
	lookup := new(mockLookup)
	lookup.On("FindPricePoint", mock.Anything, "sub-1", "USA", "9.95").Return(appstore.PricePoint{}, appstore.ErrNotFound)

	r := NewResolver(Config{}, lookup, nil)
	_, err := r.Resolve(context.Background(), "sub-1", decimal.RequireFromString("9.95"), []string{"GBR"})
	assert.ErrorIs(t, err, appstore.ErrNotFound)
	lookup.AssertNotCalled(t, "Equalizations", mock.Anything, mock.Anything)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		policy  string
		wantErr bool
	}{
		{"", false},
		{PolicySkip, false},
		{PolicyFail, false},
		{"ignore", true},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			err := Config{UnresolvedPolicy: tt.policy}.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.True(t, Config{UnresolvedPolicy: PolicyFail}.FailUnresolved())
}
