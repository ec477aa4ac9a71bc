package routing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoute(t *testing.T, source, destination string, points [][2]string) *Route {
	t.Helper()
	route, err := RouteFromData(RouteData{
		SourceLedger:      source,
		DestinationLedger: destination,
		SourceAccount:     source + "mark",
		Points:            points,
	})
	require.NoError(t, err)
	return route
}

func TestRouteFromData(t *testing.T) {
	tests := []struct {
		name    string
		data    RouteData
		wantErr bool
	}{
		{
			name: "endpoints only",
			data: RouteData{
				SourceLedger:      "a.",
				DestinationLedger: "b.",
				Points:            [][2]string{{"0", "0"}, {"100", "100"}},
			},
		},
		{
			name: "hops only",
			data: RouteData{
				Hops:   []string{"a.", "b.", "c."},
				Points: [][2]string{{"0", "0"}, {"100", "100"}},
			},
		},
		{
			name:    "missing ledgers",
			data:    RouteData{Points: [][2]string{{"0", "0"}}},
			wantErr: true,
		},
		{
			name: "non-monotone points",
			data: RouteData{
				SourceLedger:      "a.",
				DestinationLedger: "b.",
				Points:            [][2]string{{"0", "10"}, {"100", "5"}},
			},
			wantErr: true,
		},
		{
			name: "bad decimal string",
			data: RouteData{
				SourceLedger:      "a.",
				DestinationLedger: "b.",
				Points:            [][2]string{{"zero", "0"}},
			},
			wantErr: true,
		},
		{
			name: "negative min message window",
			data: RouteData{
				SourceLedger:      "a.",
				DestinationLedger: "b.",
				MinMessageWindow:  -1,
				Points:            [][2]string{{"0", "0"}},
			},
			wantErr: true,
		},
		{
			name: "hops conflicting with endpoints",
			data: RouteData{
				SourceLedger:      "a.",
				DestinationLedger: "b.",
				Hops:              []string{"c.", "b."},
				Points:            [][2]string{{"0", "0"}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route, err := RouteFromData(tt.data)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRouteData)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a.", route.SourceLedger)
			assert.Equal(t, len(route.Hops)-1, route.PathLength)
		})
	}

	t.Run("hops fill endpoints and next ledger", func(t *testing.T) {
		route, err := RouteFromData(RouteData{
			Hops:   []string{"a.", "b.", "c."},
			Points: [][2]string{{"0", "0"}, {"10", "10"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "a.", route.SourceLedger)
		assert.Equal(t, "b.", route.NextLedger)
		assert.Equal(t, "c.", route.DestinationLedger)
		assert.Equal(t, "c.", route.TargetPrefix)
		assert.Equal(t, 2, route.PathLength)
	})

	t.Run("target prefix override", func(t *testing.T) {
		route, err := RouteFromData(RouteData{
			SourceLedger:      "a.",
			DestinationLedger: "b.east.",
			TargetPrefix:      "b.",
			Points:            [][2]string{{"0", "0"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "b.", route.TargetPrefix)
	})
}

func TestRouteToDataRoundTrip(t *testing.T) {
	expires := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	route, err := RouteFromData(RouteData{
		SourceLedger:      "a.",
		DestinationLedger: "b.",
		SourceAccount:     "a.mark",
		MinMessageWindow:  2,
		ExpiresAt:         expires.Format(time.RFC3339),
		Points:            [][2]string{{"0", "0"}, {"100", "200"}},
	})
	require.NoError(t, err)

	data := route.ToData()
	assert.Equal(t, "a.", data.SourceLedger)
	assert.Equal(t, "b.", data.DestinationLedger)
	assert.Equal(t, [][2]string{{"0", "0"}, {"100", "200"}}, data.Points)
	assert.Equal(t, expires.Format(time.RFC3339), data.ExpiresAt)
	assert.Empty(t, data.TargetPrefix, "default target prefix is elided")

	parsed, err := RouteFromData(data)
	require.NoError(t, err)
	assert.True(t, parsed.Curve.Equal(route.Curve))
	assert.Equal(t, route.Hops, parsed.Hops)
}

func TestRouteJoin(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	head := testRoute(t, "a.", "b.", [][2]string{{"0", "0"}, {"200", "100"}})
	head.MinMessageWindow = 1
	tail := testRoute(t, "b.", "c.", [][2]string{{"0", "0"}, {"50", "60"}})
	tail.MinMessageWindow = 2

	t.Run("mismatched endpoints", func(t *testing.T) {
		wrong := testRoute(t, "c.", "d.", [][2]string{{"0", "0"}})
		assert.Nil(t, head.Join(wrong, 0, 0, now))
	})

	t.Run("joined metadata", func(t *testing.T) {
		joined := head.Join(tail, 45*time.Second, 7, now)
		require.NotNil(t, joined)
		assert.Equal(t, "a.", joined.SourceLedger)
		assert.Equal(t, "b.", joined.NextLedger)
		assert.Equal(t, "c.", joined.DestinationLedger)
		assert.Equal(t, []string{"a.", "b.", "c."}, joined.Hops)
		assert.Equal(t, 2, joined.PathLength)
		assert.Equal(t, float64(3), joined.MinMessageWindow)
		assert.Equal(t, 7, joined.AddedDuringEpoch)
		assert.False(t, joined.IsLocal)
		require.NotNil(t, joined.ExpiresAt)
		assert.Equal(t, now.Add(45*time.Second), *joined.ExpiresAt)

		// head: 100→50, tail: 50→60
		assert.True(t, joined.AmountAt(decimal.NewFromInt(100)).Equal(decimal.NewFromInt(60)))
	})

	t.Run("zero expiry makes a static route", func(t *testing.T) {
		joined := head.Join(tail, 0, 0, now)
		require.NotNil(t, joined)
		assert.Nil(t, joined.ExpiresAt)
	})

	t.Run("empty curve yields no route", func(t *testing.T) {
		dry := &Route{SourceLedger: "b.", DestinationLedger: "c.", TargetPrefix: "c.", Hops: []string{"b.", "c."}, PathLength: 1}
		assert.Nil(t, head.Join(dry, 0, 0, now))
	})
}

func TestRouteCombine(t *testing.T) {
	mark := testRoute(t, "a.", "b.", [][2]string{{"0", "0"}, {"100", "100"}})
	mary := testRoute(t, "a.", "b.", [][2]string{{"0", "0"}, {"50", "60"}})
	mary.SourceAccount = "a.mary"
	mary.MinMessageWindow = 5

	combined := mark.Combine(mary)
	require.NotNil(t, combined)

	// The combined curve dominates both inputs.
	for _, x := range []int64{0, 25, 50, 75, 100} {
		xv := decimal.NewFromInt(x)
		got := combined.AmountAt(xv)
		assert.True(t, got.Cmp(mark.AmountAt(xv)) >= 0)
		assert.True(t, got.Cmp(mary.AmountAt(xv)) >= 0)
	}

	assert.Equal(t, float64(5), combined.MinMessageWindow, "combined window is the max of both sides")
}

func TestRouteExpiry(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	t.Run("static routes never expire", func(t *testing.T) {
		route := testRoute(t, "a.", "b.", [][2]string{{"0", "0"}})
		assert.False(t, route.IsExpired(now.Add(1000*time.Hour)))
		route.BumpExpiration(now, time.Second)
		assert.Nil(t, route.ExpiresAt)
	})

	t.Run("expiry boundary is inclusive", func(t *testing.T) {
		route := testRoute(t, "a.", "b.", [][2]string{{"0", "0"}})
		at := now.Add(30 * time.Second)
		route.ExpiresAt = &at
		assert.False(t, route.IsExpired(now))
		assert.True(t, route.IsExpired(at))
		assert.True(t, route.IsExpired(at.Add(time.Second)))
	})

	t.Run("bump refreshes the hold-down", func(t *testing.T) {
		route := testRoute(t, "a.", "b.", [][2]string{{"0", "0"}})
		at := now.Add(time.Second)
		route.ExpiresAt = &at
		route.BumpExpiration(now, time.Minute)
		require.NotNil(t, route.ExpiresAt)
		assert.Equal(t, now.Add(time.Minute), *route.ExpiresAt)
	})
}
