package routing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mverdi/goILRouter/internal/core/liquidity"
)

// ErrInvalidRouteData is returned when announced route data is missing
// required fields or carries a non-monotone curve.
var ErrInvalidRouteData = errors.New("invalid route data")

// Route is a liquidity curve plus the hop metadata needed to select and
// rebroadcast it. Routes are immutable once stored; transformations return
// new routes.
type Route struct {
	Curve liquidity.Curve

	// Hops lists the ledgers traversed, source first. May be empty for
	// announcements that only carry endpoints.
	Hops []string

	SourceLedger      string
	NextLedger        string
	DestinationLedger string

	SourceAccount      string
	DestinationAccount string

	// MinMessageWindow is the sum of per-hop message windows, in seconds.
	MinMessageWindow float64

	// ExpiresAt is nil for static routes, which never expire.
	ExpiresAt *time.Time

	// AddedDuringEpoch records the composer epoch at insertion.
	AddedDuringEpoch int

	// IsLocal marks a locally-configured ledger pair.
	IsLocal bool

	// TargetPrefix is the destination-matching prefix; it defaults to
	// DestinationLedger unless the announcement overrides it.
	TargetPrefix string

	// PathLength is len(Hops)-1 when hops are known, otherwise carried
	// through joins as a plain counter.
	PathLength int
}

// RouteData is the canonical external form of a route, exchanged in
// broadcasts and announcements.
type RouteData struct {
	SourceLedger       string      `json:"source_ledger"`
	DestinationLedger  string      `json:"destination_ledger"`
	SourceAccount      string      `json:"source_account,omitempty"`
	DestinationAccount string      `json:"destination_account,omitempty"`
	Points             [][2]string `json:"points"`
	MinMessageWindow   float64     `json:"min_message_window"`
	ExpiresAt          string      `json:"expires_at,omitempty"`
	AddedDuringEpoch   int         `json:"added_during_epoch"`
	Hops               []string    `json:"hops,omitempty"`
	TargetPrefix       string      `json:"target_prefix,omitempty"`
}

// RouteFromData validates announced route data and builds a Route. The input
// may carry an explicit hops list, explicit endpoints, or both; endpoints
// derived from hops fill any gaps. No state is mutated on error.
func RouteFromData(data RouteData) (*Route, error) {
	source := data.SourceLedger
	destination := data.DestinationLedger
	hops := append([]string(nil), data.Hops...)

	if len(hops) >= 2 {
		if source == "" {
			source = hops[0]
		}
		if destination == "" {
			destination = hops[len(hops)-1]
		}
	}
	if source == "" || destination == "" {
		return nil, fmt.Errorf("%w: source and destination ledgers are required", ErrInvalidRouteData)
	}
	if len(hops) == 0 {
		hops = []string{source, destination}
	}
	if hops[0] != source || hops[len(hops)-1] != destination {
		return nil, fmt.Errorf("%w: hops do not match endpoint ledgers", ErrInvalidRouteData)
	}
	if data.MinMessageWindow < 0 {
		return nil, fmt.Errorf("%w: min_message_window must be non-negative", ErrInvalidRouteData)
	}

	curve, err := liquidity.NewCurveFromStrings(data.Points)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRouteData, err)
	}

	var expiresAt *time.Time
	if data.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, data.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("%w: bad expires_at %q: %v", ErrInvalidRouteData, data.ExpiresAt, err)
		}
		expiresAt = &t
	}

	targetPrefix := data.TargetPrefix
	if targetPrefix == "" {
		targetPrefix = destination
	}

	return &Route{
		Curve:              curve,
		Hops:               hops,
		SourceLedger:       source,
		NextLedger:         hops[1],
		DestinationLedger:  destination,
		SourceAccount:      data.SourceAccount,
		DestinationAccount: data.DestinationAccount,
		MinMessageWindow:   data.MinMessageWindow,
		ExpiresAt:          expiresAt,
		AddedDuringEpoch:   data.AddedDuringEpoch,
		TargetPrefix:       targetPrefix,
		PathLength:         len(hops) - 1,
	}, nil
}

// ToData renders the route in its external form.
func (r *Route) ToData() RouteData {
	data := RouteData{
		SourceLedger:       r.SourceLedger,
		DestinationLedger:  r.DestinationLedger,
		SourceAccount:      r.SourceAccount,
		DestinationAccount: r.DestinationAccount,
		Points:             r.Curve.PointStrings(),
		MinMessageWindow:   r.MinMessageWindow,
		AddedDuringEpoch:   r.AddedDuringEpoch,
		Hops:               append([]string(nil), r.Hops...),
	}
	if r.ExpiresAt != nil {
		data.ExpiresAt = r.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if r.TargetPrefix != r.DestinationLedger {
		data.TargetPrefix = r.TargetPrefix
	}
	return data
}

// AmountAt returns the destination amount for the given source amount.
func (r *Route) AmountAt(x decimal.Decimal) decimal.Decimal {
	return r.Curve.AmountAt(x)
}

// AmountReverse returns the source amount needed for the given destination
// amount; ok is false when the amount is unachievable.
func (r *Route) AmountReverse(y decimal.Decimal) (decimal.Decimal, bool) {
	return r.Curve.AmountReverse(y)
}

// Combine merges this route with an alternative to the same destination,
// taking the better liquidity at every amount. Metadata is retained from
// whichever side offers more at the combined curve's first inflection;
// consumers must not rely on hop identity of combined routes beyond
// serialization.
func (r *Route) Combine(alt *Route) *Route {
	combined := r.Curve.Combine(alt.Curve)
	winner := r
	if probe := probeX(combined); probe != nil {
		if alt.Curve.AmountAt(*probe).Cmp(r.Curve.AmountAt(*probe)) > 0 {
			winner = alt
		}
	}

	out := *winner
	out.Curve = combined
	out.Hops = append([]string(nil), winner.Hops...)
	if alt.MinMessageWindow > r.MinMessageWindow {
		out.MinMessageWindow = alt.MinMessageWindow
	} else {
		out.MinMessageWindow = r.MinMessageWindow
	}
	return &out
}

// probeX picks the first break-point past the origin, if any.
func probeX(c liquidity.Curve) *decimal.Decimal {
	for _, p := range c.Points() {
		if p.X.Sign() > 0 {
			x := p.X
			return &x
		}
	}
	return nil
}

// Join composes this route with a tail route whose source ledger is this
// route's destination ledger, producing the transitive route. It returns nil
// when the endpoints mismatch, when the joined curve is empty, or when
// joining would break the monotonicity invariant.
//
// expiryDuration of zero makes the joined route static; otherwise it expires
// at now + expiryDuration.
func (r *Route) Join(tail *Route, expiryDuration time.Duration, epoch int, now time.Time) *Route {
	if r.DestinationLedger != tail.SourceLedger {
		return nil
	}

	curve := r.Curve.Join(tail.Curve)
	if curve.IsEmpty() {
		return nil
	}
	if _, err := liquidity.NewCurve(curve.Points()); err != nil {
		return nil
	}

	hops := make([]string, 0, len(r.Hops)+len(tail.Hops))
	hops = append(hops, r.Hops...)
	if len(tail.Hops) > 0 {
		// The shared midpoint ledger appears once.
		hops = append(hops, tail.Hops[1:]...)
	}

	var expiresAt *time.Time
	if expiryDuration > 0 {
		t := now.Add(expiryDuration)
		expiresAt = &t
	}

	return &Route{
		Curve:             curve,
		Hops:              hops,
		SourceLedger:      r.SourceLedger,
		NextLedger:        r.NextLedger,
		DestinationLedger: tail.DestinationLedger,
		// The tail's announcing connector stays the route's owner, so
		// onward derivations keep filing under the same connector.
		SourceAccount:    tail.SourceAccount,
		MinMessageWindow: r.MinMessageWindow + tail.MinMessageWindow,
		ExpiresAt:         expiresAt,
		AddedDuringEpoch:  epoch,
		IsLocal:           false,
		TargetPrefix:      tail.TargetPrefix,
		PathLength:        r.PathLength + tail.PathLength,
	}
}

// IsExpired reports whether the route's hold-down has lapsed. Static routes
// never expire.
func (r *Route) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// BumpExpiration refreshes the hold-down to now + holdDown. Static routes
// are left untouched.
func (r *Route) BumpExpiration(now time.Time, holdDown time.Duration) {
	if r.ExpiresAt == nil {
		return
	}
	t := now.Add(holdDown)
	r.ExpiresAt = &t
}
