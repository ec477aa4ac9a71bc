package routing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// pairNextHop is the next-hop key reserved for locally configured ledger
// pairs. It cannot collide with connector accounts, which are URIs.
const pairNextHop = "PAIR"

// maxDerivationDepth bounds recursive propagation of derived routes. The
// local-pair and novelty gates terminate derivation on their own; the guard
// only caps pathological inputs.
const maxDerivationDepth = 10

// Clock supplies the current time to the composer, injectable for tests.
type Clock func() time.Time

// RoutingTables composes per-source routing tables: it derives transitive
// routes from announcements through locally configured pairs, tracks the
// table epoch, expires stale routes, and serializes the combined table for
// broadcast.
//
// All methods must be called from a single goroutine; embeddings that share
// an instance are responsible for serializing access.
type RoutingTables struct {
	sources       *PrefixMap[*RoutingTable]
	localAccounts map[string]string

	// CurrentEpoch advances each time a table gains a route it did not
	// already hold. One announcement can advance it more than once when
	// derivation cascades.
	CurrentEpoch int

	expiryDuration time.Duration
	clock          Clock
}

// NewRoutingTables creates an empty composer. expiryDuration is the default
// hold-down applied to derived routes; zero makes them static. A nil clock
// defaults to time.Now.
func NewRoutingTables(expiryDuration time.Duration, clock Clock) *RoutingTables {
	if clock == nil {
		clock = time.Now
	}
	return &RoutingTables{
		sources:        NewPrefixMap[*RoutingTable](),
		localAccounts:  make(map[string]string),
		expiryDuration: expiryDuration,
		clock:          clock,
	}
}

// AddLocalRoutes installs locally configured ledger pairs, records the local
// accounts on both ends, and then announces each pair to trigger transitive
// derivation against the other pairs.
func (t *RoutingTables) AddLocalRoutes(routes []*Route) {
	for _, route := range routes {
		route.IsLocal = true
		table, ok := t.sources.Get(route.SourceLedger)
		if !ok {
			table = t.sources.Insert(route.SourceLedger, NewRoutingTable())
		}
		table.AddRoute(route.TargetPrefix, pairNextHop, route)

		t.localAccounts[route.SourceLedger] = route.SourceAccount
		if route.DestinationAccount != "" {
			t.localAccounts[route.DestinationLedger] = route.DestinationAccount
		}
	}
	for _, route := range routes {
		t.AddRoute(route)
	}
}

// AddRoute composes the announced route with every local pair that reaches
// its source ledger and stores the derived routes. It reports whether any
// table changed; if so the epoch has advanced, once per derivation level
// that inserted a novel route.
func (t *RoutingTables) AddRoute(route *Route) bool {
	return t.addRoute(route, 0)
}

func (t *RoutingTables) addRoute(route *Route, depth int) bool {
	if depth > maxDerivationDepth {
		return false
	}
	added := false
	t.sources.Each(func(table *RoutingTable, sourceLedger string) {
		if t.addRouteFromSource(table, sourceLedger, route, depth) {
			added = true
		}
	})
	if added {
		t.CurrentEpoch++
	}
	return added
}

// addRouteFromSource derives source→C from the local pair source→B and the
// announced route B→C, inserting it under the announcing connector. Newly
// created entries propagate one hop further; re-insertions at an existing
// (destination, connector) slot do not, which terminates the recursion.
func (t *RoutingTables) addRouteFromSource(table *RoutingTable, sourceLedger string, route *Route, depth int) bool {
	destination := route.TargetPrefix
	connector := route.SourceAccount

	// A direct local pair beats any derived route to the same destination.
	if route.IsLocal {
		if _, ok := table.GetRoute(destination, pairNextHop); ok {
			return false
		}
	}

	pair, ok := table.GetRoute(route.SourceLedger, pairNextHop)
	if !ok {
		return false
	}

	derived := pair.Join(route, t.expiryDuration, t.CurrentEpoch, t.clock())
	if derived == nil {
		return false
	}

	_, exists := table.GetRoute(destination, connector)
	if !exists {
		// Novel slot: the announcement marks the derived route one epoch
		// ahead of the epoch it was composed in.
		derived.AddedDuringEpoch++
	}
	table.AddRoute(destination, connector, derived)

	if !exists {
		t.addRoute(derived, depth+1)
	}
	return !exists
}

// LocalPairRoute returns the locally configured pair from sourceLedger to
// destinationLedger, if one exists.
func (t *RoutingTables) LocalPairRoute(sourceLedger, destinationLedger string) (*Route, bool) {
	table, ok := t.sources.Get(sourceLedger)
	if !ok {
		return nil, false
	}
	return table.GetRoute(destinationLedger, pairNextHop)
}

// RemoveLedger drops every route that starts at or ends at ledger.
func (t *RoutingTables) RemoveLedger(ledger string) {
	type slot struct {
		source, destination, nextHop string
	}
	var remove []slot
	t.eachRoute(func(route *Route, source, destination, nextHop string) {
		if source == ledger || destination == ledger {
			remove = append(remove, slot{source, destination, nextHop})
		}
	})
	for _, s := range remove {
		t.removeRoute(s.source, s.destination, s.nextHop)
	}
}

// RemoveExpiredRoutes drops every route whose hold-down has lapsed and
// returns the destination prefixes that lost at least one route.
func (t *RoutingTables) RemoveExpiredRoutes() []string {
	now := t.clock()
	return t.removeRoutes(func(route *Route, source, destination, nextHop string) bool {
		return route.IsExpired(now)
	})
}

// BumpConnector refreshes the hold-down of every route announced by
// connector to now + holdDown. Static routes are unaffected.
func (t *RoutingTables) BumpConnector(connector string, holdDown time.Duration) {
	now := t.clock()
	t.eachRoute(func(route *Route, source, destination, nextHop string) {
		if nextHop == connector {
			route.BumpExpiration(now, holdDown)
		}
	})
}

// InvalidateConnector drops every non-static route announced by connector
// and returns the destinations that lost a route.
func (t *RoutingTables) InvalidateConnector(connector string) []string {
	return t.removeRoutes(func(route *Route, source, destination, nextHop string) bool {
		return nextHop == connector && route.ExpiresAt != nil
	})
}

// InvalidateConnectorsRoutesTo drops connector's non-static routes to one
// specific destination ledger.
func (t *RoutingTables) InvalidateConnectorsRoutesTo(connector, ledger string) []string {
	return t.removeRoutes(func(route *Route, source, destination, nextHop string) bool {
		return nextHop == connector && destination == ledger && route.ExpiresAt != nil
	})
}

// FindBestHopForSourceAmount resolves the source address to its table and
// answers the best next hop for sending sourceAmount toward finalAddress.
// Local pairs report the configured account of the far ledger as the hop.
func (t *RoutingTables) FindBestHopForSourceAmount(sourceAddress, finalAddress string, sourceAmount decimal.Decimal) (BestHop, bool) {
	table, ok := t.sources.Resolve(sourceAddress)
	if !ok {
		return BestHop{}, false
	}
	hop, ok := table.FindBestHopForSourceAmount(finalAddress, sourceAmount)
	if !ok {
		return BestHop{}, false
	}
	return t.rewriteLocalHop(hop), true
}

// FindBestHopForDestinationAmount is the reverse query: the cheapest next
// hop able to deliver destinationAmount at finalAddress.
func (t *RoutingTables) FindBestHopForDestinationAmount(sourceAddress, finalAddress string, destinationAmount decimal.Decimal) (BestHop, bool) {
	table, ok := t.sources.Resolve(sourceAddress)
	if !ok {
		return BestHop{}, false
	}
	hop, ok := table.FindBestHopForDestinationAmount(finalAddress, destinationAmount)
	if !ok {
		return BestHop{}, false
	}
	return t.rewriteLocalHop(hop), true
}

func (t *RoutingTables) rewriteLocalHop(hop BestHop) BestHop {
	if hop.Hop == pairNextHop {
		hop.Hop = t.localAccounts[hop.Route.DestinationLedger]
	}
	return hop
}

// LocalAccount returns the configured account URI on the given ledger.
func (t *RoutingTables) LocalAccount(ledger string) (string, bool) {
	account, ok := t.localAccounts[ledger]
	return account, ok
}

// ToData serializes the combined table for broadcast: per (source,
// destination) all connectors' routes are combined in parallel, the curve is
// simplified to maxPoints break-points, and the record carries the local
// source account plus a compact disambiguating target prefix.
func (t *RoutingTables) ToData(maxPoints int) ([]RouteData, error) {
	if maxPoints < 2 {
		return nil, fmt.Errorf("maxPoints must be at least 2, got %d", maxPoints)
	}

	var out []RouteData
	var failure error
	t.sources.Each(func(table *RoutingTable, sourceLedger string) {
		table.destinations.Each(func(routes *hopRoutes, destinationPrefix string) {
			if failure != nil {
				return
			}
			var combined *Route
			routes.each(func(nextHop string, route *Route) {
				if combined == nil {
					combined = route
				} else {
					combined = combined.Combine(route)
				}
			})
			if combined == nil {
				return
			}

			curve, err := combined.Curve.Simplify(maxPoints)
			if err != nil {
				failure = err
				return
			}

			data := combined.ToData()
			data.SourceLedger = sourceLedger
			data.DestinationLedger = destinationPrefix
			data.SourceAccount = t.localAccounts[sourceLedger]
			data.Points = curve.PointStrings()
			data.Hops = nil
			data.AddedDuringEpoch = t.CurrentEpoch
			data.TargetPrefix = table.destinations.AppliesToPrefix(destinationPrefix, combined.DestinationLedger)
			out = append(out, data)
		})
	})
	if failure != nil {
		return nil, failure
	}
	return out, nil
}

// eachRoute visits every stored route with its (source, destination,
// nextHop) slot.
func (t *RoutingTables) eachRoute(fn func(route *Route, source, destination, nextHop string)) {
	t.sources.Each(func(table *RoutingTable, sourceLedger string) {
		table.destinations.Each(func(routes *hopRoutes, destinationPrefix string) {
			routes.each(func(nextHop string, route *Route) {
				fn(route, sourceLedger, destinationPrefix, nextHop)
			})
		})
	})
}

// removeRoutes removes every route matching the predicate and returns the
// destinations that lost at least one route.
func (t *RoutingTables) removeRoutes(match func(route *Route, source, destination, nextHop string) bool) []string {
	type slot struct {
		source, destination, nextHop string
	}
	var remove []slot
	t.eachRoute(func(route *Route, source, destination, nextHop string) {
		if match(route, source, destination, nextHop) {
			remove = append(remove, slot{source, destination, nextHop})
		}
	})

	lost := make([]string, 0, len(remove))
	seen := make(map[string]bool)
	for _, s := range remove {
		if t.removeRoute(s.source, s.destination, s.nextHop) && !seen[s.destination] {
			seen[s.destination] = true
			lost = append(lost, s.destination)
		}
	}
	return lost
}

func (t *RoutingTables) removeRoute(source, destination, nextHop string) bool {
	table, ok := t.sources.Get(source)
	if !ok {
		return false
	}
	return table.RemoveRoute(destination, nextHop)
}
