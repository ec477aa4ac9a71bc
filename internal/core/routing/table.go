package routing

import (
	"github.com/shopspring/decimal"
)

// hopRoutes is an insertion-ordered mapping from next-hop identifier to the
// single route stored for that hop.
type hopRoutes struct {
	hops   []string
	routes map[string]*Route
}

func newHopRoutes() *hopRoutes {
	return &hopRoutes{routes: make(map[string]*Route)}
}

func (h *hopRoutes) get(nextHop string) (*Route, bool) {
	r, ok := h.routes[nextHop]
	return r, ok
}

func (h *hopRoutes) set(nextHop string, route *Route) {
	if _, exists := h.routes[nextHop]; !exists {
		h.hops = append(h.hops, nextHop)
	}
	h.routes[nextHop] = route
}

func (h *hopRoutes) delete(nextHop string) bool {
	if _, exists := h.routes[nextHop]; !exists {
		return false
	}
	delete(h.routes, nextHop)
	for i, hop := range h.hops {
		if hop == nextHop {
			h.hops = append(h.hops[:i], h.hops[i+1:]...)
			break
		}
	}
	return true
}

func (h *hopRoutes) len() int {
	return len(h.hops)
}

func (h *hopRoutes) each(fn func(nextHop string, route *Route)) {
	for _, hop := range h.hops {
		fn(hop, h.routes[hop])
	}
}

// BestHop is the answer to a best-hop query: the winning next hop, the
// destination amount (source-amount queries) or source cost
// (destination-amount queries), and the winning route.
type BestHop struct {
	Hop    string
	Amount decimal.Decimal
	Route  *Route
}

// RoutingTable holds the routes of a single source ledger, keyed by
// destination prefix and next hop. At most one route exists per
// (destination prefix, next hop) pair.
type RoutingTable struct {
	destinations *PrefixMap[*hopRoutes]
}

// NewRoutingTable creates an empty routing table.
func NewRoutingTable() *RoutingTable {
	return &RoutingTable{destinations: NewPrefixMap[*hopRoutes]()}
}

// Destinations exposes the destination prefix map for iteration.
func (t *RoutingTable) Destinations() *PrefixMap[*hopRoutes] {
	return t.destinations
}

// AddRoute stores route under (destinationPrefix, nextHop), replacing any
// previous route for that pair.
func (t *RoutingTable) AddRoute(destinationPrefix, nextHop string, route *Route) {
	routes, ok := t.destinations.Get(destinationPrefix)
	if !ok {
		routes = t.destinations.Insert(destinationPrefix, newHopRoutes())
	}
	routes.set(nextHop, route)
}

// GetRoute returns the route stored under (destinationPrefix, nextHop).
func (t *RoutingTable) GetRoute(destinationPrefix, nextHop string) (*Route, bool) {
	routes, ok := t.destinations.Get(destinationPrefix)
	if !ok {
		return nil, false
	}
	return routes.get(nextHop)
}

// RemoveRoute deletes the route under (destinationPrefix, nextHop),
// dropping the destination entry entirely when no hops remain. It reports
// whether a route was actually removed.
func (t *RoutingTable) RemoveRoute(destinationPrefix, nextHop string) bool {
	routes, ok := t.destinations.Get(destinationPrefix)
	if !ok {
		return false
	}
	removed := routes.delete(nextHop)
	if routes.len() == 0 {
		t.destinations.Delete(destinationPrefix)
	}
	return removed
}

// FindBestHopForSourceAmount resolves finalAddress by longest prefix and
// picks the candidate yielding the highest destination amount for
// sourceAmount, preferring shorter paths on ties.
func (t *RoutingTable) FindBestHopForSourceAmount(finalAddress string, sourceAmount decimal.Decimal) (BestHop, bool) {
	routes, ok := t.destinations.Resolve(finalAddress)
	if !ok {
		return BestHop{}, false
	}

	var best *pathCandidate
	routes.each(func(nextHop string, route *Route) {
		value := route.AmountAt(sourceAmount)
		best = betterPath(best, &pathCandidate{
			hop:        nextHop,
			route:      route,
			pathLength: route.PathLength,
			value:      &value,
		})
	})
	if best == nil {
		return BestHop{}, false
	}
	return BestHop{Hop: best.hop, Amount: *best.value, Route: best.route}, true
}

// FindBestHopForDestinationAmount resolves finalAddress by longest prefix
// and picks the candidate needing the lowest source amount to deliver
// destinationAmount. Candidates that cannot reach the amount are discarded;
// ok is false when none can.
func (t *RoutingTable) FindBestHopForDestinationAmount(finalAddress string, destinationAmount decimal.Decimal) (BestHop, bool) {
	routes, ok := t.destinations.Resolve(finalAddress)
	if !ok {
		return BestHop{}, false
	}

	var best *pathCandidate
	routes.each(func(nextHop string, route *Route) {
		cost, feasible := route.AmountReverse(destinationAmount)
		if !feasible {
			return
		}
		best = betterPath(best, &pathCandidate{
			hop:        nextHop,
			route:      route,
			pathLength: route.PathLength,
			cost:       &cost,
		})
	})
	if best == nil {
		return BestHop{}, false
	}
	return BestHop{Hop: best.hop, Amount: *best.cost, Route: best.route}, true
}

// pathCandidate carries one comparable path: higher value wins, lower cost
// wins, and equal footing falls back to path length.
type pathCandidate struct {
	hop        string
	route      *Route
	pathLength int
	value      *decimal.Decimal
	cost       *decimal.Decimal
}

// betterPath picks between the current winner and a challenger. Value and
// cost dominate; path length breaks ties; a full tie keeps the current
// winner, so earlier-inserted routes are stable under equal offers.
func betterPath(current, other *pathCandidate) *pathCandidate {
	switch {
	case current == nil:
		return other
	case (current.value != nil) != (other.value != nil):
		if other.value != nil {
			return other
		}
		return current
	case (current.cost != nil) != (other.cost != nil):
		if other.cost != nil {
			return other
		}
		return current
	case current.value != nil:
		if cmp := other.value.Cmp(*current.value); cmp != 0 {
			if cmp > 0 {
				return other
			}
			return current
		}
	case current.cost != nil:
		if cmp := other.cost.Cmp(*current.cost); cmp != 0 {
			if cmp < 0 {
				return other
			}
			return current
		}
	}
	if other.pathLength < current.pathLength {
		return other
	}
	return current
}
