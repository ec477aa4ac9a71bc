package server

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mverdi/goILRouter/internal/core/routing"
)

// Handler answers JSON-RPC methods against the routing table composer. The
// composer is single-threaded; the handler serializes all access behind one
// mutex, and keeps an LRU cache of quote answers that is flushed whenever
// the table epoch moves.
type Handler struct {
	mu     sync.Mutex
	tables *routing.RoutingTables

	quotes      *lru.Cache[string, QuoteResult]
	cachedEpoch int

	maxPoints int
	log       *logrus.Entry

	// epochChanged is invoked (outside quote paths) after a mutation that
	// advanced the epoch; the broadcaster uses it to push snapshots.
	epochChanged func(epoch int)
}

// NewHandler creates a handler around tables. maxPoints is the default curve
// budget for broadcast serialization; cacheSize bounds the quote cache.
func NewHandler(tables *routing.RoutingTables, maxPoints, cacheSize int, log *logrus.Entry) (*Handler, error) {
	quotes, err := lru.New[string, QuoteResult](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Handler{
		tables:      tables,
		quotes:      quotes,
		cachedEpoch: tables.CurrentEpoch,
		maxPoints:   maxPoints,
		log:         log,
	}, nil
}

// OnEpochChange registers the callback invoked after mutations that advance
// the table epoch.
func (h *Handler) OnEpochChange(fn func(epoch int)) {
	h.epochChanged = fn
}

// Handle dispatches one JSON-RPC method.
func (h *Handler) Handle(method string, params json.RawMessage) (interface{}, *rpcError) {
	switch method {
	case "quote_source_amount":
		return h.quote(params, false)
	case "quote_destination_amount":
		return h.quote(params, true)
	case "submit_route":
		return h.submitRoute(params)
	case "submit_local_routes":
		return h.submitLocalRoutes(params)
	case "route_table":
		return h.routeTable(params)
	case "remove_ledger":
		return h.removeLedger(params)
	case "bump_connector":
		return h.bumpConnector(params)
	case "invalidate_connector":
		return h.invalidateConnector(params)
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method %q", method)}
	}
}

func (h *Handler) quote(params json.RawMessage, reverse bool) (interface{}, *rpcError) {
	var p QuoteParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("bad amount %q", p.Amount)}
	}

	key := quoteKey(p, reverse)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.flushStaleQuotes()
	if cached, ok := h.quotes.Get(key); ok {
		return cached, nil
	}

	var hop routing.BestHop
	var ok bool
	if reverse {
		hop, ok = h.tables.FindBestHopForDestinationAmount(p.SourceAddress, p.DestinationAddress, amount)
	} else {
		hop, ok = h.tables.FindBestHopForSourceAmount(p.SourceAddress, p.DestinationAddress, amount)
	}
	if !ok {
		// No route or unachievable amount is an expected outcome, answered
		// with a null result rather than an error.
		return json.RawMessage("null"), nil
	}

	result := QuoteResult{
		BestHop:   hop.Hop,
		BestRoute: hop.Route.ToData(),
	}
	if reverse {
		result.BestCost = hop.Amount.String()
	} else {
		result.BestValue = hop.Amount.String()
	}
	h.quotes.Add(key, result)
	return result, nil
}

func (h *Handler) submitRoute(params json.RawMessage) (interface{}, *rpcError) {
	var p SubmitRouteParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	route, err := routing.RouteFromData(p.Route)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}

	h.mu.Lock()
	added := h.tables.AddRoute(route)
	epoch := h.tables.CurrentEpoch
	h.flushStaleQuotes()
	h.mu.Unlock()

	if added {
		h.log.WithFields(logrus.Fields{
			"source":      route.SourceLedger,
			"destination": route.DestinationLedger,
			"connector":   route.SourceAccount,
			"epoch":       epoch,
		}).Info("route added")
		h.notifyEpochChange(epoch)
	}
	return SubmitRouteResult{Added: added, Epoch: epoch}, nil
}

func (h *Handler) submitLocalRoutes(params json.RawMessage) (interface{}, *rpcError) {
	var p SubmitLocalRoutesParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	if len(p.Routes) == 0 {
		return nil, &rpcError{Code: codeInvalidParams, Message: "routes must not be empty"}
	}

	// Validate all routes before touching the tables.
	locals := make([]*routing.Route, 0, len(p.Routes))
	for i, data := range p.Routes {
		route, err := routing.RouteFromData(data)
		if err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("routes[%d]: %v", i, err)}
		}
		locals = append(locals, route)
	}

	h.mu.Lock()
	h.tables.AddLocalRoutes(locals)
	epoch := h.tables.CurrentEpoch
	h.flushStaleQuotes()
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{
		"routes": len(locals),
		"epoch":  epoch,
	}).Info("local routes installed")
	h.notifyEpochChange(epoch)
	return SubmitLocalRoutesResult{Epoch: epoch}, nil
}

func (h *Handler) routeTable(params json.RawMessage) (interface{}, *rpcError) {
	var p RouteTableParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
		}
	}
	maxPoints := h.maxPoints
	if p.MaxPoints > 0 {
		maxPoints = p.MaxPoints
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	routes, err := h.tables.ToData(maxPoints)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	return RouteTableResult{Epoch: h.tables.CurrentEpoch, Routes: routes}, nil
}

func (h *Handler) removeLedger(params json.RawMessage) (interface{}, *rpcError) {
	var p RemoveLedgerParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	if p.Ledger == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "ledger is required"}
	}

	h.mu.Lock()
	h.tables.RemoveLedger(p.Ledger)
	h.quotes.Purge()
	h.mu.Unlock()

	h.log.WithField("ledger", p.Ledger).Info("ledger removed")
	return struct{}{}, nil
}

func (h *Handler) bumpConnector(params json.RawMessage) (interface{}, *rpcError) {
	var p ConnectorParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	if p.Connector == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "connector is required"}
	}
	if p.HoldDownMs <= 0 {
		return nil, &rpcError{Code: codeInvalidParams, Message: "hold_down_ms must be positive"}
	}

	h.mu.Lock()
	h.tables.BumpConnector(p.Connector, msToDuration(p.HoldDownMs))
	h.mu.Unlock()

	h.log.WithField("connector", p.Connector).Debug("connector bumped")
	return struct{}{}, nil
}

func (h *Handler) invalidateConnector(params json.RawMessage) (interface{}, *rpcError) {
	var p ConnectorParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	if p.Connector == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "connector is required"}
	}

	h.mu.Lock()
	var lost []string
	if p.Ledger != "" {
		lost = h.tables.InvalidateConnectorsRoutesTo(p.Connector, p.Ledger)
	} else {
		lost = h.tables.InvalidateConnector(p.Connector)
	}
	h.quotes.Purge()
	h.mu.Unlock()

	if len(lost) > 0 {
		h.log.WithFields(logrus.Fields{
			"connector": p.Connector,
			"lost":      strings.Join(lost, ","),
		}).Info("connector invalidated")
	}
	return LostRoutesResult{LostDestinations: lost}, nil
}

// RemoveExpiredRoutes sweeps expired routes; the server calls this on its
// sweep interval. Returns the destinations that lost a route.
func (h *Handler) RemoveExpiredRoutes() []string {
	h.mu.Lock()
	lost := h.tables.RemoveExpiredRoutes()
	if len(lost) > 0 {
		h.quotes.Purge()
	}
	h.mu.Unlock()
	return lost
}

// Snapshot serializes the current table for broadcast.
func (h *Handler) Snapshot() (snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	routes, err := h.tables.ToData(h.maxPoints)
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{Epoch: h.tables.CurrentEpoch, Routes: routes}, nil
}

// Epoch returns the current table epoch.
func (h *Handler) Epoch() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tables.CurrentEpoch
}

// flushStaleQuotes drops cached quotes once the epoch has moved past the
// epoch they were computed in. Callers must hold h.mu.
func (h *Handler) flushStaleQuotes() {
	if epoch := h.tables.CurrentEpoch; epoch != h.cachedEpoch {
		h.quotes.Purge()
		h.cachedEpoch = epoch
	}
}

func (h *Handler) notifyEpochChange(epoch int) {
	if h.epochChanged != nil {
		h.epochChanged(epoch)
	}
}

func quoteKey(p QuoteParams, reverse bool) string {
	dir := "src"
	if reverse {
		dir = "dst"
	}
	return dir + "|" + p.SourceAddress + "|" + p.DestinationAddress + "|" + p.Amount
}
