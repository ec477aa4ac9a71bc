package server

import (
	"encoding/json"

	"github.com/mverdi/goILRouter/internal/core/routing"
)

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

// rpcError is a JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

const (
	codeParseError     = -32700
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeMethodNotFound = -32601
)

// QuoteParams asks for the best next hop between two addresses for either a
// fixed source amount or a fixed destination amount.
type QuoteParams struct {
	SourceAddress      string `json:"source_address"`
	DestinationAddress string `json:"destination_address"`
	Amount             string `json:"amount"`
}

// QuoteResult is the hop record answered to quote queries. BestValue is set
// for source-amount quotes, BestCost for destination-amount quotes.
type QuoteResult struct {
	BestHop   string            `json:"best_hop"`
	BestValue string            `json:"best_value,omitempty"`
	BestCost  string            `json:"best_cost,omitempty"`
	BestRoute routing.RouteData `json:"best_route"`
}

// SubmitRouteParams carries one route announcement.
type SubmitRouteParams struct {
	Route routing.RouteData `json:"route"`
}

// SubmitRouteResult reports whether the announcement changed any table.
type SubmitRouteResult struct {
	Added bool `json:"added"`
	Epoch int  `json:"epoch"`
}

// SubmitLocalRoutesParams carries locally configured ledger pairs installed
// at runtime.
type SubmitLocalRoutesParams struct {
	Routes []routing.RouteData `json:"routes"`
}

// SubmitLocalRoutesResult reports the epoch after installation.
type SubmitLocalRoutesResult struct {
	Epoch int `json:"epoch"`
}

// RouteTableParams requests the broadcast form of the combined table.
type RouteTableParams struct {
	// MaxPoints overrides the configured curve budget when positive.
	MaxPoints int `json:"max_points,omitempty"`
}

// RouteTableResult is the serialized combined routing table.
type RouteTableResult struct {
	Epoch  int                 `json:"epoch"`
	Routes []routing.RouteData `json:"routes"`
}

// RemoveLedgerParams names a ledger to tear down.
type RemoveLedgerParams struct {
	Ledger string `json:"ledger"`
}

// ConnectorParams names a connector, with an optional hold-down used by
// bump_connector.
type ConnectorParams struct {
	Connector  string `json:"connector"`
	HoldDownMs int    `json:"hold_down_ms,omitempty"`
	Ledger     string `json:"ledger,omitempty"`
}

// LostRoutesResult lists destinations that lost at least one route.
type LostRoutesResult struct {
	LostDestinations []string `json:"lost_destinations"`
}

// snapshot is the payload pushed to WebSocket subscribers on epoch change.
type snapshot struct {
	Epoch  int                 `json:"epoch"`
	Routes []routing.RouteData `json:"routes"`
}
