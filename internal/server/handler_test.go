package server

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mverdi/goILRouter/internal/core/routing"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func testTables(t *testing.T) *routing.RoutingTables {
	t.Helper()
	tables := routing.NewRoutingTables(45*time.Second, time.Now)

	local, err := routing.RouteFromData(routing.RouteData{
		SourceLedger:       "a.",
		DestinationLedger:  "b.",
		SourceAccount:      "a.self",
		DestinationAccount: "b.self",
		MinMessageWindow:   1,
		Points:             [][2]string{{"0", "0"}, {"1000", "1000"}},
	})
	require.NoError(t, err)
	tables.AddLocalRoutes([]*routing.Route{local})
	return tables
}

func testHandler(t *testing.T) *Handler {
	t.Helper()
	handler, err := NewHandler(testTables(t), 10, 64, testLogger())
	require.NoError(t, err)
	return handler
}

func rawParams(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func submit(t *testing.T, handler *Handler, data routing.RouteData) SubmitRouteResult {
	t.Helper()
	result, rpcErr := handler.Handle("submit_route", rawParams(t, SubmitRouteParams{Route: data}))
	require.Nil(t, rpcErr)
	return result.(SubmitRouteResult)
}

func announcedRoute() routing.RouteData {
	return routing.RouteData{
		SourceLedger:       "b.",
		DestinationLedger:  "c.",
		SourceAccount:      "b.carl",
		DestinationAccount: "c.carl",
		MinMessageWindow:   1,
		Points:             [][2]string{{"0", "0"}, {"500", "250"}},
	}
}

func TestHandleUnknownMethod(t *testing.T) {
	handler := testHandler(t)
	_, rpcErr := handler.Handle("no_such_method", nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, codeMethodNotFound, rpcErr.Code)
}

func TestSubmitRouteAdvancesEpoch(t *testing.T) {
	handler := testHandler(t)
	epochBefore := handler.Epoch()

	var notified int
	handler.OnEpochChange(func(int) { notified++ })

	result := submit(t, handler, announcedRoute())
	assert.True(t, result.Added)
	assert.Greater(t, result.Epoch, epochBefore)
	assert.Equal(t, 1, notified)

	// Same announcement again replaces in place without a new epoch.
	again := submit(t, handler, announcedRoute())
	assert.False(t, again.Added)
	assert.Equal(t, result.Epoch, again.Epoch)
	assert.Equal(t, 1, notified)
}

func TestSubmitRouteRejectsBadData(t *testing.T) {
	handler := testHandler(t)

	bad := announcedRoute()
	bad.Points = [][2]string{{"100", "50"}, {"0", "0"}}
	_, rpcErr := handler.Handle("submit_route", rawParams(t, SubmitRouteParams{Route: bad}))
	require.NotNil(t, rpcErr)
	assert.Equal(t, codeInvalidParams, rpcErr.Code)
}

func TestQuoteSourceAmount(t *testing.T) {
	handler := testHandler(t)
	submit(t, handler, announcedRoute())

	result, rpcErr := handler.Handle("quote_source_amount", rawParams(t, QuoteParams{
		SourceAddress:      "a.alice",
		DestinationAddress: "c.carl",
		Amount:             "100",
	}))
	require.Nil(t, rpcErr)

	quote := result.(QuoteResult)
	assert.Equal(t, "b.carl", quote.BestHop)
	assert.Equal(t, "50", quote.BestValue)
	assert.Empty(t, quote.BestCost)
}

func TestQuoteDestinationAmount(t *testing.T) {
	handler := testHandler(t)
	submit(t, handler, announcedRoute())

	result, rpcErr := handler.Handle("quote_destination_amount", rawParams(t, QuoteParams{
		SourceAddress:      "a.alice",
		DestinationAddress: "c.carl",
		Amount:             "50",
	}))
	require.Nil(t, rpcErr)

	quote := result.(QuoteResult)
	assert.Equal(t, "b.carl", quote.BestHop)
	assert.Equal(t, "100", quote.BestCost)
	assert.Empty(t, quote.BestValue)
}

func TestQuoteNoRouteAnswersNull(t *testing.T) {
	handler := testHandler(t)

	result, rpcErr := handler.Handle("quote_source_amount", rawParams(t, QuoteParams{
		SourceAddress:      "a.alice",
		DestinationAddress: "z.nobody",
		Amount:             "100",
	}))
	require.Nil(t, rpcErr)
	assert.Equal(t, json.RawMessage("null"), result)
}

func TestQuoteRejectsBadAmount(t *testing.T) {
	handler := testHandler(t)
	_, rpcErr := handler.Handle("quote_source_amount", rawParams(t, QuoteParams{
		SourceAddress:      "a.alice",
		DestinationAddress: "c.carl",
		Amount:             "not-a-number",
	}))
	require.NotNil(t, rpcErr)
	assert.Equal(t, codeInvalidParams, rpcErr.Code)
}

func TestQuoteCacheFlushedOnEpochChange(t *testing.T) {
	handler := testHandler(t)
	submit(t, handler, announcedRoute())

	params := rawParams(t, QuoteParams{
		SourceAddress:      "a.alice",
		DestinationAddress: "c.carl",
		Amount:             "100",
	})

	first, rpcErr := handler.Handle("quote_source_amount", params)
	require.Nil(t, rpcErr)
	assert.Equal(t, "50", first.(QuoteResult).BestValue)

	// A better route through b. changes the answer once the cache flushes.
	better := announcedRoute()
	better.SourceAccount = "b.dora"
	better.DestinationAccount = "c.dora"
	better.Points = [][2]string{{"0", "0"}, {"500", "400"}}
	submit(t, handler, better)

	second, rpcErr := handler.Handle("quote_source_amount", params)
	require.Nil(t, rpcErr)
	assert.Equal(t, "80", second.(QuoteResult).BestValue)
	assert.Equal(t, "b.dora", second.(QuoteResult).BestHop)
}

func TestSubmitLocalRoutes(t *testing.T) {
	handler := testHandler(t)

	pair := routing.RouteData{
		SourceLedger:       "b.",
		DestinationLedger:  "c.",
		SourceAccount:      "b.self",
		DestinationAccount: "c.self",
		MinMessageWindow:   1,
		Points:             [][2]string{{"0", "0"}, {"1000", "1000"}},
	}
	result, rpcErr := handler.Handle("submit_local_routes", rawParams(t, SubmitLocalRoutesParams{
		Routes: []routing.RouteData{pair},
	}))
	require.Nil(t, rpcErr)
	assert.Equal(t, handler.Epoch(), result.(SubmitLocalRoutesResult).Epoch)

	// The new pair chains with a.->b., so a. can now reach c.
	quote, rpcErr := handler.Handle("quote_source_amount", rawParams(t, QuoteParams{
		SourceAddress:      "a.alice",
		DestinationAddress: "c.carl",
		Amount:             "100",
	}))
	require.Nil(t, rpcErr)
	assert.Equal(t, "100", quote.(QuoteResult).BestValue)

	_, rpcErr = handler.Handle("submit_local_routes", rawParams(t, SubmitLocalRoutesParams{}))
	require.NotNil(t, rpcErr)
	assert.Equal(t, codeInvalidParams, rpcErr.Code)
}

func TestRouteTable(t *testing.T) {
	handler := testHandler(t)
	submit(t, handler, announcedRoute())

	result, rpcErr := handler.Handle("route_table", nil)
	require.Nil(t, rpcErr)

	table := result.(RouteTableResult)
	assert.Equal(t, handler.Epoch(), table.Epoch)

	destinations := make(map[string]bool)
	for _, record := range table.Routes {
		destinations[record.SourceLedger+"->"+record.DestinationLedger] = true
	}
	assert.True(t, destinations["a.->b."])
	assert.True(t, destinations["a.->c."])
}

func TestRouteTableRejectsSinglePointBudget(t *testing.T) {
	handler := testHandler(t)
	_, rpcErr := handler.Handle("route_table", rawParams(t, RouteTableParams{MaxPoints: 1}))
	require.NotNil(t, rpcErr)
	assert.Equal(t, codeInvalidParams, rpcErr.Code)
}

func TestRemoveLedger(t *testing.T) {
	handler := testHandler(t)
	submit(t, handler, announcedRoute())

	_, rpcErr := handler.Handle("remove_ledger", rawParams(t, RemoveLedgerParams{Ledger: "c."}))
	require.Nil(t, rpcErr)

	result, rpcErr := handler.Handle("quote_source_amount", rawParams(t, QuoteParams{
		SourceAddress:      "a.alice",
		DestinationAddress: "c.carl",
		Amount:             "100",
	}))
	require.Nil(t, rpcErr)
	assert.Equal(t, json.RawMessage("null"), result)
}

func TestRemoveLedgerRequiresLedger(t *testing.T) {
	handler := testHandler(t)
	_, rpcErr := handler.Handle("remove_ledger", rawParams(t, RemoveLedgerParams{}))
	require.NotNil(t, rpcErr)
	assert.Equal(t, codeInvalidParams, rpcErr.Code)
}

func TestInvalidateConnector(t *testing.T) {
	handler := testHandler(t)
	submit(t, handler, announcedRoute())

	result, rpcErr := handler.Handle("invalidate_connector", rawParams(t, ConnectorParams{Connector: "b.carl"}))
	require.Nil(t, rpcErr)
	assert.Contains(t, result.(LostRoutesResult).LostDestinations, "c.")
}

func TestBumpConnectorValidation(t *testing.T) {
	handler := testHandler(t)

	_, rpcErr := handler.Handle("bump_connector", rawParams(t, ConnectorParams{Connector: "b.carl"}))
	require.NotNil(t, rpcErr)
	assert.Equal(t, codeInvalidParams, rpcErr.Code)

	_, rpcErr = handler.Handle("bump_connector", rawParams(t, ConnectorParams{Connector: "b.carl", HoldDownMs: 1000}))
	assert.Nil(t, rpcErr)
}

func TestSnapshot(t *testing.T) {
	handler := testHandler(t)
	submit(t, handler, announcedRoute())

	snap, err := handler.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, handler.Epoch(), snap.Epoch)
	assert.NotEmpty(t, snap.Routes)
}
