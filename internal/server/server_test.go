package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mverdi/goILRouter/internal/config"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	srv, err := New(cfg, testTables(t), testLogger())
	require.NoError(t, err)
	return srv
}

func postRPC(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.serveRPC(rec, req)
	return rec
}

func TestServeRPC(t *testing.T) {
	srv := testServer(t)

	rec := postRPC(t, srv, `{"jsonrpc":"2.0","method":"route_table","id":7}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		JSONRPC string          `json:"jsonrpc"`
		Result  json.RawMessage `json:"result"`
		Error   *rpcError       `json:"error"`
		ID      int             `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, 7, resp.ID)
	assert.Nil(t, resp.Error)

	var result RouteTableResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.NotEmpty(t, result.Routes)
}

func TestServeRPCMethodErrors(t *testing.T) {
	srv := testServer(t)

	t.Run("unknown method", func(t *testing.T) {
		rec := postRPC(t, srv, `{"jsonrpc":"2.0","method":"nope","id":1}`)
		var resp rpcResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, codeMethodNotFound, resp.Error.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := postRPC(t, srv, `{"jsonrpc"`)
		var resp rpcResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, codeParseError, resp.Error.Code)
	})

	t.Run("GET rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		srv.serveRPC(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
