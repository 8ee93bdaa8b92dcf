package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homelead/askdb/pkg/config"
	"github.com/homelead/askdb/pkg/rpc"
)

// echoRPC answers every frame with its method name, proving the bridge hands
// the upgraded connection to the serve loop through the extended-JSON codec.
type echoRPC struct{}

func (echoRPC) Serve(_ context.Context, codec rpc.Codec) error {
	for {
		req, err := codec.Read()
		if err != nil {
			return nil
		}
		if err := codec.Write(rpc.Response{JSONRPC: "1.0", ID: req.ID, Result: req.Method}); err != nil {
			return err
		}
	}
}

func TestRPC_WebSocketBridge(t *testing.T) {
	srv := NewServer(&stubChat{}, stubPinger{}, echoRPC{}, config.DefaultConfig().Server)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/rpc"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"id": 1, "method": "list_collections", "params": {}}`)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"jsonrpc":"1.0"`)
	assert.Contains(t, string(data), "list_collections")
}

func TestRPC_RouteAbsentWithoutHandler(t *testing.T) {
	srv := newTestServer(&stubChat{}, stubPinger{})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rpc", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
