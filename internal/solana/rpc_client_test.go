package solana

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupTestClient creates an RPCClient pointed at a test server.
func setupTestClient(handler http.Handler) (*RPCClient, *httptest.Server) {
	server := httptest.NewServer(handler)

	client := &RPCClient{
		client:  resty.New().SetBaseURL(server.URL),
		logger:  zap.NewNop(), // Use a no-op logger for tests
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	return client, server
}

func rpcHandler(t *testing.T, expectMethod string, result string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Method string `json:"method"`
			Params []any  `json:"params"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, expectMethod, body.Method)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
	})
}

func TestGetNativeBalance(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		client, server := setupTestClient(rpcHandler(t, "getBalance", `{"context":{"slot":1},"value":2500000000}`))
		defer server.Close()

		balance, err := client.GetNativeBalance("somepubkey")
		assert.NoError(t, err)
		assert.True(t, balance.Equal(decimal.RequireFromString("2.5")))
	})

	t.Run("ZeroIsAValidBalance", func(t *testing.T) {
		client, server := setupTestClient(rpcHandler(t, "getBalance", `{"context":{"slot":1},"value":0}`))
		defer server.Close()

		balance, err := client.GetNativeBalance("somepubkey")
		assert.NoError(t, err)
		assert.True(t, balance.IsZero())
	})

	t.Run("RPCError", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32005,"message":"node is behind"}}`))
		})
		client, server := setupTestClient(handler)
		defer server.Close()

		_, err := client.GetNativeBalance("somepubkey")
		assert.ErrorIs(t, err, ErrChainUnavailable)
	})

	t.Run("HTTPError", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad request", http.StatusBadRequest)
		})
		client, server := setupTestClient(handler)
		defer server.Close()

		_, err := client.GetNativeBalance("somepubkey")
		assert.ErrorIs(t, err, ErrChainUnavailable)
	})
}

func TestGetTokenBalance(t *testing.T) {
	t.Run("SumsAllAccounts", func(t *testing.T) {
		result := `{"value":[
			{"account":{"data":{"parsed":{"info":{"tokenAmount":{"amount":"1500000","decimals":6,"uiAmountString":"1.5"}}}}}},
			{"account":{"data":{"parsed":{"info":{"tokenAmount":{"amount":"2250000","decimals":6,"uiAmountString":"2.25"}}}}}}
		]}`
		client, server := setupTestClient(rpcHandler(t, "getTokenAccountsByOwner", result))
		defer server.Close()

		total, err := client.GetTokenBalance("somepubkey", "somemint")
		assert.NoError(t, err)
		assert.True(t, total.Equal(decimal.RequireFromString("3.75")))
	})

	t.Run("FallsBackToRawAmount", func(t *testing.T) {
		result := `{"value":[
			{"account":{"data":{"parsed":{"info":{"tokenAmount":{"amount":"1500000","decimals":6}}}}}}
		]}`
		client, server := setupTestClient(rpcHandler(t, "getTokenAccountsByOwner", result))
		defer server.Close()

		total, err := client.GetTokenBalance("somepubkey", "somemint")
		assert.NoError(t, err)
		assert.True(t, total.Equal(decimal.RequireFromString("1.5")))
	})

	t.Run("NoAccounts", func(t *testing.T) {
		client, server := setupTestClient(rpcHandler(t, "getTokenAccountsByOwner", `{"value":[]}`))
		defer server.Close()

		total, err := client.GetTokenBalance("somepubkey", "somemint")
		assert.NoError(t, err)
		assert.True(t, total.IsZero())
	})
}

func TestGetLatestBlockhash(t *testing.T) {
	client, server := setupTestClient(rpcHandler(t, "getLatestBlockhash", `{"value":{"blockhash":"somehash"}}`))
	defer server.Close()

	hash, err := client.GetLatestBlockhash()
	assert.NoError(t, err)
	assert.Equal(t, "somehash", hash)
}

func TestSendTransaction(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		client, server := setupTestClient(rpcHandler(t, "sendTransaction", `"txid123"`))
		defer server.Close()

		txid, err := client.SendTransaction([]byte{1, 2, 3})
		assert.NoError(t, err)
		assert.Equal(t, "txid123", txid)
	})

	t.Run("Rejected", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32002,"message":"simulation failed"}}`))
		})
		client, server := setupTestClient(handler)
		defer server.Close()

		_, err := client.SendTransaction([]byte{1, 2, 3})
		assert.ErrorIs(t, err, ErrSubmitFailed)
	})
}
