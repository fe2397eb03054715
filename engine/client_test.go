package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"tacotip-backend/config"
)

const (
	testFactory      = "0x1111111111111111111111111111111111111111"
	testFactoryAdmin = "0x2222222222222222222222222222222222222222"
	testWallet       = "0x3333333333333333333333333333333333333333"
	testEOAWallet    = "0x4444444444444444444444444444444444444444"
	testToken        = "0x5555555555555555555555555555555555555555"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		EngineURL:           srv.URL,
		EngineAccessToken:   "secret-token",
		ChainID:             84532,
		AccountFactory:      testFactory,
		AccountFactoryAdmin: testFactoryAdmin,
		BackendWallet:       testWallet,
		BackendEOAWallet:    testEOAWallet,
		TipToken:            testToken,
	}
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeResult(w http.ResponseWriter, result any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
}

func TestPredictAddress(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, fmt.Sprintf("/contract/84532/%s/account-factory/predict-account-address", testFactory), r.URL.Path)
		require.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		require.Equal(t, testFactoryAdmin, r.URL.Query().Get("adminAddress"))
		require.Equal(t, "T1-U1", r.URL.Query().Get("extraData"))
		writeResult(w, "0xabc0000000000000000000000000000000000abc")
	}))

	addr, err := c.PredictAddress(context.Background(), "U1", "T1")
	require.NoError(t, err)
	require.Equal(t, "0xabc0000000000000000000000000000000000abc", addr)
}

func TestIsDeployedHexEncodesSalt(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, fmt.Sprintf("/contract/84532/%s/account-factory/is-account-deployed", testFactory), r.URL.Path)
		require.Equal(t, hexutil.Encode([]byte("T1-U1")), r.URL.Query().Get("extraData"))
		writeResult(w, true)
	}))

	deployed, err := c.IsDeployed(context.Background(), "U1", "T1")
	require.NoError(t, err)
	require.True(t, deployed)
}

func TestDeployAccountHeaders(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, fmt.Sprintf("/contract/84532/%s/account-factory/create-account", testFactory), r.URL.Path)
		require.Equal(t, testFactoryAdmin, r.Header.Get("x-backend-wallet-address"))
		require.Equal(t, "deploy-account-T1-U1-Ev1", r.Header.Get("x-idempotency-key"))
		require.Equal(t, testFactory, r.Header.Get("x-account-factory-address"))
		require.Equal(t, "T1-U1", r.Header.Get("x-account-salt"))
		writeResult(w, map[string]string{
			"queueId":         "q-77",
			"deployedAddress": "0xabc0000000000000000000000000000000000abc",
		})
	}))

	addr, err := c.DeployAccount(context.Background(), "U1", "T1", "deploy-account-T1-U1-Ev1")
	require.NoError(t, err)
	require.Equal(t, "0xabc0000000000000000000000000000000000abc", addr)
}

func TestIsRegistered(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, fmt.Sprintf("/contract/84532/%s/read", testToken), r.URL.Path)
		require.Equal(t, "isRegistered", r.URL.Query().Get("functionName"))
		require.Equal(t, testFactoryAdmin, r.URL.Query().Get("args"))
		writeResult(w, false)
	}))

	registered, err := c.IsRegistered(context.Background(), testFactoryAdmin)
	require.NoError(t, err)
	require.False(t, registered)
}

func TestSendBatchReturnsFirstQueueID(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/backend-wallet/84532/send-transaction-batch", r.URL.Path)
		require.Equal(t, testWallet, r.Header.Get("x-backend-wallet-address"))
		require.Equal(t, "tip-Ev1", r.Header.Get("x-idempotency-key"))

		var calls []Call
		require.NoError(t, json.NewDecoder(r.Body).Decode(&calls))
		require.Len(t, calls, 1)
		writeResult(w, map[string][]string{"queueIds": {"q-1", "q-2"}})
	}))

	call, err := RegisterAccountCall(testToken, testFactoryAdmin)
	require.NoError(t, err)

	queueID, err := c.SendBatch(context.Background(), []Call{call}, "tip-Ev1")
	require.NoError(t, err)
	require.Equal(t, "q-1", queueID)
}

func TestSendBatchEmptyQueueIDsIsError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, map[string][]string{"queueIds": {}})
	}))

	_, err := c.SendBatch(context.Background(), nil, "tip-Ev2")
	require.Error(t, err)
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
}

func TestTransferUsesAccountHeaders(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, fmt.Sprintf("/contract/84532/%s/erc20/transfer", testToken), r.URL.Path)
		require.Equal(t, testEOAWallet, r.Header.Get("x-backend-wallet-address"))
		require.Equal(t, testFactoryAdmin, r.Header.Get("x-account-address"))
		require.Equal(t, "withdraw-trig1", r.Header.Get("x-idempotency-key"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "1000000000000000000", body["amount"])
		writeResult(w, map[string]string{"queueId": "q-9"})
	}))

	queueID, err := c.Transfer(context.Background(), testFactoryAdmin, testWallet, "1000000000000000000", "withdraw-trig1")
	require.NoError(t, err)
	require.Equal(t, "q-9", queueID)
}

func TestGetJSONRetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			http.Error(w, "upstream timeout", http.StatusBadGateway)
			return
		}
		writeResult(w, true)
	}))

	deployed, err := c.IsDeployed(context.Background(), "U1", "T1")
	require.NoError(t, err)
	require.True(t, deployed)
	require.Equal(t, int32(3), attempts.Load())
}

func TestPostJSONDoesNotRetry(t *testing.T) {
	var attempts atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "nope", http.StatusInternalServerError)
	}))

	_, err := c.DeployAccount(context.Background(), "U1", "T1", "k")
	require.Error(t, err)
	require.Equal(t, int32(1), attempts.Load(), "writes are protected by idempotency keys, not retries")
}
