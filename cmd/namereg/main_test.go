package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amalashkevich/vanitynamereg/config"
	"github.com/amalashkevich/vanitynamereg/crypto"
)

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.RPC.AuthToken = "daemon-token"
	cfg.Indexer.DSN = filepath.Join(dir, "index.db")

	account := crypto.FormatAccount([20]byte{0xA1})
	genesisPath := filepath.Join(dir, "genesis.yaml")
	doc := "genesisTime: \"2024-01-01T00:00:00Z\"\nalloc:\n  " + account + ": \"5000\"\n"
	require.NoError(t, os.WriteFile(genesisPath, []byte(doc), 0o644))
	return cfg, genesisPath
}

func rpcCall(t *testing.T, url, method string, params interface{}) json.RawMessage {
	t.Helper()
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method, "params": []interface{}{}}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.Nil(t, decoded.Error)
	return decoded.Result
}

func rpcObject(t *testing.T, url, method string, params interface{}) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rpcCall(t, url, method, params), &out))
	return out
}

func TestNewAppWiresNodeAndRPC(t *testing.T) {
	cfg, genesisPath := testConfig(t)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	a, err := newApp(cfg, genesisPath, logger)
	require.NoError(t, err)
	require.NotNil(t, a.indexer)
	require.Nil(t, a.dispatcher)

	srv := httptest.NewServer(a.server.Handler())
	account := crypto.FormatAccount([20]byte{0xA1})

	balance := rpcObject(t, srv.URL, "names_balance", map[string]string{"address": account})
	require.Equal(t, "5000", balance["balance"])

	params := rpcObject(t, srv.URL, "names_params", nil)
	require.Equal(t, cfg.Registry.LockAmountWei, params["lockAmount"])
	require.Equal(t, cfg.Registry.FeePerSymbolWei, params["feePerSymbol"])

	history := rpcCall(t, srv.URL, "names_history", map[string]string{"name": "alice"})
	require.JSONEq(t, `[]`, string(history))

	srv.Close()
	a.Close()

	reopened, err := newApp(cfg, "", logger)
	require.NoError(t, err)
	defer reopened.Close()
	srv = httptest.NewServer(reopened.server.Handler())
	defer srv.Close()
	balance = rpcObject(t, srv.URL, "names_balance", map[string]string{"address": account})
	require.Equal(t, "5000", balance["balance"])
}

func TestNewAppRejectsBadGenesis(t *testing.T) {
	cfg, _ := testConfig(t)
	missing := filepath.Join(t.TempDir(), "missing.yaml")
	_, err := newApp(cfg, missing, nil)
	require.Error(t, err)
}

func TestAppRunStopsOnCancel(t *testing.T) {
	cfg, genesisPath := testConfig(t)
	cfg.Indexer.DSN = ""
	a, err := newApp(cfg, genesisPath, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestResolveGenesisPathPrecedence(t *testing.T) {
	env := map[string]string{genesisPathEnv: "/env/genesis.yaml"}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	require.Equal(t, "/flag.yaml", resolveGenesisPath(" /flag.yaml ", "/cfg.yaml", lookup))
	require.Equal(t, "/env/genesis.yaml", resolveGenesisPath("", "/cfg.yaml", lookup))
	require.Equal(t, "/cfg.yaml", resolveGenesisPath("", "/cfg.yaml", nil))
	require.Equal(t, "", resolveGenesisPath("", "", nil))
}
