package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/amalashkevich/vanitynamereg/core"
	"github.com/amalashkevich/vanitynamereg/core/genesis"
	"github.com/amalashkevich/vanitynamereg/crypto"
	"github.com/amalashkevich/vanitynamereg/native/names"
	"github.com/amalashkevich/vanitynamereg/storage"
)

const testAuthToken = "rpc-test-token"
const testJWTSecret = "rpc-test-secret"

type testEnv struct {
	node   *core.Node
	server *Server
	http   *httptest.Server
	now    int64
	alice  [20]byte
	bob    [20]byte
}

func newTestEnv(t *testing.T, cfg ServerConfig, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{now: 1_000, alice: [20]byte{0xA1}, bob: [20]byte{0xB0}}
	doc := fmt.Sprintf("alloc:\n  %s: \"10000\"\n  %s: \"10000\"\n",
		crypto.FormatAccount(env.alice), crypto.FormatAccount(env.bob))
	spec, err := genesis.ParseSpec([]byte(doc))
	if err != nil {
		t.Fatalf("parse genesis: %v", err)
	}
	params := names.Params{
		MinCommitmentAge:      10,
		MaxCommitmentAge:      100,
		MinDurationMultiplier: 1,
		FeePerSymbol:          big.NewInt(10),
		LockAmount:            big.NewInt(1000),
		DurationUnit:          1000,
	}
	node, err := core.NewNode(storage.NewMemDB(), params, spec)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	node.SetNowFunc(func() int64 { return env.now })
	t.Cleanup(node.Close)
	if cfg.AuthToken == "" && cfg.JWTSecret == "" {
		cfg.AuthToken = testAuthToken
	}
	srv, err := NewServer(node, cfg, opts...)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	env.node = node
	env.server = srv
	env.http = httptest.NewServer(srv.Handler())
	t.Cleanup(env.http.Close)
	return env
}

// call posts a JSON-RPC request and returns the raw result and error.
func (e *testEnv) call(t *testing.T, bearer, method string, param interface{}) (json.RawMessage, *RPCError, int) {
	t.Helper()
	req := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if param != nil {
		req["params"] = []interface{}{param}
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	httpReq, err := http.NewRequest(http.MethodPost, e.http.URL+"/", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return decoded.Result, decoded.Error, resp.StatusCode
}

func hex32(b [32]byte) string {
	return "0x" + hex.EncodeToString(b[:])
}
