package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/amalashkevich/vanitynamereg/crypto"
	"github.com/amalashkevich/vanitynamereg/integrations/exports"
	"github.com/amalashkevich/vanitynamereg/native/names"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type capturedCall struct {
	method      string
	params      map[string]interface{}
	requireAuth bool
}

func stubRPC(t *testing.T, result string, rpcErr *rpcError) *[]capturedCall {
	t.Helper()
	calls := &[]capturedCall{}
	original := namesRPCCall
	namesRPCCall = func(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
		call := capturedCall{method: method, requireAuth: requireAuth}
		if params != nil {
			call.params = params.(map[string]interface{})
		}
		*calls = append(*calls, call)
		return json.RawMessage(result), rpcErr, nil
	}
	t.Cleanup(func() { namesRPCCall = original })
	return calls
}

func forbidRPC(t *testing.T) {
	t.Helper()
	original := namesRPCCall
	namesRPCCall = func(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
		t.Fatalf("unexpected RPC call for method %s", method)
		return nil, nil, nil
	}
	t.Cleanup(func() { namesRPCCall = original })
}

var (
	aliceAccount = crypto.FormatAccount([20]byte{0xA1})
	bobAccount   = crypto.FormatAccount([20]byte{0xB0})
	fixedSalt    = "0x" + strings.Repeat("11", 32)
)

func TestRunWithoutArgsPrintsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "namereg-cli [--rpc URL] <command>") {
		t.Fatalf("expected usage, got %q", stderr.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	forbidRPC(t)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"transfer"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Unknown command: transfer") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestFingerprintMatchesEngine(t *testing.T) {
	forbidRPC(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{"fingerprint", "--name", "alice", "--owner", aliceAccount, "--salt", fixedSalt}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	var out fingerprintResult
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	var salt [32]byte
	for i := range salt {
		salt[i] = 0x11
	}
	want := names.ComputeFingerprint("alice", [20]byte{0xA1}, salt)
	if out.Fingerprint != "0x"+hex.EncodeToString(want[:]) {
		t.Fatalf("fingerprint mismatch: got %s", out.Fingerprint)
	}
	if out.Salt != fixedSalt {
		t.Fatalf("salt mismatch: got %s", out.Salt)
	}
}

func TestFingerprintRandomSalt(t *testing.T) {
	forbidRPC(t)
	original := randomSalt
	randomSalt = func() ([32]byte, error) { return [32]byte{0x42}, nil }
	defer func() { randomSalt = original }()

	var stdout, stderr bytes.Buffer
	code := run([]string{"fingerprint", "--name", "bob", "--owner", bobAccount}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	var out fingerprintResult
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if !strings.HasPrefix(out.Salt, "0x42000000") {
		t.Fatalf("expected generated salt, got %s", out.Salt)
	}
}

func TestFingerprintRejectsInvalidName(t *testing.T) {
	forbidRPC(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{"fingerprint", "--name", "", "--owner", aliceAccount, "--salt", fixedSalt}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "--name") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestCommitComputesFingerprintFromName(t *testing.T) {
	calls := stubRPC(t, `{"fingerprint":"0x00","recordedAt":1}`, nil)
	var stdout, stderr bytes.Buffer
	code := run([]string{"commit", "--caller", aliceAccount, "--name", "alice", "--salt", fixedSalt}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	if len(*calls) != 1 {
		t.Fatalf("expected one call, got %d", len(*calls))
	}
	call := (*calls)[0]
	if call.method != "names_commit" || !call.requireAuth {
		t.Fatalf("unexpected call %+v", call)
	}
	var salt [32]byte
	for i := range salt {
		salt[i] = 0x11
	}
	want := names.ComputeFingerprint("alice", [20]byte{0xA1}, salt)
	if call.params["fingerprint"] != "0x"+hex.EncodeToString(want[:]) {
		t.Fatalf("unexpected fingerprint %v", call.params["fingerprint"])
	}
	if !strings.Contains(stdout.String(), `"recordedAt": 1`) {
		t.Fatalf("expected indented result, got %q", stdout.String())
	}
}

func TestRegisterSendsNormalizedPayment(t *testing.T) {
	calls := stubRPC(t, `{"name":"alice"}`, nil)
	var stdout, stderr bytes.Buffer
	code := run([]string{
		"register",
		"--caller", aliceAccount,
		"--name", "alice",
		"--salt", fixedSalt,
		"--multiplier", "2",
		"--payment", "1.5e3",
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	call := (*calls)[0]
	if call.method != "names_register" || !call.requireAuth {
		t.Fatalf("unexpected call %+v", call)
	}
	if call.params["payment"] != "1500" {
		t.Fatalf("expected payment 1500, got %v", call.params["payment"])
	}
	if call.params["durationMultiplier"] != uint64(2) {
		t.Fatalf("expected multiplier 2, got %v", call.params["durationMultiplier"])
	}
	if _, ok := call.params["owner"]; ok {
		t.Fatalf("owner should be omitted when not provided")
	}
}

func TestMutatingCommandValidation(t *testing.T) {
	forbidRPC(t)
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"register_missing_caller", []string{"register", "--name", "alice", "--salt", fixedSalt, "--payment", "1"}, "--caller is required"},
		{"register_bad_salt", []string{"register", "--caller", aliceAccount, "--name", "alice", "--salt", "0x1234", "--payment", "1"}, "--salt must be a 32-byte hex string"},
		{"register_negative_payment", []string{"register", "--caller", aliceAccount, "--name", "alice", "--salt", fixedSalt, "--payment", "-5"}, "--payment must not be negative"},
		{"renew_missing_name", []string{"renew", "--caller", aliceAccount, "--payment", "1"}, "--name is required"},
		{"refund_bad_caller", []string{"refund", "--caller", "btc1qqqq", "--name", "alice"}, "--caller"},
		{"commit_without_fingerprint", []string{"commit", "--caller", aliceAccount}, "--fingerprint or --name is required"},
		{"events_bad_cursor", []string{"events", "--cursor", "abc"}, "--cursor must be an event sequence number"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(tc.args, &stdout, &stderr); code != 1 {
				t.Fatalf("expected exit 1, got %d", code)
			}
			if !strings.Contains(stderr.String(), tc.want) {
				t.Fatalf("expected %q in %q", tc.want, stderr.String())
			}
		})
	}
}

func TestQueriesDoNotRequireAuth(t *testing.T) {
	calls := stubRPC(t, `true`, nil)
	commands := [][]string{
		{"available", "alice"},
		{"get", "--name", "alice"},
		{"lock", "--name", "alice", "--owner", aliceAccount},
		{"quote", "--name", "alice", "--owner", aliceAccount},
		{"balance", aliceAccount},
		{"params"},
		{"totals"},
		{"events", "--cursor", "3", "--limit", "5"},
		{"history", "--name", "alice"},
	}
	for _, args := range commands {
		var stdout, stderr bytes.Buffer
		if code := run(args, &stdout, &stderr); code != 0 {
			t.Fatalf("%v: exit %d: %s", args, code, stderr.String())
		}
	}
	wantMethods := []string{
		"names_available", "names_get", "names_lock", "names_quote", "names_balance",
		"names_params", "names_totals", "names_events", "names_history",
	}
	if len(*calls) != len(wantMethods) {
		t.Fatalf("expected %d calls, got %d", len(wantMethods), len(*calls))
	}
	for i, call := range *calls {
		if call.method != wantMethods[i] {
			t.Fatalf("call %d: expected %s, got %s", i, wantMethods[i], call.method)
		}
		if call.requireAuth {
			t.Fatalf("%s should not require auth", call.method)
		}
	}
	events := (*calls)[7]
	if events.params["cursor"] != "3" || events.params["limit"] != 5 {
		t.Fatalf("unexpected events params %v", events.params)
	}
}

func TestRPCErrorIsReported(t *testing.T) {
	stubRPC(t, ``, &rpcError{Code: -32034, Message: "commitment_too_young", Data: "names: commitment too young"})
	var stdout, stderr bytes.Buffer
	code := run([]string{"refund", "--caller", aliceAccount, "--name", "alice"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "RPC error -32034: commitment_too_young") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestCallNamesRPCSendsBearerToken(t *testing.T) {
	originalEndpoint, originalToken := rpcEndpoint, rpcAuthToken
	rpcEndpoint = "http://registry.test/rpc"
	rpcAuthToken = "secret"
	defer func() { rpcEndpoint, rpcAuthToken = originalEndpoint, originalToken }()

	originalClient := http.DefaultClient
	http.DefaultClient = &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		body, _ := io.ReadAll(req.Body)
		var payload struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload.Method != "names_refund" || len(payload.Params) != 1 {
			t.Fatalf("unexpected payload %s", body)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"jsonrpc":"2.0","id":1,"result":{"amount":"1000"}}`)),
		}, nil
	})}
	defer func() { http.DefaultClient = originalClient }()

	result, rpcErr, err := callNamesRPC("names_refund", map[string]interface{}{"caller": aliceAccount, "name": "alice"}, true)
	if err != nil || rpcErr != nil {
		t.Fatalf("unexpected failure: %v %v", err, rpcErr)
	}
	if !strings.Contains(string(result), `"1000"`) {
		t.Fatalf("unexpected result %s", result)
	}
}

func TestCallNamesRPCRequiresToken(t *testing.T) {
	originalToken := rpcAuthToken
	rpcAuthToken = ""
	defer func() { rpcAuthToken = originalToken }()

	_, _, err := callNamesRPC("names_commit", map[string]interface{}{}, true)
	if err == nil || !strings.Contains(err.Error(), "VNR_RPC_TOKEN") {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestCallNamesRPCDialErrorIncludesEndpoint(t *testing.T) {
	originalEndpoint := rpcEndpoint
	rpcEndpoint = "http://test.invalid"
	defer func() { rpcEndpoint = originalEndpoint }()

	originalClient := http.DefaultClient
	http.DefaultClient = &http.Client{Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused (test stub)")
	})}
	defer func() { http.DefaultClient = originalClient }()

	var stdout, stderr bytes.Buffer
	code := run([]string{"available", "alice"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "POST http://test.invalid") || !strings.Contains(stderr.String(), "test stub") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestApplyGlobalFlags(t *testing.T) {
	originalEndpoint := rpcEndpoint
	defer func() { rpcEndpoint = originalEndpoint }()

	args, err := applyGlobalFlags([]string{"--rpc", "http://a", "get", "--rpc=http://b", "--name", "x"})
	if err != nil {
		t.Fatalf("apply flags: %v", err)
	}
	if rpcEndpoint != "http://b" {
		t.Fatalf("expected last --rpc to win, got %s", rpcEndpoint)
	}
	if strings.Join(args, " ") != "get --name x" {
		t.Fatalf("unexpected remaining args %v", args)
	}
	if _, err := applyGlobalFlags([]string{"--rpc"}); err == nil {
		t.Fatalf("expected error for missing --rpc value")
	}
}

func TestNormalizeAmount(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "100", want: "100"},
		{in: "1_000", want: "1000"},
		{in: "1e18", want: "1000000000000000000"},
		{in: "2.5e3", want: "2500"},
		{in: "10.0", want: "10"},
		{in: "0", want: "0"},
		{in: "1.5", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := normalizeAmount(tc.in, "--payment")
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error, got %s", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%q: expected %s, got %s", tc.in, tc.want, got)
		}
	}
}

func TestExportVerifiesChecksum(t *testing.T) {
	data := "{\"sequence\":1}\n"
	good, _ := json.Marshal(exportResult{Format: "jsonl", Rows: 1, Checksum: exports.Checksum([]byte(data)), Data: data})
	calls := stubRPC(t, string(good), nil)

	out := filepath.Join(t.TempDir(), "names.jsonl")
	var stdout, stderr bytes.Buffer
	if code := run([]string{"export", "--name", "alice", "--out", out}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	written, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(written) != data {
		t.Fatalf("unexpected export %q", written)
	}
	if (*calls)[0].params["name"] != "alice" || (*calls)[0].params["format"] != "jsonl" {
		t.Fatalf("unexpected params %v", (*calls)[0].params)
	}
}

func TestExportRejectsChecksumMismatch(t *testing.T) {
	bad, _ := json.Marshal(exportResult{Format: "csv", Rows: 1, Checksum: "00", Data: "sequence\n1\n"})
	stubRPC(t, string(bad), nil)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"export", "--format", "csv"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "checksum mismatch") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Fatalf("nothing should be written on mismatch, got %q", stdout.String())
	}
}
