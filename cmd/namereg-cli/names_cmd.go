package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/amalashkevich/vanitynamereg/crypto"
	"github.com/amalashkevich/vanitynamereg/integrations/exports"
	"github.com/amalashkevich/vanitynamereg/native/names"
)

// randomSalt is swapped in tests.
var randomSalt = func() ([32]byte, error) {
	var salt [32]byte
	_, err := rand.Read(salt[:])
	return salt, err
}

func runNamesCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "fingerprint":
		return runFingerprint(args[1:], stdout, stderr)
	case "commit":
		return runCommit(args[1:], stdout, stderr)
	case "register":
		return runRegister(args[1:], stdout, stderr)
	case "renew":
		return runRenew(args[1:], stdout, stderr)
	case "refund":
		return runRefund(args[1:], stdout, stderr)
	case "get":
		return runNameQuery("get", "names_get", args[1:], stdout, stderr)
	case "available":
		return runNameQuery("available", "names_available", args[1:], stdout, stderr)
	case "lock":
		return runLock(args[1:], stdout, stderr)
	case "commitment":
		return runCommitment(args[1:], stdout, stderr)
	case "quote":
		return runQuote(args[1:], stdout, stderr)
	case "params":
		return runNoParams("names_params", stdout, stderr)
	case "totals":
		return runNoParams("names_totals", stdout, stderr)
	case "balance":
		return runBalance(args[1:], stdout, stderr)
	case "events":
		return runEvents(args[1:], stdout, stderr)
	case "history":
		return runHistory(args[1:], stdout, stderr)
	case "export":
		return runExport(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

type fingerprintResult struct {
	Name        string `json:"name"`
	Owner       string `json:"owner"`
	Salt        string `json:"salt"`
	Fingerprint string `json:"fingerprint"`
}

func runFingerprint(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("fingerprint", stderr)
	var name, owner, salt string
	fs.StringVar(&name, "name", "", "name to commit to")
	fs.StringVar(&owner, "owner", "", "future owner (bech32)")
	fs.StringVar(&salt, "salt", "random", "32-byte hex salt or \"random\"")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	result, err := localFingerprint(name, owner, salt)
	if err != nil {
		return printError(stderr, err.Error())
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return printError(stderr, err.Error())
	}
	writeRPCResult(stdout, encoded)
	return 0
}

func localFingerprint(name, owner, saltValue string) (fingerprintResult, error) {
	if err := names.ValidateName(name); err != nil {
		return fingerprintResult{}, fmt.Errorf("--name: %w", err)
	}
	ownerAddr, err := parseAccountFlag(owner, "--owner")
	if err != nil {
		return fingerprintResult{}, err
	}
	var salt [32]byte
	if strings.EqualFold(strings.TrimSpace(saltValue), "random") {
		salt, err = randomSalt()
		if err != nil {
			return fingerprintResult{}, fmt.Errorf("generate salt: %w", err)
		}
	} else {
		salt, err = parseHex32Flag(saltValue, "--salt")
		if err != nil {
			return fingerprintResult{}, err
		}
	}
	fp := names.ComputeFingerprint(name, ownerAddr, salt)
	return fingerprintResult{
		Name:        name,
		Owner:       crypto.FormatAccount(ownerAddr),
		Salt:        "0x" + hex.EncodeToString(salt[:]),
		Fingerprint: "0x" + hex.EncodeToString(fp[:]),
	}, nil
}

func runCommit(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("commit", stderr)
	var caller, fingerprint, name, owner, salt string
	fs.StringVar(&caller, "caller", "", "committing account (bech32)")
	fs.StringVar(&fingerprint, "fingerprint", "", "32-byte hex fingerprint")
	fs.StringVar(&name, "name", "", "compute the fingerprint from this name")
	fs.StringVar(&owner, "owner", "", "owner used with --name (defaults to --caller)")
	fs.StringVar(&salt, "salt", "", "salt used with --name")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := parseAccountFlag(caller, "--caller"); err != nil {
		return printError(stderr, err.Error())
	}
	if strings.TrimSpace(fingerprint) == "" {
		if strings.TrimSpace(name) == "" {
			return printError(stderr, "--fingerprint or --name is required")
		}
		if strings.TrimSpace(salt) == "" {
			return printError(stderr, "--salt is required with --name")
		}
		if strings.TrimSpace(owner) == "" {
			owner = caller
		}
		computed, err := localFingerprint(name, owner, salt)
		if err != nil {
			return printError(stderr, err.Error())
		}
		fingerprint = computed.Fingerprint
	} else if _, err := parseHex32Flag(fingerprint, "--fingerprint"); err != nil {
		return printError(stderr, err.Error())
	}
	return invoke(stdout, stderr, "names_commit", map[string]interface{}{
		"caller":      strings.TrimSpace(caller),
		"fingerprint": strings.TrimSpace(fingerprint),
	}, true)
}

func runRegister(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("register", stderr)
	var caller, name, owner, salt, payment string
	var multiplier uint64
	fs.StringVar(&caller, "caller", "", "paying account (bech32)")
	fs.StringVar(&name, "name", "", "name to register")
	fs.StringVar(&owner, "owner", "", "owner (defaults to --caller)")
	fs.StringVar(&salt, "salt", "", "salt used for the commitment")
	fs.Uint64Var(&multiplier, "multiplier", 1, "number of duration units")
	fs.StringVar(&payment, "payment", "", "payment in wei")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := parseAccountFlag(caller, "--caller"); err != nil {
		return printError(stderr, err.Error())
	}
	if strings.TrimSpace(owner) != "" {
		if _, err := parseAccountFlag(owner, "--owner"); err != nil {
			return printError(stderr, err.Error())
		}
	}
	if err := names.ValidateName(name); err != nil {
		return printError(stderr, "--name: "+err.Error())
	}
	if _, err := parseHex32Flag(salt, "--salt"); err != nil {
		return printError(stderr, err.Error())
	}
	amount, err := normalizeAmount(payment, "--payment")
	if err != nil {
		return printError(stderr, err.Error())
	}
	params := map[string]interface{}{
		"caller":             strings.TrimSpace(caller),
		"name":               name,
		"salt":               strings.TrimSpace(salt),
		"durationMultiplier": multiplier,
		"payment":            amount,
	}
	if strings.TrimSpace(owner) != "" {
		params["owner"] = strings.TrimSpace(owner)
	}
	return invoke(stdout, stderr, "names_register", params, true)
}

func runRenew(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("renew", stderr)
	var caller, name, payment string
	var multiplier uint64
	fs.StringVar(&caller, "caller", "", "owning account (bech32)")
	fs.StringVar(&name, "name", "", "name to renew")
	fs.Uint64Var(&multiplier, "multiplier", 1, "number of duration units")
	fs.StringVar(&payment, "payment", "", "payment in wei")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := parseAccountFlag(caller, "--caller"); err != nil {
		return printError(stderr, err.Error())
	}
	if strings.TrimSpace(name) == "" {
		return printError(stderr, "--name is required")
	}
	amount, err := normalizeAmount(payment, "--payment")
	if err != nil {
		return printError(stderr, err.Error())
	}
	return invoke(stdout, stderr, "names_renew", map[string]interface{}{
		"caller":             strings.TrimSpace(caller),
		"name":               name,
		"durationMultiplier": multiplier,
		"payment":            amount,
	}, true)
}

func runRefund(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("refund", stderr)
	var caller, name string
	fs.StringVar(&caller, "caller", "", "account whose lock is released (bech32)")
	fs.StringVar(&name, "name", "", "name the lock belongs to")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := parseAccountFlag(caller, "--caller"); err != nil {
		return printError(stderr, err.Error())
	}
	if strings.TrimSpace(name) == "" {
		return printError(stderr, "--name is required")
	}
	return invoke(stdout, stderr, "names_refund", map[string]interface{}{
		"caller": strings.TrimSpace(caller),
		"name":   name,
	}, true)
}

func runNameQuery(command, method string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(command, stderr)
	var name string
	fs.StringVar(&name, "name", "", "name to look up")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if name == "" && fs.NArg() > 0 {
		name = fs.Arg(0)
	}
	if strings.TrimSpace(name) == "" {
		return printError(stderr, "--name is required")
	}
	return invoke(stdout, stderr, method, map[string]interface{}{"name": name}, false)
}

func runLock(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("lock", stderr)
	var name, owner string
	fs.StringVar(&name, "name", "", "name the lock belongs to")
	fs.StringVar(&owner, "owner", "", "lock owner (bech32)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(name) == "" {
		return printError(stderr, "--name is required")
	}
	if _, err := parseAccountFlag(owner, "--owner"); err != nil {
		return printError(stderr, err.Error())
	}
	return invoke(stdout, stderr, "names_lock", map[string]interface{}{
		"name":  name,
		"owner": strings.TrimSpace(owner),
	}, false)
}

func runCommitment(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("commitment", stderr)
	var fingerprint string
	fs.StringVar(&fingerprint, "fingerprint", "", "32-byte hex fingerprint")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := parseHex32Flag(fingerprint, "--fingerprint"); err != nil {
		return printError(stderr, err.Error())
	}
	return invoke(stdout, stderr, "names_commitment", map[string]interface{}{
		"fingerprint": strings.TrimSpace(fingerprint),
	}, false)
}

func runQuote(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("quote", stderr)
	var name, owner string
	var multiplier uint64
	fs.StringVar(&name, "name", "", "name to price")
	fs.StringVar(&owner, "owner", "", "prospective owner (bech32)")
	fs.Uint64Var(&multiplier, "multiplier", 1, "number of duration units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := names.ValidateName(name); err != nil {
		return printError(stderr, "--name: "+err.Error())
	}
	if _, err := parseAccountFlag(owner, "--owner"); err != nil {
		return printError(stderr, err.Error())
	}
	return invoke(stdout, stderr, "names_quote", map[string]interface{}{
		"name":               name,
		"owner":              strings.TrimSpace(owner),
		"durationMultiplier": multiplier,
	}, false)
}

func runNoParams(method string, stdout, stderr io.Writer) int {
	return invoke(stdout, stderr, method, nil, false)
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	var address string
	fs.StringVar(&address, "address", "", "account (bech32)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if address == "" && fs.NArg() > 0 {
		address = fs.Arg(0)
	}
	if _, err := parseAccountFlag(address, "--address"); err != nil {
		return printError(stderr, err.Error())
	}
	return invoke(stdout, stderr, "names_balance", map[string]interface{}{
		"address": strings.TrimSpace(address),
	}, false)
}

func runEvents(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("events", stderr)
	var cursor string
	var limit int
	fs.StringVar(&cursor, "cursor", "", "return events after this cursor")
	fs.IntVar(&limit, "limit", 0, "maximum number of events")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if cursor = strings.TrimSpace(cursor); cursor != "" {
		if _, err := strconv.ParseUint(cursor, 10, 64); err != nil {
			return printError(stderr, "--cursor must be an event sequence number")
		}
	}
	if limit < 0 {
		return printError(stderr, "--limit must not be negative")
	}
	params := map[string]interface{}{}
	if cursor != "" {
		params["cursor"] = cursor
	}
	if limit > 0 {
		params["limit"] = limit
	}
	return invoke(stdout, stderr, "names_events", params, false)
}

func runHistory(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("history", stderr)
	var name string
	var limit int
	fs.StringVar(&name, "name", "", "name to list events for")
	fs.IntVar(&limit, "limit", 0, "maximum number of events")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(name) == "" {
		return printError(stderr, "--name is required")
	}
	params := map[string]interface{}{"name": name}
	if limit > 0 {
		params["limit"] = limit
	}
	return invoke(stdout, stderr, "names_history", params, false)
}

type exportResult struct {
	Format   string `json:"format"`
	Rows     int    `json:"rows"`
	Checksum string `json:"checksum"`
	Data     string `json:"data"`
}

func runExport(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("export", stderr)
	var format, name, out string
	var after uint64
	var limit int
	fs.StringVar(&format, "format", "jsonl", "jsonl or csv")
	fs.StringVar(&name, "name", "", "limit the export to one name")
	fs.Uint64Var(&after, "after", 0, "export events after this sequence")
	fs.IntVar(&limit, "limit", 0, "maximum number of rows")
	fs.StringVar(&out, "out", "", "file to write (stdout when empty)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "jsonl" && format != "csv" {
		return printError(stderr, "--format must be jsonl or csv")
	}
	params := map[string]interface{}{"format": format}
	if name != "" {
		params["name"] = name
	}
	if after > 0 {
		params["after"] = after
	}
	if limit > 0 {
		params["limit"] = limit
	}
	raw, rpcErr, err := namesRPCCall("names_export", params, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	var result exportResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return printError(stderr, fmt.Sprintf("decode export: %v", err))
	}
	if got := exports.Checksum([]byte(result.Data)); got != result.Checksum {
		return printError(stderr, fmt.Sprintf("checksum mismatch: server %s, local %s", result.Checksum, got))
	}
	if strings.TrimSpace(out) == "" {
		fmt.Fprint(stdout, result.Data)
		return 0
	}
	if err := os.WriteFile(out, []byte(result.Data), 0o644); err != nil {
		return printError(stderr, fmt.Sprintf("write export: %v", err))
	}
	fmt.Fprintf(stdout, "wrote %d rows to %s (blake3 %s)\n", result.Rows, out, result.Checksum)
	return 0
}

func invoke(stdout, stderr io.Writer, method string, params interface{}, requireAuth bool) int {
	result, rpcErr, err := namesRPCCall(method, params, requireAuth)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func parseAccountFlag(value, flagName string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("%s is required", flagName)
	}
	addr, err := crypto.ParseAccount(trimmed)
	if err != nil {
		return [20]byte{}, fmt.Errorf("%s: %v", flagName, err)
	}
	return addr, nil
}

func parseHex32Flag(value, flagName string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return out, fmt.Errorf("%s is required", flagName)
	}
	cleaned := strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if len(cleaned) != 64 {
		return out, fmt.Errorf("%s must be a 32-byte hex string", flagName)
	}
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return out, fmt.Errorf("%s must be a 32-byte hex string", flagName)
	}
	copy(out[:], decoded)
	return out, nil
}

var errAmountFormat = errors.New("invalid amount format")

// normalizeAmount converts decimal or scientific notation ("1.5e18") into an
// integer wei string. Zero is accepted.
func normalizeAmount(value, flagName string) (string, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return "", fmt.Errorf("%s is required", flagName)
	}
	var exponent int
	base := trimmed
	if idx := strings.IndexAny(trimmed, "eE"); idx != -1 {
		base = trimmed[:idx]
		expValue, err := strconv.ParseInt(strings.TrimSpace(trimmed[idx+1:]), 10, 32)
		if err != nil {
			return "", fmt.Errorf("invalid scientific notation in %s", flagName)
		}
		exponent = int(expValue)
	}
	base = strings.TrimSpace(strings.TrimPrefix(base, "+"))
	if strings.HasPrefix(base, "-") {
		return "", fmt.Errorf("%s must not be negative", flagName)
	}
	parts := strings.Split(base, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("%s: %w", flagName, errAmountFormat)
	}
	integerPart := parts[0]
	fractionalPart := ""
	if len(parts) == 2 {
		fractionalPart = parts[1]
	}
	digits := integerPart + fractionalPart
	if digits == "" || !isDigits(digits) {
		return "", fmt.Errorf("%s: %w", flagName, errAmountFormat)
	}
	digits = strings.TrimLeft(digits, "0")
	fracLen := len(fractionalPart)
	for fracLen > 0 && len(digits) > 0 && digits[len(digits)-1] == '0' {
		digits = digits[:len(digits)-1]
		fracLen--
	}
	if digits == "" {
		return "0", nil
	}
	totalExponent := exponent - fracLen
	if totalExponent < 0 {
		return "", fmt.Errorf("%s must be a whole number of wei", flagName)
	}
	return digits + strings.Repeat("0", totalExponent), nil
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
