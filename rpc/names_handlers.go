package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/amalashkevich/vanitynamereg/core"
	"github.com/amalashkevich/vanitynamereg/crypto"
	"github.com/amalashkevich/vanitynamereg/native/names"
)

const (
	codeNamesInvalidParams = -32031
	codeNamesNotFound      = -32032
	codeNamesForbidden     = -32033
	codeNamesConflict      = -32034
	codeNamesInternal      = -32035
	codeNamesUnavailable   = -32036
)

const maxHistoryLimit = 1000

func (s *Server) registerMethods() map[string]methodHandler {
	return map[string]methodHandler{
		"names_commit":      s.handleNamesCommit,
		"names_register":    s.handleNamesRegister,
		"names_renew":       s.handleNamesRenew,
		"names_refund":      s.handleNamesRefund,
		"names_fingerprint": s.handleNamesFingerprint,
		"names_get":         s.handleNamesGet,
		"names_available":   s.handleNamesAvailable,
		"names_lock":        s.handleNamesLock,
		"names_commitment":  s.handleNamesCommitment,
		"names_quote":       s.handleNamesQuote,
		"names_params":      s.handleNamesParams,
		"names_totals":      s.handleNamesTotals,
		"names_events":      s.handleNamesEvents,
		"names_history":     s.handleNamesHistory,
		"names_export":      s.handleNamesExport,
		"names_balance":     s.handleNamesBalance,
	}
}

type namesCommitParams struct {
	Caller      string `json:"caller"`
	Fingerprint string `json:"fingerprint"`
}

type namesRegisterParams struct {
	Caller             string `json:"caller"`
	Name               string `json:"name"`
	Owner              string `json:"owner,omitempty"`
	Salt               string `json:"salt"`
	DurationMultiplier uint64 `json:"durationMultiplier"`
	Payment            string `json:"payment"`
}

type namesRenewParams struct {
	Caller             string `json:"caller"`
	Name               string `json:"name"`
	DurationMultiplier uint64 `json:"durationMultiplier"`
	Payment            string `json:"payment"`
}

type namesRefundParams struct {
	Caller string `json:"caller"`
	Name   string `json:"name"`
}

type namesFingerprintParams struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
	Salt  string `json:"salt"`
}

type namesNameParams struct {
	Name string `json:"name"`
}

type namesLockParams struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

type namesQuoteParams struct {
	Name               string `json:"name"`
	Owner              string `json:"owner"`
	DurationMultiplier uint64 `json:"durationMultiplier"`
}

type namesEventsParams struct {
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type namesHistoryParams struct {
	Name  string `json:"name"`
	Limit int    `json:"limit,omitempty"`
}

type namesAddressParams struct {
	Address string `json:"address"`
}

type registrationJSON struct {
	Name      string `json:"name"`
	NameHash  string `json:"nameHash"`
	Owner     string `json:"owner"`
	ExpiresAt int64  `json:"expiresAt"`
	Available bool   `json:"available"`
}

type lockJSON struct {
	Name      string `json:"name"`
	NameHash  string `json:"nameHash"`
	Owner     string `json:"owner"`
	Amount    string `json:"amount"`
	ExpiresAt int64  `json:"expiresAt"`
}

type commitmentJSON struct {
	Fingerprint string `json:"fingerprint"`
	RecordedAt  int64  `json:"recordedAt"`
}

type quoteJSON struct {
	Fee     string `json:"fee"`
	LockDue string `json:"lockDue"`
	Total   string `json:"total"`
}

type refundJSON struct {
	Name   string `json:"name"`
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

type paramsJSON struct {
	MinCommitmentAge      int64  `json:"minCommitmentAge"`
	MaxCommitmentAge      int64  `json:"maxCommitmentAge"`
	MinDurationMultiplier uint64 `json:"minDurationMultiplier"`
	FeePerSymbol          string `json:"feePerSymbol"`
	LockAmount            string `json:"lockAmount"`
	DurationUnit          int64  `json:"durationUnit"`
}

type totalsJSON struct {
	Vault        string `json:"vault"`
	VaultBalance string `json:"vaultBalance"`
	Locked       string `json:"locked"`
	Fees         string `json:"fees"`
	Height       uint64 `json:"height"`
	StateRoot    string `json:"stateRoot"`
}

type balanceJSON struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

type historyEntryJSON struct {
	Sequence    uint64 `json:"sequence"`
	Height      uint64 `json:"height"`
	Type        string `json:"type"`
	Name        string `json:"name,omitempty"`
	Owner       string `json:"owner,omitempty"`
	Fee         string `json:"fee,omitempty"`
	Locked      string `json:"locked,omitempty"`
	Amount      string `json:"amount,omitempty"`
	ExpiresAt   int64  `json:"expiresAt,omitempty"`
	Timestamp   int64  `json:"timestamp"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

func decodeSingleParam(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeNamesInvalidParams, "invalid_params", "exactly one parameter object expected")
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeNamesInvalidParams, "invalid_params", err.Error())
		return false
	}
	return true
}

func writeInvalidParams(w http.ResponseWriter, id interface{}, err error) {
	writeError(w, http.StatusBadRequest, id, codeNamesInvalidParams, "invalid_params", err.Error())
}

// authorizeMutation authenticates the request and binds its principal to
// caller.
func (s *Server) authorizeMutation(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller [20]byte) bool {
	p, authErr := s.requireAuth(r)
	if authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return false
	}
	if authErr := p.authorize(caller); authErr != nil {
		writeError(w, http.StatusForbidden, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return false
	}
	return true
}

func (s *Server) handleNamesCommit(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params namesCommitParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := parseAccount(params.Caller, "caller")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	fingerprint, err := parseHash32(params.Fingerprint, "fingerprint")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	if !s.authorizeMutation(w, r, req, caller) {
		return
	}
	if err := s.node.NamesCommit(r.Context(), caller, fingerprint); err != nil {
		writeNamesError(w, req.ID, err)
		return
	}
	commitment, ok, err := s.node.NamesCommitment(fingerprint)
	if err != nil || !ok {
		writeNamesError(w, req.ID, fmt.Errorf("reload commitment: %w", errOrMissing(err)))
		return
	}
	writeResult(w, req.ID, formatCommitment(commitment))
}

func (s *Server) handleNamesRegister(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params namesRegisterParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := parseAccount(params.Caller, "caller")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	owner := caller
	if strings.TrimSpace(params.Owner) != "" {
		owner, err = parseAccount(params.Owner, "owner")
		if err != nil {
			writeInvalidParams(w, req.ID, err)
			return
		}
	}
	salt, err := parseHash32(params.Salt, "salt")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	payment, err := parseAmount(params.Payment)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	if !s.authorizeMutation(w, r, req, caller) {
		return
	}
	reg, err := s.node.NamesRegister(r.Context(), caller, params.Name, owner, salt, params.DurationMultiplier, payment)
	if err != nil {
		writeNamesError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatRegistration(reg, false))
}

func (s *Server) handleNamesRenew(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params namesRenewParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := parseAccount(params.Caller, "caller")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	payment, err := parseAmount(params.Payment)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	if !s.authorizeMutation(w, r, req, caller) {
		return
	}
	reg, err := s.node.NamesRenew(r.Context(), caller, params.Name, params.DurationMultiplier, payment)
	if err != nil {
		writeNamesError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatRegistration(reg, false))
}

func (s *Server) handleNamesRefund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params namesRefundParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := parseAccount(params.Caller, "caller")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	if !s.authorizeMutation(w, r, req, caller) {
		return
	}
	amount, err := s.node.NamesRefund(r.Context(), caller, params.Name)
	if err != nil {
		writeNamesError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, refundJSON{Name: params.Name, Owner: crypto.FormatAccount(caller), Amount: amount.String()})
}

func (s *Server) handleNamesFingerprint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params namesFingerprintParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	if err := names.ValidateName(params.Name); err != nil {
		writeNamesError(w, req.ID, err)
		return
	}
	owner, err := parseAccount(params.Owner, "owner")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	salt, err := parseHash32(params.Salt, "salt")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	fp := names.ComputeFingerprint(params.Name, owner, salt)
	writeResult(w, req.ID, map[string]string{"fingerprint": "0x" + hex.EncodeToString(fp[:])})
}

func (s *Server) handleNamesGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params namesNameParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	reg, ok, err := s.node.NamesRegistration(params.Name)
	if err != nil {
		writeNamesError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNamesNotFound, "not_found", "name not registered")
		return
	}
	available, err := s.node.NamesAvailable(params.Name)
	if err != nil {
		writeNamesError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatRegistration(reg, available))
}

func (s *Server) handleNamesAvailable(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params namesNameParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	available, err := s.node.NamesAvailable(params.Name)
	if err != nil {
		writeNamesError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, available)
}

func (s *Server) handleNamesLock(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params namesLockParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	owner, err := parseAccount(params.Owner, "owner")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	lock, ok, err := s.node.NamesLock(params.Name, owner)
	if err != nil {
		writeNamesError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNamesNotFound, "not_found", "no lock recorded")
		return
	}
	writeResult(w, req.ID, lockJSON{
		Name:      params.Name,
		NameHash:  "0x" + hex.EncodeToString(lock.NameHash[:]),
		Owner:     crypto.FormatAccount(lock.Owner),
		Amount:    amountString(lock.Amount),
		ExpiresAt: lock.ExpiresAt,
	})
}

func (s *Server) handleNamesCommitment(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Fingerprint string `json:"fingerprint"`
	}
	if !decodeSingleParam(w, req, &params) {
		return
	}
	fingerprint, err := parseHash32(params.Fingerprint, "fingerprint")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	commitment, ok, err := s.node.NamesCommitment(fingerprint)
	if err != nil {
		writeNamesError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNamesNotFound, "not_found", "no commitment recorded")
		return
	}
	writeResult(w, req.ID, formatCommitment(commitment))
}

func (s *Server) handleNamesQuote(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params namesQuoteParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	owner, err := parseAccount(params.Owner, "owner")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	quote, err := s.node.NamesQuote(params.Name, owner, params.DurationMultiplier)
	if err != nil {
		writeNamesError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, quoteJSON{
		Fee:     amountString(quote.Fee),
		LockDue: amountString(quote.LockDue),
		Total:   amountString(quote.Total),
	})
}

func (s *Server) handleNamesParams(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	p := s.node.NamesParams()
	writeResult(w, req.ID, paramsJSON{
		MinCommitmentAge:      p.MinCommitmentAge,
		MaxCommitmentAge:      p.MaxCommitmentAge,
		MinDurationMultiplier: p.MinDurationMultiplier,
		FeePerSymbol:          amountString(p.FeePerSymbol),
		LockAmount:            amountString(p.LockAmount),
		DurationUnit:          p.DurationUnit,
	})
}

func (s *Server) handleNamesTotals(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	totals, err := s.node.NamesTotals()
	if err != nil {
		writeNamesError(w, req.ID, err)
		return
	}
	vault := s.node.NamesVaultAddress()
	account, err := s.node.GetAccount(vault)
	if err != nil {
		writeNamesError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, totalsJSON{
		Vault:        crypto.FormatAccount(vault),
		VaultBalance: amountString(account.Balance),
		Locked:       amountString(totals.Locked),
		Fees:         amountString(totals.Fees),
		Height:       s.node.Height(),
		StateRoot:    s.node.StateRoot().Hex(),
	})
}

func (s *Server) handleNamesEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params namesEventsParams
	if len(req.Params) > 0 && !decodeSingleParam(w, req, &params) {
		return
	}
	limit := params.Limit
	if limit <= 0 || limit > s.cfg.EventBacklog {
		limit = s.cfg.EventBacklog
	}
	writeResult(w, req.ID, s.node.RecentEvents(params.Cursor, limit))
}

func (s *Server) handleNamesHistory(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeNamesUnavailable, "unavailable", "indexer not configured")
		return
	}
	var params namesHistoryParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	if err := names.ValidateName(params.Name); err != nil {
		writeNamesError(w, req.ID, err)
		return
	}
	limit := params.Limit
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	rows, err := s.history.History(r.Context(), params.Name, limit)
	if err != nil {
		writeNamesError(w, req.ID, err)
		return
	}
	out := make([]historyEntryJSON, 0, len(rows))
	for _, row := range rows {
		out = append(out, historyEntryJSON{
			Sequence:    row.Sequence,
			Height:      row.Height,
			Type:        row.Type,
			Name:        row.Name,
			Owner:       row.Owner,
			Fee:         row.Fee,
			Locked:      row.Locked,
			Amount:      row.Amount,
			ExpiresAt:   row.ExpiresAt,
			Timestamp:   row.Timestamp,
			Fingerprint: row.Fingerprint,
		})
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleNamesBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params namesAddressParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	addr, err := parseAccount(params.Address, "address")
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	account, err := s.node.GetAccount(addr)
	if err != nil {
		writeNamesError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceJSON{
		Address: crypto.FormatAccount(addr),
		Balance: amountString(account.Balance),
		Nonce:   account.Nonce,
	})
}

func formatRegistration(reg *names.Registration, available bool) registrationJSON {
	return registrationJSON{
		Name:      reg.Name,
		NameHash:  "0x" + hex.EncodeToString(reg.NameHash[:]),
		Owner:     crypto.FormatAccount(reg.Owner),
		ExpiresAt: reg.ExpiresAt,
		Available: available,
	}
}

func formatCommitment(c *names.Commitment) commitmentJSON {
	return commitmentJSON{
		Fingerprint: "0x" + hex.EncodeToString(c.Fingerprint[:]),
		RecordedAt:  c.RecordedAt,
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func errOrMissing(err error) error {
	if err != nil {
		return err
	}
	return errors.New("not found")
}

func parseAccount(value, field string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("%s required", field)
	}
	addr, err := crypto.ParseAccount(trimmed)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return addr, nil
}

// parseHash32 accepts 64 hex characters with an optional 0x prefix.
func parseHash32(value, field string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return out, fmt.Errorf("%s required", field)
	}
	cleaned := strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if len(cleaned) != 64 {
		return out, fmt.Errorf("%s must be 32 bytes of hex", field)
	}
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return out, fmt.Errorf("invalid %s: %w", field, err)
	}
	copy(out[:], decoded)
	return out, nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("payment required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid payment")
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("payment must not be negative")
	}
	return amount, nil
}

func writeNamesError(w http.ResponseWriter, id interface{}, err error) {
	if err == nil {
		return
	}
	status := http.StatusInternalServerError
	code := codeNamesInternal
	message := names.Reason(err)
	switch {
	case errors.Is(err, core.ErrNodeClosed):
		status = http.StatusServiceUnavailable
		code = codeNamesUnavailable
		message = "unavailable"
	case errors.Is(err, names.ErrInvalidName),
		errors.Is(err, names.ErrDurationTooShort),
		errors.Is(err, names.ErrDurationOverflow):
		status = http.StatusBadRequest
		code = codeNamesInvalidParams
	case errors.Is(err, names.ErrNotOwner):
		status = http.StatusForbidden
		code = codeNamesForbidden
	case errors.Is(err, names.ErrNoLockFound):
		status = http.StatusNotFound
		code = codeNamesNotFound
	case names.Reason(err) != "internal":
		status = http.StatusConflict
		code = codeNamesConflict
	default:
		message = "internal_error"
	}
	writeError(w, status, id, code, message, err.Error())
}
