package rpc

import (
	"net/http"
	"strings"

	"github.com/amalashkevich/vanitynamereg/integrations/exports"
	"github.com/amalashkevich/vanitynamereg/integrations/indexer"
	"github.com/amalashkevich/vanitynamereg/native/names"
)

type namesExportParams struct {
	Format string `json:"format,omitempty"`
	Name   string `json:"name,omitempty"`
	After  uint64 `json:"after,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type exportJSON struct {
	Format   string `json:"format"`
	Rows     int    `json:"rows"`
	Checksum string `json:"checksum"`
	Data     string `json:"data"`
}

// handleNamesExport renders indexed history as JSONL or CSV. With a name the
// export covers that name; otherwise it covers every notification after the
// given sequence.
func (s *Server) handleNamesExport(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeNamesUnavailable, "unavailable", "indexer not configured")
		return
	}
	var params namesExportParams
	if len(req.Params) > 0 && !decodeSingleParam(w, req, &params) {
		return
	}
	format := strings.ToLower(strings.TrimSpace(params.Format))
	if format == "" {
		format = "jsonl"
	}
	if format != "jsonl" && format != "csv" {
		writeError(w, http.StatusBadRequest, req.ID, codeNamesInvalidParams, "invalid_params", "format must be jsonl or csv")
		return
	}
	limit := params.Limit
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var (
		rows []indexer.NameEvent
		err  error
	)
	if params.Name != "" {
		if err := names.ValidateName(params.Name); err != nil {
			writeNamesError(w, req.ID, err)
			return
		}
		rows, err = s.history.History(r.Context(), params.Name, limit)
	} else {
		rows, err = s.history.Since(r.Context(), params.After, limit)
	}
	if err != nil {
		writeNamesError(w, req.ID, err)
		return
	}

	var (
		data     []byte
		checksum string
	)
	if format == "csv" {
		data, checksum, err = exports.NamesCSV(rows)
	} else {
		data, checksum, err = exports.NamesJSONL(rows)
	}
	if err != nil {
		writeNamesError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, exportJSON{
		Format:   format,
		Rows:     len(rows),
		Checksum: checksum,
		Data:     string(data),
	})
}
