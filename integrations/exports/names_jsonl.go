package exports

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/amalashkevich/vanitynamereg/integrations/indexer"
)

// NamesJSONL builds a JSON Lines export of indexed registry notifications and
// returns the payload alongside its checksum. Empty attributes are omitted.
func NamesJSONL(rows []indexer.NameEvent) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, row := range rows {
		payload := map[string]interface{}{
			"sequence":  row.Sequence,
			"height":    row.Height,
			"type":      row.Type,
			"timestamp": time.Unix(row.Timestamp, 0).UTC().Format(time.RFC3339),
		}
		optional := map[string]string{
			"name":        row.Name,
			"nameHash":    row.NameHash,
			"owner":       row.Owner,
			"caller":      row.Caller,
			"fingerprint": row.Fingerprint,
			"fee":         row.Fee,
			"locked":      row.Locked,
			"amount":      row.Amount,
		}
		for key, value := range optional {
			if value != "" {
				payload[key] = value
			}
		}
		if row.ExpiresAt != 0 {
			payload["expiresAt"] = row.ExpiresAt
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	return data, Checksum(data), nil
}
