package exports

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/amalashkevich/vanitynamereg/integrations/indexer"
)

var csvHeader = []string{"sequence", "height", "type", "name", "owner", "fee", "locked", "amount", "expires_at", "timestamp"}

// NamesCSV builds a CSV export of indexed registry notifications and returns
// the payload alongside its checksum.
func NamesCSV(rows []indexer.NameEvent) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write(csvHeader); err != nil {
		return nil, "", err
	}
	for _, row := range rows {
		record := []string{
			strconv.FormatUint(row.Sequence, 10),
			strconv.FormatUint(row.Height, 10),
			row.Type,
			row.Name,
			row.Owner,
			row.Fee,
			row.Locked,
			row.Amount,
			strconv.FormatInt(row.ExpiresAt, 10),
			strconv.FormatInt(row.Timestamp, 10),
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	return data, Checksum(data), nil
}
