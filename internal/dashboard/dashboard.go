// Package dashboard holds consumer-side transforms over read API results.
package dashboard

import (
	"sort"

	"github.com/Spec-DY/Drone-Panel/internal/model"
)

// NewestPerDevice keeps only the record with the highest timestamp for each
// device. Equal timestamps are resolved by the higher id. The result is ordered
// newest first, then by device id.
func NewestPerDevice(records []model.StoredRecord) []model.StoredRecord {
	newest := make(map[string]model.StoredRecord, len(records))
	for _, r := range records {
		cur, ok := newest[r.DeviceID]
		if !ok || r.Timestamp > cur.Timestamp || (r.Timestamp == cur.Timestamp && r.ID > cur.ID) {
			newest[r.DeviceID] = r
		}
	}

	out := make([]model.StoredRecord, 0, len(newest))
	for _, r := range newest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].DeviceID < out[j].DeviceID
	})
	return out
}
