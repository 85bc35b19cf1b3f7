package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Spec-DY/Drone-Panel/internal/model"
	"github.com/Spec-DY/Drone-Panel/internal/store"
)

// Receipt statuses.
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// Failure kinds carried by receipts. They are stable across releases.
const (
	KindValidation = "validation_error"
	KindStore      = "store_failure"
	KindInternal   = "internal_error"
)

// Receipt is the transport-neutral outcome of an ingestion call.
type Receipt struct {
	Status        string `json:"status"`
	Kind          string `json:"kind,omitempty"`
	Error         string `json:"error,omitempty"`
	ID            int64  `json:"id,omitempty"`
	DeviceID      string `json:"deviceId,omitempty"`
	Timestamp     *int64 `json:"timestamp,omitempty"`
	FormattedTime string `json:"formattedTime,omitempty"`
	Count         int    `json:"count,omitempty"`
}

// Accepted echoes the identity of a stored sample.
func Accepted(rec model.StoredRecord) Receipt {
	ts := rec.Timestamp
	return Receipt{
		Status:        StatusAccepted,
		ID:            rec.ID,
		DeviceID:      rec.DeviceID,
		Timestamp:     &ts,
		FormattedTime: rec.FormattedTime,
	}
}

// AcceptedBatch reports a committed batch.
func AcceptedBatch(count int) Receipt {
	return Receipt{Status: StatusAccepted, Count: count}
}

// ReceiptFor classifies an ingestion error.
func ReceiptFor(err error) Receipt {
	var (
		verr *model.ValidationError
		serr *store.Failure
	)
	switch {
	case errors.As(err, &verr):
		return Receipt{Status: StatusRejected, Kind: KindValidation, Error: verr.Error()}
	case errors.As(err, &serr):
		return Receipt{Status: StatusFailed, Kind: KindStore, Error: serr.Error()}
	default:
		return Receipt{Status: StatusFailed, Kind: KindInternal, Error: err.Error()}
	}
}

// DecodeOne parses a single JSON sample. Malformed input is a validation error.
func DecodeOne(data []byte) (model.Payload, error) {
	var p model.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Payload{}, model.Invalid("", fmt.Sprintf("malformed sample: %v", err))
	}
	return p, nil
}

// DecodeBatch parses a JSON array of samples.
func DecodeBatch(data []byte) ([]model.Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, model.Invalid("batch", "must be a JSON array of samples")
	}

	var payloads []model.Payload
	if err := json.Unmarshal(trimmed, &payloads); err != nil {
		return nil, model.Invalid("batch", fmt.Sprintf("malformed: %v", err))
	}
	return payloads, nil
}
