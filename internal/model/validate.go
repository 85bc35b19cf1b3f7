package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// ValidationError reports a sample that cannot be accepted. Index is the
// position of the offending element within a batch, or -1 for single samples.
type ValidationError struct {
	Field  string
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.Index >= 0 {
		fmt.Fprintf(&b, "sample %d: ", e.Index)
	}
	if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(" ")
	}
	b.WriteString(e.Reason)
	return b.String()
}

// Invalid builds a ValidationError that is not tied to a batch position.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Index: -1, Reason: reason}
}

// Validate checks the required identity of a typed sample. Numeric fields
// are accepted as reported; physical plausibility is not enforced.
func (s Sample) Validate() error {
	if strings.TrimSpace(s.DeviceID) == "" {
		return Invalid("deviceId", "is required")
	}
	return nil
}

// Sample validates the payload and converts it into a typed Sample.
func (p Payload) Sample() (Sample, error) {
	ts, err := parseTimestamp(p.Timestamp)
	if err != nil {
		return Sample{}, err
	}

	s := Sample{
		DeviceID:        p.DeviceID,
		FormattedTime:   p.FormattedTime,
		Timestamp:       ts,
		Latitude:        p.Latitude,
		Longitude:       p.Longitude,
		Pitch:           p.Pitch,
		Yaw:             p.Yaw,
		Roll:            p.Roll,
		Speed:           p.Speed,
		Velocity:        p.Velocity,
		HorizontalSpeed: p.HorizontalSpeed,
		VerticalSpeed:   p.VerticalSpeed,
		FlightDirection: p.FlightDirection,
		GroundDistance:  p.GroundDistance,
	}
	if err := s.Validate(); err != nil {
		return Sample{}, err
	}
	return s, nil
}

const (
	maxTimestampText = 64
	timestampPrec    = 64 + 4*maxTimestampText
)

func parseTimestamp(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, Invalid("timestamp", "is required")
	}

	if raw[0] == '"' {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, Invalid("timestamp", "must be an integer")
		}
		v, err := strconv.ParseInt(strings.TrimSpace(str), 10, 64)
		if err != nil {
			return 0, Invalid("timestamp", "must be an integer")
		}
		return v, nil
	}

	if v, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
		return v, nil
	}

	// Decimal and exponent forms must denote an int64 exactly.
	if len(raw) > maxTimestampText {
		return 0, Invalid("timestamp", "must be an integer")
	}
	f, _, err := big.ParseFloat(string(raw), 10, timestampPrec, big.ToNearestEven)
	if err != nil {
		return 0, Invalid("timestamp", "must be an integer")
	}
	v, acc := f.Int64()
	if acc != big.Exact {
		return 0, Invalid("timestamp", "must be an integer")
	}
	return v, nil
}
