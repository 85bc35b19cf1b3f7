package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func decodePayload(t *testing.T, body string) Payload {
	t.Helper()
	var p Payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	return p
}

func TestPayloadSample_Timestamp(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int64
		wantErr bool
	}{
		{name: "integer", body: `{"deviceId":"A","timestamp":1700000000000}`, want: 1700000000000},
		{name: "integral float", body: `{"deviceId":"A","timestamp":100.0}`, want: 100},
		{name: "exponent", body: `{"deviceId":"A","timestamp":1.7e3}`, want: 1700},
		{name: "negative", body: `{"deviceId":"A","timestamp":-5}`, want: -5},
		{name: "numeric string", body: `{"deviceId":"A","timestamp":"42"}`, want: 42},
		{name: "missing", body: `{"deviceId":"A"}`, wantErr: true},
		{name: "null", body: `{"deviceId":"A","timestamp":null}`, wantErr: true},
		{name: "fraction", body: `{"deviceId":"A","timestamp":1.5}`, wantErr: true},
		{name: "word", body: `{"deviceId":"A","timestamp":"soon"}`, wantErr: true},
		{name: "bool", body: `{"deviceId":"A","timestamp":true}`, wantErr: true},
		{name: "overflow", body: `{"deviceId":"A","timestamp":1e300}`, wantErr: true},
		{name: "integral float above 2^53", body: `{"deviceId":"A","timestamp":12345678901234567.0}`, want: 12345678901234567},
		{name: "2^53 plus one", body: `{"deviceId":"A","timestamp":9007199254740993.0}`, want: 9007199254740993},
		{name: "large exponent", body: `{"deviceId":"A","timestamp":1.2345678901234567e16}`, want: 12345678901234567},
		{name: "max int64 as float", body: `{"deviceId":"A","timestamp":9223372036854775807.0}`, want: 9223372036854775807},
		{name: "just above int64", body: `{"deviceId":"A","timestamp":9223372036854775808.0}`, wantErr: true},
		{name: "tiny fraction", body: `{"deviceId":"A","timestamp":100.00000000000000000001}`, wantErr: true},
		{name: "underflow", body: `{"deviceId":"A","timestamp":1e-400}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := decodePayload(t, tt.body).Sample()
			if tt.wantErr {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				if verr.Field != "timestamp" {
					t.Errorf("expected field timestamp, got %q", verr.Field)
				}
				return
			}
			if err != nil {
				t.Fatalf("Sample: %v", err)
			}
			if s.Timestamp != tt.want {
				t.Errorf("timestamp = %d, want %d", s.Timestamp, tt.want)
			}
		})
	}
}

func TestPayloadSample_DeviceID(t *testing.T) {
	for _, body := range []string{
		`{"timestamp":1}`,
		`{"deviceId":"","timestamp":1}`,
		`{"deviceId":"   ","timestamp":1}`,
	} {
		_, err := decodePayload(t, body).Sample()
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Field != "deviceId" {
			t.Errorf("%s: expected deviceId validation error, got %v", body, err)
		}
	}
}

func TestPayloadSample_KeepsImplausibleValues(t *testing.T) {
	p := decodePayload(t, `{
		"deviceId": "drone-1",
		"formattedTime": "10:00:00",
		"timestamp": 10,
		"latitude": 123.4,
		"longitude": -500,
		"speed": -3,
		"velocity": {"x": 1, "y": 2, "z": 3},
		"groundDistance": -12.5
	}`)

	s, err := p.Sample()
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if s.Latitude != 123.4 || s.Longitude != -500 || s.Speed != -3 || s.GroundDistance != -12.5 {
		t.Errorf("numeric fields were altered: %+v", s)
	}
	if s.Velocity != (Velocity{X: 1, Y: 2, Z: 3}) {
		t.Errorf("velocity = %+v", s.Velocity)
	}
	if s.FormattedTime != "10:00:00" {
		t.Errorf("formattedTime = %q", s.FormattedTime)
	}
}

func TestPayloadFrom_RoundTrip(t *testing.T) {
	in := Sample{DeviceID: "A", Timestamp: 99, Pitch: 1.5, Velocity: Velocity{Z: -1}}
	out, err := PayloadFrom(in).Sample()
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Field: "deviceId", Index: 3, Reason: "is required"}
	if got, want := err.Error(), "sample 3: deviceId is required"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if got, want := Invalid("timestamp", "is required").Error(), "timestamp is required"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
