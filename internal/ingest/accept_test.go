package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/Spec-DY/Drone-Panel/internal/store"
)

func TestAcceptOne(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		fallback string
		err      error
		status   string
		kind     string
		device   string
		writes   int
	}{
		{
			name:   "accepted",
			data:   `{"deviceId":"drone-1","timestamp":5}`,
			status: StatusAccepted,
			device: "drone-1",
			writes: 1,
		},
		{
			name:     "device from fallback",
			data:     `{"timestamp":5}`,
			fallback: "drone-9",
			status:   StatusAccepted,
			device:   "drone-9",
			writes:   1,
		},
		{
			name:     "payload device wins",
			data:     `{"deviceId":"drone-1","timestamp":5}`,
			fallback: "drone-9",
			status:   StatusAccepted,
			device:   "drone-1",
			writes:   1,
		},
		{
			name:   "malformed",
			data:   `{"deviceId":`,
			status: StatusRejected,
			kind:   KindValidation,
		},
		{
			name:   "missing timestamp",
			data:   `{"deviceId":"drone-1"}`,
			status: StatusRejected,
			kind:   KindValidation,
		},
		{
			name:   "store failure",
			data:   `{"deviceId":"drone-1","timestamp":5}`,
			err:    &store.Failure{Op: "insert sample", Err: errors.New("disk full")},
			status: StatusFailed,
			kind:   KindStore,
			writes: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWriter{err: tt.err}
			r := New(w, discard).AcceptOne(context.Background(), []byte(tt.data), tt.fallback)

			if r.Status != tt.status || r.Kind != tt.kind {
				t.Fatalf("receipt = %+v", r)
			}
			if tt.device != "" && r.DeviceID != tt.device {
				t.Errorf("deviceId = %q, want %q", r.DeviceID, tt.device)
			}
			if w.oneCalls != tt.writes {
				t.Errorf("store writes = %d, want %d", w.oneCalls, tt.writes)
			}
		})
	}
}

func TestAcceptBatch(t *testing.T) {
	w := &fakeWriter{}
	svc := New(w, discard)
	ctx := context.Background()

	r := svc.AcceptBatch(ctx, []byte(`[{"deviceId":"a","timestamp":1},{"deviceId":"b","timestamp":"2"}]`))
	if r.Status != StatusAccepted || r.Count != 2 {
		t.Fatalf("receipt = %+v", r)
	}

	r = svc.AcceptBatch(ctx, []byte(`{"deviceId":"a","timestamp":1}`))
	if r.Status != StatusRejected || r.Kind != KindValidation {
		t.Fatalf("object instead of array: %+v", r)
	}

	r = svc.AcceptBatch(ctx, []byte(`[{"deviceId":"a","timestamp":1},{"deviceId":"","timestamp":2}]`))
	if r.Status != StatusRejected || r.Error != "sample 1: deviceId is required" {
		t.Fatalf("invalid element: %+v", r)
	}

	if w.batchCalls != 1 {
		t.Errorf("expected exactly one store write, got %d", w.batchCalls)
	}
}
