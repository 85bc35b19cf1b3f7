package query

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/Spec-DY/Drone-Panel/internal/model"
	"github.com/Spec-DY/Drone-Panel/internal/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingReader struct {
	calls     []string
	lastLimit int
	err       error
}

func (r *recordingReader) LatestAcrossDevices(_ context.Context, limit int) ([]model.StoredRecord, error) {
	r.calls = append(r.calls, ModeLatest)
	r.lastLimit = limit
	return nil, r.err
}

func (r *recordingReader) LatestForDevice(_ context.Context, _ string, limit int) ([]model.StoredRecord, error) {
	r.calls = append(r.calls, ModeLatestForDevice)
	r.lastLimit = limit
	return nil, r.err
}

func (r *recordingReader) Range(context.Context, string, int64, int64) ([]model.StoredRecord, error) {
	r.calls = append(r.calls, ModeRange)
	return nil, r.err
}

func seededStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "query.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	if err := s.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	for _, in := range []model.Sample{
		{DeviceID: "A", Timestamp: 100},
		{DeviceID: "A", Timestamp: 300},
		{DeviceID: "B", Timestamp: 200},
	} {
		if _, err := s.InsertOne(ctx, in); err != nil {
			t.Fatalf("InsertOne: %v", err)
		}
	}
	return s
}

func labels(records []model.StoredRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.DeviceID+"@"+strconv.FormatInt(r.Timestamp, 10))
	}
	return out
}

func sameLabels(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func ptr(v int64) *int64 { return &v }

func TestService_Scenario(t *testing.T) {
	svc := New(seededStore(t), discard)
	ctx := context.Background()

	latest, err := svc.Latest(ctx, 10)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got := labels(latest); !sameLabels(got, "A@300", "B@200", "A@100") {
		t.Errorf("latest = %v", got)
	}

	rng, err := svc.Range(ctx, "A", 100, 300)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if got := labels(rng); !sameLabels(got, "A@100", "A@300") {
		t.Errorf("range = %v", got)
	}

	inverted, err := svc.Range(ctx, "A", 300, 100)
	if err != nil {
		t.Fatalf("Range inverted: %v", err)
	}
	if inverted == nil || len(inverted) != 0 {
		t.Errorf("expected empty inverted range, got %#v", inverted)
	}

	unknown, err := svc.LatestForDevice(ctx, "nobody", 10)
	if err != nil {
		t.Fatalf("LatestForDevice: %v", err)
	}
	if unknown == nil || len(unknown) != 0 {
		t.Errorf("expected empty result for unknown device, got %#v", unknown)
	}
}

func TestService_InvertedRangeSkipsStore(t *testing.T) {
	r := &recordingReader{}
	svc := New(r, discard)

	if _, err := svc.Range(context.Background(), "A", 10, 1); err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("store called for inverted range: %v", r.calls)
	}
}

func TestService_Limits(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultLimit},
		{-4, DefaultLimit},
		{25, 25},
		{50, 40},
	}

	for _, tt := range tests {
		r := &recordingReader{}
		svc := New(r, discard, WithMaxLimit(40))
		if _, err := svc.Latest(context.Background(), tt.in); err != nil {
			t.Fatalf("Latest: %v", err)
		}
		if r.lastLimit != tt.want {
			t.Errorf("limit %d -> %d, want %d", tt.in, r.lastLimit, tt.want)
		}
	}
}

func TestResolve_Modes(t *testing.T) {
	tests := []struct {
		name string
		p    Params
		want string
	}{
		{name: "nothing", p: Params{}, want: ModeLatest},
		{name: "bounds without device", p: Params{StartTime: ptr(1), EndTime: ptr(2)}, want: ModeLatest},
		{name: "device", p: Params{DeviceID: "A"}, want: ModeLatestForDevice},
		{name: "device with one bound", p: Params{DeviceID: "A", StartTime: ptr(1)}, want: ModeLatestForDevice},
		{name: "device with bounds", p: Params{DeviceID: "A", StartTime: ptr(1), EndTime: ptr(2)}, want: ModeRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recordingReader{}
			res, err := New(r, discard).Resolve(context.Background(), tt.p)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if res.Mode != tt.want {
				t.Errorf("mode = %q, want %q", res.Mode, tt.want)
			}
			if len(r.calls) != 1 || r.calls[0] != tt.want {
				t.Errorf("store calls = %v", r.calls)
			}
			if res.Data == nil || res.Count != 0 {
				t.Errorf("expected empty non-nil data, got %#v (count %d)", res.Data, res.Count)
			}
		})
	}
}

func TestResolve_EchoesParams(t *testing.T) {
	svc := New(seededStore(t), discard)

	res, err := svc.Resolve(context.Background(), Params{DeviceID: "A", StartTime: ptr(0), EndTime: ptr(1000)})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Count != 2 || res.DeviceID != "A" || *res.StartTime != 0 || *res.EndTime != 1000 {
		t.Errorf("unexpected result %+v", res)
	}

	res, err = svc.Resolve(context.Background(), Params{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Limit != DefaultLimit || res.Count != 3 {
		t.Errorf("unexpected latest result %+v", res)
	}
}

func TestResolve_PropagatesStoreFailure(t *testing.T) {
	failure := &store.Failure{Op: "query latest", Err: errors.New("connection refused")}
	_, err := New(&recordingReader{err: failure}, discard).Resolve(context.Background(), Params{})
	if !errors.Is(err, failure) {
		t.Fatalf("expected store failure, got %v", err)
	}
}

func TestParamsFromQuery(t *testing.T) {
	p, err := ParamsFromQuery(url.Values{
		"deviceId":  {"drone-1"},
		"limit":     {"25"},
		"startTime": {"100"},
		"endTime":   {"-5"},
	})
	if err != nil {
		t.Fatalf("ParamsFromQuery: %v", err)
	}
	if p.DeviceID != "drone-1" || p.Limit != 25 || *p.StartTime != 100 || *p.EndTime != -5 {
		t.Errorf("unexpected params %+v", p)
	}

	for _, bad := range []url.Values{
		{"limit": {"ten"}},
		{"startTime": {"yesterday"}},
		{"endTime": {"1.5"}},
	} {
		_, err := ParamsFromQuery(bad)
		var verr *model.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%v: expected validation error, got %v", bad, err)
		}
	}
}
