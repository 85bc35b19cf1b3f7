package query

import (
	"context"
	"log/slog"

	"github.com/Spec-DY/Drone-Panel/internal/model"
)

// Defaults for limit handling.
const (
	DefaultLimit    = 10
	DefaultMaxLimit = 1000
)

// Response modes.
const (
	ModeLatest          = "latest"
	ModeLatestForDevice = "latest_for_device"
	ModeRange           = "range"
)

// Reader is the subset of the store used by the read path.
type Reader interface {
	LatestAcrossDevices(ctx context.Context, limit int) ([]model.StoredRecord, error)
	LatestForDevice(ctx context.Context, deviceID string, limit int) ([]model.StoredRecord, error)
	Range(ctx context.Context, deviceID string, start, end int64) ([]model.StoredRecord, error)
}

// Service shapes store results for the dashboard read API.
type Service struct {
	store    Reader
	logger   *slog.Logger
	maxLimit int
}

// Option customises a Service.
type Option func(*Service)

// WithMaxLimit caps the number of records a latest query may request.
func WithMaxLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// New constructs a query service reading from store.
func New(store Reader, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    store,
		logger:   logger.With("component", "query"),
		maxLimit: DefaultMaxLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Latest returns the newest records across all devices.
func (s *Service) Latest(ctx context.Context, limit int) ([]model.StoredRecord, error) {
	return nonNil(s.store.LatestAcrossDevices(ctx, s.limit(limit)))
}

// LatestForDevice returns the newest records of one device. An unknown
// device yields an empty slice.
func (s *Service) LatestForDevice(ctx context.Context, deviceID string, limit int) ([]model.StoredRecord, error) {
	return nonNil(s.store.LatestForDevice(ctx, deviceID, s.limit(limit)))
}

// Range returns the records of one device with start <= timestamp <= end in
// ascending order. Inverted bounds yield an empty slice.
func (s *Service) Range(ctx context.Context, deviceID string, start, end int64) ([]model.StoredRecord, error) {
	if start > end {
		return []model.StoredRecord{}, nil
	}
	return nonNil(s.store.Range(ctx, deviceID, start, end))
}

func (s *Service) limit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > s.maxLimit:
		return s.maxLimit
	default:
		return n
	}
}

func nonNil(records []model.StoredRecord, err error) ([]model.StoredRecord, error) {
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []model.StoredRecord{}
	}
	return records, nil
}
