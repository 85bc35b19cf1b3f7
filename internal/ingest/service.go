// Package ingest is the boundary between untrusted telemetry and the store.
//
// Every sample is validated before the store is touched. Batches are
// all-or-nothing: one invalid element rejects the whole batch, and a valid
// batch is handed to the store as a single transactional write. The service
// never retries; retry policy belongs to the caller.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Spec-DY/Drone-Panel/internal/model"
)

// DefaultMaxBatch is the largest batch accepted unless configured otherwise.
const DefaultMaxBatch = 1000

// Writer is the subset of the store used by the ingestion path.
type Writer interface {
	InsertOne(ctx context.Context, sample model.Sample) (model.StoredRecord, error)
	InsertBatch(ctx context.Context, samples []model.Sample) error
}

// Service validates incoming samples and forwards them to the store.
type Service struct {
	store    Writer
	logger   *slog.Logger
	maxBatch int
}

// Option customises a Service.
type Option func(*Service)

// WithMaxBatch caps the number of samples accepted in one batch.
func WithMaxBatch(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatch = n
		}
	}
}

// New constructs an ingestion service writing to store.
func New(store Writer, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    store,
		logger:   logger.With("component", "ingest"),
		maxBatch: DefaultMaxBatch,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestOne validates a payload and persists it. A *model.ValidationError is
// returned without touching the store; store errors are returned unchanged.
func (s *Service) IngestOne(ctx context.Context, p model.Payload) (model.StoredRecord, error) {
	sample, err := p.Sample()
	if err != nil {
		s.logger.Warn("sample rejected", "device", p.DeviceID, "error", err)
		return model.StoredRecord{}, err
	}

	rec, err := s.store.InsertOne(ctx, sample)
	if err != nil {
		s.logger.Error("failed to persist sample", "device", sample.DeviceID, "timestamp", sample.Timestamp, "error", err)
		return model.StoredRecord{}, err
	}

	s.logger.Debug("ingested sample", "device", rec.DeviceID, "timestamp", rec.Timestamp, "id", rec.ID)
	return rec, nil
}

// IngestBatch validates every payload before writing any of them and then
// persists the batch in one store call. It returns the number of samples stored.
func (s *Service) IngestBatch(ctx context.Context, payloads []model.Payload) (int, error) {
	samples, err := s.validateBatch(payloads)
	if err != nil {
		s.logger.Warn("batch rejected", "size", len(payloads), "error", err)
		return 0, err
	}

	if err := s.store.InsertBatch(ctx, samples); err != nil {
		s.logger.Error("failed to persist batch", "size", len(samples), "error", err)
		return 0, err
	}

	s.logger.Debug("ingested batch", "size", len(samples))
	return len(samples), nil
}

func (s *Service) validateBatch(payloads []model.Payload) ([]model.Sample, error) {
	if len(payloads) == 0 {
		return nil, model.Invalid("batch", "must contain at least one sample")
	}
	if len(payloads) > s.maxBatch {
		return nil, model.Invalid("batch", fmt.Sprintf("exceeds the maximum of %d samples", s.maxBatch))
	}

	samples := make([]model.Sample, len(payloads))
	for i, p := range payloads {
		sample, err := p.Sample()
		if err != nil {
			var verr *model.ValidationError
			if errors.As(err, &verr) {
				indexed := *verr
				indexed.Index = i
				return nil, &indexed
			}
			return nil, err
		}
		samples[i] = sample
	}
	return samples, nil
}
