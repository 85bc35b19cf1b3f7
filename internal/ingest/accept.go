package ingest

import (
	"context"
)

// AcceptOne decodes a raw JSON sample, ingests it and reports the outcome.
// When the payload carries no deviceId, fallbackDevice is used instead; an
// empty fallback leaves the payload untouched.
func (s *Service) AcceptOne(ctx context.Context, data []byte, fallbackDevice string) Receipt {
	p, err := DecodeOne(data)
	if err != nil {
		s.logger.Warn("sample rejected", "error", err)
		return ReceiptFor(err)
	}
	if p.DeviceID == "" {
		p.DeviceID = fallbackDevice
	}

	rec, err := s.IngestOne(ctx, p)
	if err != nil {
		return ReceiptFor(err)
	}
	return Accepted(rec)
}

// AcceptBatch decodes a raw JSON array, ingests it and reports the outcome.
func (s *Service) AcceptBatch(ctx context.Context, data []byte) Receipt {
	payloads, err := DecodeBatch(data)
	if err != nil {
		s.logger.Warn("batch rejected", "error", err)
		return ReceiptFor(err)
	}

	n, err := s.IngestBatch(ctx, payloads)
	if err != nil {
		return ReceiptFor(err)
	}
	return AcceptedBatch(n)
}
