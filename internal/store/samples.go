package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Spec-DY/Drone-Panel/internal/model"
)

const (
	insertColumns = `device_id, formatted_time, timestamp, latitude, longitude, pitch, yaw, roll, speed,
		velocity_x, velocity_y, velocity_z, horizontal_speed, vertical_speed, flight_direction,
		ground_distance, created_at`
	insertColumnCount = 17

	selectSamplesSQL = `SELECT id, ` + insertColumns + ` FROM telemetry_samples`

	// batchChunkRows keeps every multi-row INSERT well below the bound-parameter
	// limits of both backends.
	batchChunkRows = 500
)

// InsertOne persists a single sample and returns it with its assigned id and createdAt.
func (s *Store) InsertOne(ctx context.Context, sample model.Sample) (rec model.StoredRecord, err error) {
	const op = "insert sample"
	if s.db == nil {
		return rec, fail(op, ErrNotInitialized)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	rec = model.StoredRecord{Sample: sample, CreatedAt: s.createdAt()}
	query := s.dialect.rebind(`INSERT INTO telemetry_samples (` + insertColumns + `) VALUES ` + valuesList(1, insertColumnCount))
	args := s.recordArgs(nil, rec)

	if s.dialect.returning {
		if err := s.db.QueryRowContext(ctx, query+` RETURNING id`, args...).Scan(&rec.ID); err != nil {
			return model.StoredRecord{}, failCtx(ctx, op, err)
		}
		return rec, nil
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return model.StoredRecord{}, failCtx(ctx, op, err)
	}
	if rec.ID, err = result.LastInsertId(); err != nil {
		return model.StoredRecord{}, failCtx(ctx, op, fmt.Errorf("read inserted id: %w", err))
	}
	return rec, nil
}

// InsertBatch persists all samples in a single transaction. Either every
// sample is committed or, on any failure, none of them is.
func (s *Store) InsertBatch(ctx context.Context, samples []model.Sample) error {
	const op = "insert batch"
	if s.db == nil {
		return fail(op, ErrNotInitialized)
	}
	if len(samples) == 0 {
		return fail(op, ErrEmptyBatch)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	return failCtx(ctx, op, s.insertBatchTx(ctx, samples))
}

func (s *Store) insertBatchTx(ctx context.Context, samples []model.Sample) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	createdAt := s.createdAt()
	values := make([]any, 0, min(len(samples), batchChunkRows)*insertColumnCount)

	for start := 0; start < len(samples); start += batchChunkRows {
		chunk := samples[start:min(start+batchChunkRows, len(samples))]

		values = values[:0]
		for _, sample := range chunk {
			values = s.recordArgs(values, model.StoredRecord{Sample: sample, CreatedAt: createdAt})
		}

		query := s.dialect.rebind(`INSERT INTO telemetry_samples (` + insertColumns + `) VALUES ` + valuesList(len(chunk), insertColumnCount))
		if _, err = tx.ExecContext(ctx, query, values...); err != nil {
			return fmt.Errorf("insert rows %d-%d: %w", start, start+len(chunk)-1, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LatestAcrossDevices returns at most limit records from all devices,
// newest sample timestamp first.
func (s *Store) LatestAcrossDevices(ctx context.Context, limit int) ([]model.StoredRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return s.query(ctx, "query latest", selectSamplesSQL+` ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
}

// LatestForDevice returns at most limit records of one device, newest first.
func (s *Store) LatestForDevice(ctx context.Context, deviceID string, limit int) ([]model.StoredRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return s.query(ctx, "query latest for device",
		selectSamplesSQL+` WHERE device_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`, deviceID, limit)
}

// Range returns every record of one device with start <= timestamp <= end,
// oldest first. The result set is not capped.
func (s *Store) Range(ctx context.Context, deviceID string, start, end int64) ([]model.StoredRecord, error) {
	return s.query(ctx, "query range",
		selectSamplesSQL+` WHERE device_id = ? AND timestamp >= ? AND timestamp <= ? ORDER BY timestamp ASC, id ASC`,
		deviceID, start, end)
}

func (s *Store) query(ctx context.Context, op, query string, args ...any) (records []model.StoredRecord, err error) {
	if s.db == nil {
		return nil, fail(op, ErrNotInitialized)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	records, err = s.scanAll(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, failCtx(ctx, op, err)
	}
	return records, nil
}

func (s *Store) scanAll(ctx context.Context, query string, args ...any) (records []model.StoredRecord, err error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer closeWithError(rows, &err)

	records = make([]model.StoredRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (model.StoredRecord, error) {
	var (
		rec       model.StoredRecord
		createdAt dbTime
	)
	if err := rows.Scan(
		&rec.ID,
		&rec.DeviceID,
		&rec.FormattedTime,
		&rec.Timestamp,
		&rec.Latitude,
		&rec.Longitude,
		&rec.Pitch,
		&rec.Yaw,
		&rec.Roll,
		&rec.Speed,
		&rec.Velocity.X,
		&rec.Velocity.Y,
		&rec.Velocity.Z,
		&rec.HorizontalSpeed,
		&rec.VerticalSpeed,
		&rec.FlightDirection,
		&rec.GroundDistance,
		&createdAt,
	); err != nil {
		return model.StoredRecord{}, fmt.Errorf("scan sample: %w", err)
	}
	rec.CreatedAt = createdAt.Time
	return rec, nil
}

func (s *Store) recordArgs(dst []any, rec model.StoredRecord) []any {
	return append(dst,
		rec.DeviceID,
		rec.FormattedTime,
		rec.Timestamp,
		rec.Latitude,
		rec.Longitude,
		rec.Pitch,
		rec.Yaw,
		rec.Roll,
		rec.Speed,
		rec.Velocity.X,
		rec.Velocity.Y,
		rec.Velocity.Z,
		rec.HorizontalSpeed,
		rec.VerticalSpeed,
		rec.FlightDirection,
		rec.GroundDistance,
		s.dialect.encodeTime(rec.CreatedAt),
	)
}
