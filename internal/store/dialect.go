package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// dialect captures what differs between the SQLite and PostgreSQL backends.
type dialect struct {
	name   string
	driver string

	// numbered placeholders ($1, $2, ...) instead of ?.
	numbered bool
	// returning uses INSERT ... RETURNING id instead of LastInsertId.
	returning bool

	idColumn    string
	intColumn   string
	realColumn  string
	timeColumn  string
	encodeTime  func(time.Time) any
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
}

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite, "sqlite3":
		return dialect{
			name:       DriverSQLite,
			driver:     "sqlite",
			idColumn:   "INTEGER PRIMARY KEY AUTOINCREMENT",
			intColumn:  "INTEGER",
			realColumn: "REAL",
			timeColumn: "TEXT",
			encodeTime: func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
			// SQLite serialises writers; a single connection keeps transactions simple.
			maxOpen: 1,
			maxIdle: 1,
		}, nil
	case DriverPostgres, "postgresql", "pq":
		return dialect{
			name:        DriverPostgres,
			driver:      "postgres",
			numbered:    true,
			returning:   true,
			idColumn:    "BIGSERIAL PRIMARY KEY",
			intColumn:   "BIGINT",
			realColumn:  "DOUBLE PRECISION",
			timeColumn:  "TIMESTAMPTZ",
			encodeTime:  func(t time.Time) any { return t.UTC() },
			maxOpen:     10,
			maxIdle:     5,
			maxLifetime: 5 * time.Minute,
		}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (d dialect) configurePool(db *sql.DB) {
	db.SetMaxOpenConns(d.maxOpen)
	db.SetMaxIdleConns(d.maxIdle)
	db.SetConnMaxLifetime(d.maxLifetime)
	db.SetConnMaxIdleTime(5 * time.Minute)
}

func (d dialect) schema() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS telemetry_samples (
			id %[1]s,
			device_id TEXT NOT NULL CHECK (device_id <> ''),
			formatted_time TEXT NOT NULL DEFAULT '',
			timestamp %[2]s NOT NULL,
			latitude %[3]s NOT NULL,
			longitude %[3]s NOT NULL,
			pitch %[3]s NOT NULL,
			yaw %[3]s NOT NULL,
			roll %[3]s NOT NULL,
			speed %[3]s NOT NULL,
			velocity_x %[3]s NOT NULL,
			velocity_y %[3]s NOT NULL,
			velocity_z %[3]s NOT NULL,
			horizontal_speed %[3]s NOT NULL,
			vertical_speed %[3]s NOT NULL,
			flight_direction %[3]s NOT NULL,
			ground_distance %[3]s NOT NULL,
			created_at %[4]s NOT NULL
		);`, d.idColumn, d.intColumn, d.realColumn, d.timeColumn),
		`CREATE INDEX IF NOT EXISTS idx_telemetry_samples_device ON telemetry_samples(device_id);`,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_samples_timestamp ON telemetry_samples(timestamp);`,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_samples_created ON telemetry_samples(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_samples_device_time ON telemetry_samples(device_id, timestamp);`,
	}
}

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
