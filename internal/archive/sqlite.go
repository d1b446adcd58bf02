// Package archive persists recorded traces to a SQLite database.
package archive

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"sun_harvester/internal/model"
	"sun_harvester/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS sensors (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	unit TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS readings (
	sensor_id TEXT    NOT NULL REFERENCES sensors(id),
	ts        INTEGER NOT NULL,
	sim_ns    INTEGER NOT NULL,
	value     REAL    NOT NULL
);
CREATE INDEX IF NOT EXISTS readings_sensor_ts ON readings (sensor_id, ts);
`

// Archive is a SQLite file holding sensors and their readings. Timestamps
// are stored as Unix seconds of the simulated date.
type Archive struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Open opens or creates the database at path and makes sure the tables exist.
func Open(path string, logger *zap.Logger) (*Archive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Archive{db: db, path: path, logger: logger.Named("archive")}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// SaveStore writes every sensor of s and all of its readings in one
// transaction. Sensors already present are updated.
func (a *Archive) SaveStore(s *store.Store) (int, error) {
	tx, err := a.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert, err := tx.Prepare(`INSERT INTO readings (sensor_id, ts, sim_ns, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer insert.Close()

	var n int
	for _, sensor := range s.Sensors() {
		_, err := tx.Exec(`INSERT OR REPLACE INTO sensors (id, name, type, unit) VALUES (?, ?, ?, ?)`,
			sensor.ID, sensor.Name, string(sensor.Type), sensor.Unit)
		if err != nil {
			return 0, fmt.Errorf("failed to insert sensor %s: %w", sensor.ID, err)
		}
		for _, r := range s.Readings(sensor.ID) {
			if _, err := insert.Exec(sensor.ID, r.Timestamp.Unix(), int64(r.SimTime), r.Value); err != nil {
				return 0, fmt.Errorf("failed to insert reading of %s: %w", sensor.ID, err)
			}
			n++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	a.logger.Info("archived readings", zap.String("path", a.path), zap.Int("readings", n))
	return n, nil
}

// Sensors returns the archived sensors ordered by ID.
func (a *Archive) Sensors() ([]model.Sensor, error) {
	rows, err := a.db.Query(`SELECT id, name, type, unit FROM sensors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensors: %w", err)
	}
	defer rows.Close()

	var sensors []model.Sensor
	for rows.Next() {
		var s model.Sensor
		var tt string
		if err := rows.Scan(&s.ID, &s.Name, &tt, &s.Unit); err != nil {
			return nil, fmt.Errorf("failed to scan sensor: %w", err)
		}
		s.Type = model.TraceType(tt)
		sensors = append(sensors, s)
	}
	return sensors, rows.Err()
}

// Readings returns the archived readings of sensor in write order.
func (a *Archive) Readings(sensor model.Sensor) ([]model.Reading, error) {
	rows, err := a.db.Query(`SELECT ts, sim_ns, value FROM readings WHERE sensor_id = ? ORDER BY rowid`, sensor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings of %s: %w", sensor.ID, err)
	}
	defer rows.Close()

	var readings []model.Reading
	for rows.Next() {
		var ts, simNS int64
		r := model.Reading{SensorID: sensor.ID, Type: sensor.Type, Unit: sensor.Unit}
		if err := rows.Scan(&ts, &simNS, &r.Value); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.Timestamp = time.Unix(ts, 0).UTC()
		r.SimTime = time.Duration(simNS)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// LoadInto adds every archived sensor and reading to s.
func (a *Archive) LoadInto(s *store.Store) error {
	sensors, err := a.Sensors()
	if err != nil {
		return err
	}
	for _, sensor := range sensors {
		readings, err := a.Readings(sensor)
		if err != nil {
			return err
		}
		s.AddSensor(sensor)
		s.AddReadings(readings)
	}
	return nil
}
