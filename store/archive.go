package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"

	"jjm/models"
)

// SQLiteArchive keeps every reading beyond the in-memory history window
type SQLiteArchive struct {
	db *sql.DB
}

const archiveMigration = `
CREATE TABLE IF NOT EXISTS sensor_readings (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	sensor_id   TEXT NOT NULL,
	sensor_type TEXT NOT NULL,
	value       REAL NOT NULL,
	unit        TEXT NOT NULL,
	status      TEXT NOT NULL,
	recorded_at INTEGER NOT NULL -- unix milliseconds
);

CREATE INDEX IF NOT EXISTS idx_sensor_readings_sensor_time ON sensor_readings(sensor_id, recorded_at);
CREATE INDEX IF NOT EXISTS idx_sensor_readings_time ON sensor_readings(recorded_at);
`

func NewSQLiteArchive(ctx context.Context, dsn string) (*SQLiteArchive, error) {
	db, err := openSQLite(dsn)
	if err != nil {
		return nil, err
	}
	a := &SQLiteArchive{db: db}
	if err := a.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *SQLiteArchive) Migrate(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, archiveMigration)
	return eris.Wrap(err, "sqlite: migrate archive")
}

func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

// SaveReadings inserts a batch in one transaction
func (a *SQLiteArchive) SaveReadings(ctx context.Context, events []models.ReadingEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin archive batch")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sensor_readings (sensor_id, sensor_type, value, unit, status, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare archive insert")
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.SensorID, string(e.Type), e.Value, e.Unit, string(e.Status), e.Timestamp.UnixMilli()); err != nil {
			return eris.Wrapf(err, "sqlite: archive reading for %s", e.SensorID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit archive batch")
}

// Readings returns a sensor's archived readings in [from, to], oldest first.
// A zero bound is open. With limit > 0 only the newest limit readings are
// returned; limit <= 0 means no limit.
func (a *SQLiteArchive) Readings(ctx context.Context, sensorID string, from, to time.Time, limit int) ([]models.ReadingEvent, error) {
	query := `SELECT sensor_id, sensor_type, value, unit, status, recorded_at FROM sensor_readings WHERE sensor_id = ?`
	args := []interface{}{sensorID}
	if !from.IsZero() {
		query += ` AND recorded_at >= ?`
		args = append(args, from.UnixMilli())
	}
	if !to.IsZero() {
		query += ` AND recorded_at <= ?`
		args = append(args, to.UnixMilli())
	}
	query += ` ORDER BY recorded_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query readings for %s", sensorID)
	}
	defer rows.Close()

	var out []models.ReadingEvent
	for rows.Next() {
		var (
			e          models.ReadingEvent
			sensorType string
			status     string
			recordedAt int64
		)
		if err := rows.Scan(&e.SensorID, &sensorType, &e.Value, &e.Unit, &status, &recordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reading")
		}
		e.Type = models.SensorType(sensorType)
		e.Status = models.SensorStatus(status)
		e.Timestamp = time.UnixMilli(recordedAt).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate readings")
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Prune deletes readings recorded before the cutoff and reports how many
func (a *SQLiteArchive) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := a.db.ExecContext(ctx, `DELETE FROM sensor_readings WHERE recorded_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune readings")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: prune rows affected")
}

// Count returns the number of archived readings
func (a *SQLiteArchive) Count(ctx context.Context) (int64, error) {
	var n int64
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sensor_readings`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count readings")
}
