package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/models"
)

const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS historian;

CREATE TABLE IF NOT EXISTS historian.sensors (
    id           INTEGER PRIMARY KEY,
    name         TEXT NOT NULL DEFAULT '',
    manufacturer TEXT NOT NULL DEFAULT '',
    location_id  INTEGER,
    lat          DOUBLE PRECISION,
    lon          DOUBLE PRECISION,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS historian.daily_averages (
    sensor_id  INTEGER NOT NULL,
    phenomenon TEXT NOT NULL,
    day        DATE NOT NULL,
    value      DOUBLE PRECISION NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (sensor_id, phenomenon, day)
);`

// Mirror copies sensor identities and daily averages into Postgres so they
// can be queried alongside the file store.
type Mirror struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and makes sure the mirror tables exist.
func New(ctx context.Context, databaseURL string) (*Mirror, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Mirror{pool: pool}, nil
}

// Close releases the pool resources.
func (m *Mirror) Close() {
	if m.pool != nil {
		m.pool.Close()
	}
}

// UpsertSensors inserts/updates sensor identity records.
func (m *Mirror) UpsertSensors(ctx context.Context, sensors []models.SensorIdentity) error {
	if len(sensors) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `INSERT INTO historian.sensors (id, name, manufacturer, location_id, lat, lon, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())
ON CONFLICT (id) DO UPDATE
SET name = COALESCE(NULLIF(EXCLUDED.name, ''), historian.sensors.name),
    manufacturer = COALESCE(NULLIF(EXCLUDED.manufacturer, ''), historian.sensors.manufacturer),
    location_id = EXCLUDED.location_id,
    lat = EXCLUDED.lat,
    lon = EXCLUDED.lon,
    updated_at = NOW()`

	for _, s := range sensors {
		batch.Queue(query, s.ID, s.Name, s.Manufacturer, s.Location.ID, s.Location.Latitude, s.Location.Longitude)
	}

	res := m.pool.SendBatch(ctx, batch)
	defer res.Close()

	for range sensors {
		if _, err := res.Exec(); err != nil {
			return err
		}
	}

	return nil
}

// UpsertDailyAverages writes every average of a document.
func (m *Mirror) UpsertDailyAverages(ctx context.Context, doc *models.SensorAverageDocument) error {
	if len(doc.DailyAverages) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `INSERT INTO historian.daily_averages (sensor_id, phenomenon, day, value, updated_at)
VALUES ($1,$2,$3::date,$4,NOW())
ON CONFLICT (sensor_id, phenomenon, day) DO UPDATE
SET value = EXCLUDED.value,
    updated_at = NOW()`

	for _, avg := range doc.DailyAverages {
		batch.Queue(query, doc.ID, string(doc.Phenomenon), avg.Date, avg.Value)
	}

	res := m.pool.SendBatch(ctx, batch)
	defer res.Close()

	for range doc.DailyAverages {
		if _, err := res.Exec(); err != nil {
			return err
		}
	}

	return nil
}
