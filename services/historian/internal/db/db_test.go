package db

import (
	"context"
	"os"
	"reflect"
	"testing"

	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/models"
)

func TestMirrorRoundTrip(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	ctx := context.Background()
	m, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	const sensorID = 999001
	_, _ = m.pool.Exec(ctx, `DELETE FROM historian.daily_averages WHERE sensor_id = $1`, sensorID)

	err = m.UpsertSensors(ctx, []models.SensorIdentity{{
		ID:       sensorID,
		Name:     "SDS011",
		Location: models.Location{ID: 5, Latitude: 48.8, Longitude: 9.1, Valid: true},
	}})
	if err != nil {
		t.Fatalf("UpsertSensors: %v", err)
	}

	doc := models.NewSensorAverageDocument(sensorID, models.PM10)
	doc.DailyAverages = []models.DailyAverage{
		{Date: "2019-04-22", Value: 11.5},
		{Date: "2019-04-23", Value: 20},
	}
	if err := m.UpsertDailyAverages(ctx, doc); err != nil {
		t.Fatalf("UpsertDailyAverages: %v", err)
	}

	// the same day twice keeps one row with the latest value
	doc.DailyAverages = []models.DailyAverage{{Date: "2019-04-23", Value: 21.25}}
	if err := m.UpsertDailyAverages(ctx, doc); err != nil {
		t.Fatalf("UpsertDailyAverages: %v", err)
	}

	got, err := mirroredAverages(ctx, m, sensorID, models.PM10)
	if err != nil {
		t.Fatalf("mirroredAverages: %v", err)
	}
	want := []models.DailyAverage{
		{Date: "2019-04-22", Value: 11.5},
		{Date: "2019-04-23", Value: 21.25},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("averages = %+v, want %+v", got, want)
	}
}

// mirroredAverages reads back one sensor's rows ordered by day.
func mirroredAverages(ctx context.Context, m *Mirror, sensorID int, phenomenon models.Phenomenon) ([]models.DailyAverage, error) {
	rows, err := m.pool.Query(ctx, `
SELECT to_char(day, 'YYYY-MM-DD'), value
FROM historian.daily_averages
WHERE sensor_id = $1 AND phenomenon = $2
ORDER BY day`, sensorID, string(phenomenon))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DailyAverage
	for rows.Next() {
		var avg models.DailyAverage
		if err := rows.Scan(&avg.Date, &avg.Value); err != nil {
			return nil, err
		}
		out = append(out, avg)
	}
	return out, rows.Err()
}
