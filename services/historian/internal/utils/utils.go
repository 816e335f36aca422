package utils

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/models"
)

// DateLayout is the archive's calendar date format.
const DateLayout = "2006-01-02"

// ParseDate parses an archive date string.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// ZoneKey buckets a coordinate pair as floor(lat)-floor(lon).
func ZoneKey(lat, lon float64) string {
	return fmt.Sprintf("%d-%d", int(math.Floor(lat)), int(math.Floor(lon)))
}

// RoundTo2 rounds half away from zero to two decimals.
func RoundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Means returns the rounded means of P1 and P2 over all readings.
func Means(readings []models.SensorReading) (pm10, pm25 float64, err error) {
	if len(readings) == 0 {
		return 0, 0, errors.New("no readings")
	}
	var sum10, sum25 float64
	for _, r := range readings {
		sum10 += r.P1
		sum25 += r.P2
	}
	n := float64(len(readings))
	return RoundTo2(sum10 / n), RoundTo2(sum25 / n), nil
}

// Identity takes the sensor identity from the first reading. The id is
// supplied by the caller because the archive names files by sensor id.
func Identity(sensorID int, readings []models.SensorReading) models.SensorIdentity {
	first := readings[0]
	return models.SensorIdentity{
		ID:           sensorID,
		Manufacturer: first.Manufacturer,
		Name:         first.SensorType,
		Location: models.Location{
			ID:        first.LocationID,
			Latitude:  first.Latitude,
			Longitude: first.Longitude,
			Valid:     true,
		},
	}
}

// BuildTimeseries extracts one phenomenon's (timestamp, value) pairs in row
// order.
func BuildTimeseries(readings []models.SensorReading, phenomenon models.Phenomenon) []models.TimeseriesPoint {
	out := make([]models.TimeseriesPoint, 0, len(readings))
	for _, r := range readings {
		value := r.P1
		if phenomenon == models.PM25 {
			value = r.P2
		}
		out = append(out, models.TimeseriesPoint{Timestamp: r.Timestamp, Value: value})
	}
	return out
}

// SensorIDFromFileName extracts the id from names like
// 2019-04-23_sds011_sensor_123.csv.
func SensorIDFromFileName(name string) (int, error) {
	parts := strings.Split(name, "_")
	if len(parts) < 4 {
		return 0, fmt.Errorf("unexpected file name %q", name)
	}
	idPart := strings.SplitN(parts[3], ".", 2)[0]
	id, err := strconv.Atoi(idPart)
	if err != nil {
		return 0, fmt.Errorf("unexpected file name %q: %w", name, err)
	}
	return id, nil
}

// FilterOutsideWindow drops every date d with first <= d <= last. Dates that
// do not parse are dropped as well.
func FilterOutsideWindow(dates []string, first, last string) ([]string, error) {
	firstTS, err := ParseDate(first)
	if err != nil {
		return nil, fmt.Errorf("invalid firstDate %q: %w", first, err)
	}
	lastTS, err := ParseDate(last)
	if err != nil {
		return nil, fmt.Errorf("invalid lastDate %q: %w", last, err)
	}

	out := make([]string, 0, len(dates))
	for _, d := range dates {
		ts, err := ParseDate(d)
		if err != nil {
			continue
		}
		if ts.Before(firstTS) || ts.After(lastTS) {
			out = append(out, d)
		}
	}
	return out, nil
}

// DateBounds returns the min and max parsed date over the averages.
func DateBounds(averages []models.DailyAverage) (first, last string, ok bool) {
	var minTS, maxTS time.Time
	for _, avg := range averages {
		ts, err := ParseDate(avg.Date)
		if err != nil {
			continue
		}
		if !ok || ts.Before(minTS) {
			minTS, first = ts, avg.Date
		}
		if !ok || ts.After(maxTS) {
			maxTS, last = ts, avg.Date
		}
		ok = true
	}
	return first, last, ok
}

var requiredColumns = []string{"sensor_id", "lat", "lon", "timestamp", "P1", "P2"}

// ParseReadings parses a semicolon separated archive export with a header
// row. Required numeric columns must parse; location is optional.
func ParseReadings(data []byte) ([]models.SensorReading, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = ';'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty file")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var readings []models.SensorReading
	line := 1
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		reading := models.SensorReading{
			SensorType:   field(rec, "sensor_type"),
			Manufacturer: field(rec, "manufacturer"),
			Timestamp:    field(rec, "timestamp"),
		}
		if reading.SensorID, err = strconv.Atoi(field(rec, "sensor_id")); err != nil {
			return nil, fmt.Errorf("line %d: sensor_id: %w", line, err)
		}
		if loc := field(rec, "location"); loc != "" {
			if reading.LocationID, err = strconv.Atoi(loc); err != nil {
				return nil, fmt.Errorf("line %d: location: %w", line, err)
			}
		}
		if reading.Latitude, err = parseFinite(field(rec, "lat")); err != nil {
			return nil, fmt.Errorf("line %d: lat: %w", line, err)
		}
		if reading.Longitude, err = parseFinite(field(rec, "lon")); err != nil {
			return nil, fmt.Errorf("line %d: lon: %w", line, err)
		}
		if reading.P1, err = parseFinite(field(rec, "P1")); err != nil {
			return nil, fmt.Errorf("line %d: P1: %w", line, err)
		}
		if reading.P2, err = parseFinite(field(rec, "P2")); err != nil {
			return nil, fmt.Errorf("line %d: P2: %w", line, err)
		}
		readings = append(readings, reading)
	}

	if len(readings) == 0 {
		return nil, errors.New("no data rows")
	}
	return readings, nil
}

// parseFinite rejects NaN and infinities, which strconv accepts but JSON
// cannot encode.
func parseFinite(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", raw)
	}
	return v, nil
}
