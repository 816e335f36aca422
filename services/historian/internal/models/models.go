package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Phenomenon is the measured pollutant.
type Phenomenon string

const (
	PM10 Phenomenon = "pm10"
	PM25 Phenomenon = "pm25"
)

// Phenomena lists the pollutants in the order they are written.
var Phenomena = []Phenomenon{PM10, PM25}

// Dir is the directory name used for the phenomenon in the data tree.
func (p Phenomenon) Dir() string {
	switch p {
	case PM10:
		return "PM10"
	case PM25:
		return "PM25"
	default:
		return string(p)
	}
}

// ParsePhenomenon accepts "pm10"/"PM10" and "pm25"/"PM25".
func ParsePhenomenon(s string) (Phenomenon, error) {
	switch s {
	case "pm10", "PM10":
		return PM10, nil
	case "pm25", "PM25":
		return PM25, nil
	}
	return "", fmt.Errorf("unknown phenomenon %q", s)
}

// SensorReading is one typed row of an archive CSV export.
type SensorReading struct {
	SensorID     int
	SensorType   string
	Manufacturer string
	LocationID   int
	Latitude     float64
	Longitude    float64
	Timestamp    string
	P1           float64
	P2           float64
}

// Location is the sensor placement as reported by the archive. A location
// that was never set encodes as {}; a set one always carries all three
// fields, so coordinates of 0 survive.
type Location struct {
	ID        int
	Latitude  float64
	Longitude float64
	Valid     bool
}

type locationJSON struct {
	ID        int     `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsZero reports whether the location was never set.
func (l Location) IsZero() bool {
	return !l.Valid
}

func (l Location) MarshalJSON() ([]byte, error) {
	if !l.Valid {
		return []byte("{}"), nil
	}
	return json.Marshal(locationJSON{ID: l.ID, Latitude: l.Latitude, Longitude: l.Longitude})
}

func (l *Location) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if len(fields) == 0 {
		*l = Location{}
		return nil
	}
	var raw locationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = Location{ID: raw.ID, Latitude: raw.Latitude, Longitude: raw.Longitude, Valid: true}
	return nil
}

// SensorIdentity is the identity taken from the first row of a sensor file.
type SensorIdentity struct {
	ID           int
	Manufacturer string
	Name         string
	Location     Location
}

// TimeseriesPoint is serialized as a two element array [timestamp, value].
type TimeseriesPoint struct {
	Timestamp string
	Value     float64
}

func (p TimeseriesPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Timestamp, p.Value})
}

func (p *TimeseriesPoint) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[0], &p.Timestamp); err != nil {
		return fmt.Errorf("timeserie timestamp: %w", err)
	}
	if err := json.Unmarshal(raw[1], &p.Value); err != nil {
		return fmt.Errorf("timeserie value: %w", err)
	}
	return nil
}

// SensorRecord is one sensor's full-day series for one phenomenon. A history
// file holds the records of every sensor in a zone.
type SensorRecord struct {
	ID           int               `json:"id"`
	Manufacturer string            `json:"manufacturer,omitempty"`
	Name         string            `json:"name"`
	Phenomenon   Phenomenon        `json:"phenomenon"`
	Date         string            `json:"date"`
	Location     Location          `json:"location"`
	Timeserie    []TimeseriesPoint `json:"timeserie"`
}

// DailyAverage is one sensor's rounded mean for one calendar day.
type DailyAverage struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// SensorAverageDocument is the persisted per-sensor, per-phenomenon document.
type SensorAverageDocument struct {
	ID            int            `json:"id"`
	Phenomenon    Phenomenon     `json:"phenomenon"`
	Location      Location       `json:"location"`
	FirstDate     string         `json:"firstDate,omitempty"`
	LastDate      string         `json:"lastDate,omitempty"`
	DailyAverages []DailyAverage `json:"dailyAverages"`
}

// NewSensorAverageDocument returns an empty document for a sensor.
func NewSensorAverageDocument(sensorID int, phenomenon Phenomenon) *SensorAverageDocument {
	return &SensorAverageDocument{
		ID:            sensorID,
		Phenomenon:    phenomenon,
		DailyAverages: []DailyAverage{},
	}
}

// AverageIndex returns the stored averages keyed by date.
func (d *SensorAverageDocument) AverageIndex() map[string]DailyAverage {
	idx := make(map[string]DailyAverage, len(d.DailyAverages))
	for _, avg := range d.DailyAverages {
		idx[avg.Date] = avg
	}
	return idx
}

// SetAverages replaces the stored averages with the index contents, sorted by
// date.
func (d *SensorAverageDocument) SetAverages(idx map[string]DailyAverage) {
	out := make([]DailyAverage, 0, len(idx))
	for _, avg := range idx {
		out = append(out, avg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	d.DailyAverages = out
}

// HasWindow reports whether the document carries a stored date window.
func (d *SensorAverageDocument) HasWindow() bool {
	return d.FirstDate != "" && d.LastDate != ""
}
