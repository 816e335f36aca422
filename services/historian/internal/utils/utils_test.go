package utils

import (
	"reflect"
	"strings"
	"testing"

	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/models"
)

const sampleCSV = `sensor_id;sensor_type;location;lat;lon;timestamp;P1;durP1;ratioP1;P2;durP2;ratioP2
123;SDS011;61;48.800;9.002;2019-04-23T00:01:32;10;;;4.5;;
123;SDS011;61;48.800;9.002;2019-04-23T00:04:01;20;;;5.5;;
123;SDS011;61;48.800;9.002;2019-04-23T00:06:29;30;;;6.51;;
`

func TestParseReadings(t *testing.T) {
	readings, err := ParseReadings([]byte(sampleCSV))
	if err != nil {
		t.Fatalf("ParseReadings: %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("len = %d, want 3", len(readings))
	}

	first := readings[0]
	want := models.SensorReading{
		SensorID:   123,
		SensorType: "SDS011",
		LocationID: 61,
		Latitude:   48.8,
		Longitude:  9.002,
		Timestamp:  "2019-04-23T00:01:32",
		P1:         10,
		P2:         4.5,
	}
	if first != want {
		t.Errorf("first reading = %+v, want %+v", first, want)
	}
}

func TestParseReadingsErrors(t *testing.T) {
	header := "sensor_id;sensor_type;location;lat;lon;timestamp;P1;P2\n"
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "empty", input: "", wantErr: "empty file"},
		{name: "header only", input: header, wantErr: "no data rows"},
		{name: "missing column", input: "sensor_id;lat;lon;timestamp;P1\n1;1;1;t;1\n", wantErr: `missing column "P2"`},
		{name: "malformed P1", input: header + "1;SDS011;2;48.1;9.1;t;abc;1\n", wantErr: "P1"},
		{name: "missing lat", input: header + "1;SDS011;2;;9.1;t;1;1\n", wantErr: "lat"},
		{name: "NaN P1", input: header + "1;SDS011;2;48.1;9.1;t;NaN;1\n", wantErr: "P1: non-finite"},
		{name: "infinite P2", input: header + "1;SDS011;2;48.1;9.1;t;1;+Inf\n", wantErr: "P2: non-finite"},
		{name: "infinite lon", input: header + "1;SDS011;2;48.1;Infinity;t;1;1\n", wantErr: "lon: non-finite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReadings([]byte(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseReadingsOptionalLocation(t *testing.T) {
	input := "sensor_id;sensor_type;location;lat;lon;timestamp;P1;P2\n7;SDS011;;1.5;2.5;t;1;2\n"
	readings, err := ParseReadings([]byte(input))
	if err != nil {
		t.Fatalf("ParseReadings: %v", err)
	}
	if readings[0].LocationID != 0 {
		t.Errorf("LocationID = %d, want 0", readings[0].LocationID)
	}
}

func TestMeans(t *testing.T) {
	readings, err := ParseReadings([]byte(sampleCSV))
	if err != nil {
		t.Fatalf("ParseReadings: %v", err)
	}
	pm10, pm25, err := Means(readings)
	if err != nil {
		t.Fatalf("Means: %v", err)
	}
	if pm10 != 20.00 {
		t.Errorf("pm10 = %v, want 20", pm10)
	}
	// (4.5 + 5.5 + 6.51) / 3 = 5.50333...
	if pm25 != 5.5 {
		t.Errorf("pm25 = %v, want 5.5", pm25)
	}

	if _, _, err := Means(nil); err == nil {
		t.Error("Means(nil) should fail")
	}
}

func TestRoundTo2(t *testing.T) {
	tests := map[float64]float64{
		1.005:    1,
		2.675001: 2.68,
		3.14159:  3.14,
		-1.236:   -1.24,
		0:        0,
	}
	for in, want := range tests {
		if got := RoundTo2(in); got != want {
			t.Errorf("RoundTo2(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestZoneKey(t *testing.T) {
	tests := []struct {
		lat, lon float64
		want     string
	}{
		{48.8, 9.002, "48-9"},
		{52.0, 13.999, "52-13"},
		{-34.6, -58.4, "-35--59"},
		{0.1, -0.1, "0--1"},
	}
	for _, tt := range tests {
		if got := ZoneKey(tt.lat, tt.lon); got != tt.want {
			t.Errorf("ZoneKey(%v, %v) = %q, want %q", tt.lat, tt.lon, got, tt.want)
		}
	}
}

func TestSensorIDFromFileName(t *testing.T) {
	id, err := SensorIDFromFileName("2019-04-23_sds011_sensor_4711.csv")
	if err != nil {
		t.Fatalf("SensorIDFromFileName: %v", err)
	}
	if id != 4711 {
		t.Errorf("id = %d, want 4711", id)
	}

	for _, bad := range []string{"2019-04-23_sds011.csv", "2019-04-23_sds011_sensor_x.csv"} {
		if _, err := SensorIDFromFileName(bad); err == nil {
			t.Errorf("SensorIDFromFileName(%q) should fail", bad)
		}
	}
}

func TestFilterOutsideWindow(t *testing.T) {
	dates := []string{"2019-01-01", "2019-01-02", "2019-01-05", "2019-01-09", "2019-01-10", "junk"}
	got, err := FilterOutsideWindow(dates, "2019-01-02", "2019-01-09")
	if err != nil {
		t.Fatalf("FilterOutsideWindow: %v", err)
	}
	want := []string{"2019-01-01", "2019-01-10"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if _, err := FilterOutsideWindow(dates, "bad", "2019-01-09"); err == nil {
		t.Error("expected error for malformed window")
	}
}

func TestDateBounds(t *testing.T) {
	first, last, ok := DateBounds([]models.DailyAverage{
		{Date: "2019-03-01"},
		{Date: "2018-12-31"},
		{Date: "2019-04-23"},
	})
	if !ok || first != "2018-12-31" || last != "2019-04-23" {
		t.Errorf("DateBounds = %q, %q, %v", first, last, ok)
	}

	if _, _, ok := DateBounds(nil); ok {
		t.Error("DateBounds(nil) should report !ok")
	}
}

func TestBuildTimeseries(t *testing.T) {
	readings, _ := ParseReadings([]byte(sampleCSV))
	pm25 := BuildTimeseries(readings, models.PM25)
	if len(pm25) != 3 || pm25[2].Value != 6.51 || pm25[2].Timestamp != "2019-04-23T00:06:29" {
		t.Errorf("unexpected pm25 series %+v", pm25)
	}
	pm10 := BuildTimeseries(readings, models.PM10)
	if pm10[0].Value != 10 {
		t.Errorf("pm10[0] = %+v", pm10[0])
	}

	id := Identity(123, readings)
	if id.Name != "SDS011" || id.Location.ID != 61 || id.Location.Latitude != 48.8 {
		t.Errorf("unexpected identity %+v", id)
	}
}
