package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/luftdaten-historian/services/historian/config"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/errs"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/filestore"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/models"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/scheduler"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/service"
)

type stubLister struct {
	listed map[string]bool
	err    error
}

func (s stubLister) IsDateListed(ctx context.Context, date string) (bool, error) {
	return s.listed[date], s.err
}

type fixture struct {
	server *Server
	store  *filestore.Store
	sched  *scheduler.Scheduler
}

func newFixture(t *testing.T, cfg config.Config, lister service.Lister) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	noop := func(ctx context.Context, key string) error { return nil }
	sched := scheduler.New(nil, noop, noop)
	cfg.DataDir = t.TempDir()
	store := filestore.New(cfg.DataDir)
	svc := service.New(sched, store, lister, 100000)
	return &fixture{server: New(cfg, svc), store: store, sched: sched}
}

func (f *fixture) do(t *testing.T, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) writeHistory(t *testing.T, p models.Phenomenon, zone, day string) {
	t.Helper()
	records := []models.SensorRecord{{ID: 1, Name: "SDS011", Phenomenon: p, Date: day, Timeserie: []models.TimeseriesPoint{}}}
	if err := f.store.Write(filestore.HistoryPath(p, zone, day), records); err != nil {
		t.Fatal(err)
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, config.Default(), stubLister{})
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header missing")
	}
}

func TestBearerAuth(t *testing.T) {
	cfg := config.Default()
	cfg.BearerToken = "secret"
	f := newFixture(t, cfg, stubLister{})

	if rec := f.do(t, http.MethodGet, "/availableDays", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d", rec.Code)
	}
	bad := http.Header{"Authorization": {"Bearer nope"}}
	if rec := f.do(t, http.MethodGet, "/availableDays", bad); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d", rec.Code)
	}
	good := http.Header{"Authorization": {"Bearer secret"}}
	if rec := f.do(t, http.MethodGet, "/availableDays", good); rec.Code != http.StatusOK {
		t.Errorf("good token status = %d", rec.Code)
	}
}

func TestLegacyGenerateHistory(t *testing.T) {
	f := newFixture(t, config.Default(), stubLister{listed: map[string]bool{"2019-04-23": true}})
	f.writeHistory(t, models.PM10, "48-9", "2019-04-22")

	tests := []struct {
		path string
		code int
		want string
	}{
		{"/generateHistory/2019-04-23", http.StatusAccepted, "added to the queue"},
		{"/generateHistory/2019-04-23", http.StatusOK, "in the queue"},
		{"/generateHistory/2019-04-22", http.StatusOK, "already exists"},
		{"/generateHistory/2019-04-21", http.StatusNotFound, "no data"},
		{"/generateHistory/2999-01-01", http.StatusBadRequest, "not complete"},
		{"/generateHistory/tomorrow", http.StatusBadRequest, "YYYY-MM-DD"},
	}
	for _, tt := range tests {
		rec := f.do(t, http.MethodGet, tt.path, nil)
		if rec.Code != tt.code || !strings.Contains(rec.Body.String(), tt.want) {
			t.Errorf("GET %s = %d %q, want %d containing %q", tt.path, rec.Code, rec.Body.String(), tt.code, tt.want)
		}
	}
	if got := f.sched.Pending(scheduler.Days); len(got) != 1 {
		t.Errorf("pending days = %v", got)
	}
}

func TestLegacyUpstreamFailure(t *testing.T) {
	f := newFixture(t, config.Default(), stubLister{err: &errs.FetchError{URL: "root", StatusCode: 500}})
	rec := f.do(t, http.MethodGet, "/generateHistory/2019-04-23", nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestLegacyGenerateAverages(t *testing.T) {
	f := newFixture(t, config.Default(), stubLister{})

	if rec := f.do(t, http.MethodGet, "/generateAverages/4711", nil); rec.Code != http.StatusAccepted {
		t.Errorf("first status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/generateAverages/4711", nil); rec.Code != http.StatusOK {
		t.Errorf("second status = %d", rec.Code)
	}
	for _, raw := range []string{"abc", "0", "100001"} {
		if rec := f.do(t, http.MethodGet, "/generateAverages/"+raw, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("sensor %q status = %d", raw, rec.Code)
		}
	}
	if !f.sched.Contains(scheduler.Sensors, "4711") {
		t.Error("sensor not queued")
	}
}

func TestLegacyLocationsAndDays(t *testing.T) {
	f := newFixture(t, config.Default(), stubLister{})
	f.writeHistory(t, models.PM10, "52-13", "2019-04-20")
	f.writeHistory(t, models.PM25, "48-9", "2019-04-20")
	f.writeHistory(t, models.PM10, "48-9", "2019-04-18")

	rec := f.do(t, http.MethodGet, "/availableLocations/2019-04-20", nil)
	var zones []string
	decode(t, rec, &zones)
	if len(zones) != 2 || zones[0] != "48-9" || zones[1] != "52-13" {
		t.Errorf("zones = %v", zones)
	}

	if rec := f.do(t, http.MethodGet, "/availableLocations/2019-04-19", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unprocessed day status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/availableDays", nil)
	var days []string
	decode(t, rec, &days)
	if len(days) != 2 || days[0] != "2019-04-18" || days[1] != "2019-04-20" {
		t.Errorf("days = %v", days)
	}
}

func TestV1History(t *testing.T) {
	f := newFixture(t, config.Default(), stubLister{listed: map[string]bool{"2019-04-23": true}})
	f.writeHistory(t, models.PM10, "52-13", "2019-04-20")

	rec := f.do(t, http.MethodGet, "/api/v1/history/days", nil)
	if rec.Header().Get("X-API-Version") != "v1" {
		t.Error("version header missing")
	}
	var list struct {
		Data []string       `json:"data"`
		Meta map[string]int `json:"meta"`
	}
	decode(t, rec, &list)
	if len(list.Data) != 1 || list.Meta["count"] != 1 {
		t.Errorf("days = %+v", list)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/history/days/2019-04-23", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/v1/history/days/2019-04-23", nil)
	var day struct {
		Data struct {
			Processed bool `json:"processed"`
			Queued    bool `json:"queued"`
		} `json:"data"`
	}
	decode(t, rec, &day)
	if day.Data.Processed || !day.Data.Queued {
		t.Errorf("day status = %+v", day.Data)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/history/days/2019-04-20/locations", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "52-13") {
		t.Errorf("locations = %d %s", rec.Code, rec.Body.String())
	}

	if rec := f.do(t, http.MethodPost, "/api/v1/history/days/2019-13-01", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid day status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/history/days/2019-04-21", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unlisted day status = %d", rec.Code)
	}
}

func TestV1Averages(t *testing.T) {
	f := newFixture(t, config.Default(), stubLister{})

	if rec := f.do(t, http.MethodGet, "/api/v1/averages/sensors/4711", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown sensor status = %d", rec.Code)
	}

	doc := models.NewSensorAverageDocument(4711, models.PM10)
	doc.FirstDate, doc.LastDate = "2019-04-20", "2019-04-21"
	doc.DailyAverages = []models.DailyAverage{{Date: "2019-04-20", Value: 12.5}, {Date: "2019-04-21", Value: 9.75}}
	if err := f.store.Write(filestore.AveragePath(models.PM10, 4711), doc); err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/averages/sensors/4711/pm10", nil)
	var got struct {
		Data models.SensorAverageDocument `json:"data"`
	}
	decode(t, rec, &got)
	if got.Data.ID != 4711 || len(got.Data.DailyAverages) != 2 || got.Data.LastDate != "2019-04-21" {
		t.Errorf("document = %+v", got.Data)
	}

	if rec := f.do(t, http.MethodGet, "/api/v1/averages/sensors/4711/pm25", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing phenomenon status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/averages/sensors/4711/no2", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad phenomenon status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/averages/sensors/4711", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"pm10"`) {
		t.Errorf("summary = %d %s", rec.Code, rec.Body.String())
	}

	if rec := f.do(t, http.MethodPost, "/api/v1/averages/sensors/4711", nil); rec.Code != http.StatusAccepted {
		t.Errorf("POST status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/averages/sensors/0", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("POST invalid status = %d", rec.Code)
	}
}

func TestV1ArchiveDate(t *testing.T) {
	f := newFixture(t, config.Default(), stubLister{listed: map[string]bool{"2019-04-23": true}})

	rec := f.do(t, http.MethodGet, "/api/v1/archive/dates/2019-04-23", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"listed":true`) {
		t.Errorf("listed = %d %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodGet, "/api/v1/archive/dates/2019-04-22", nil)
	if !strings.Contains(rec.Body.String(), `"listed":false`) {
		t.Errorf("unlisted = %s", rec.Body.String())
	}
}

func TestStaticData(t *testing.T) {
	f := newFixture(t, config.Default(), stubLister{})
	f.writeHistory(t, models.PM10, "52-13", "2019-04-20")

	rec := f.do(t, http.MethodGet, "/data/PM10/52-13/2019-04-20/data.json", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"SDS011"`) {
		t.Errorf("static = %d %s", rec.Code, rec.Body.String())
	}
}
