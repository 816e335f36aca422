package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/archive"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/errs"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/filestore"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/logging"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/metrics"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/models"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/utils"
)

var avgLog = logging.Component("sensor-aggregator")

// AverageReport summarizes one sensor run.
type AverageReport struct {
	SensorID   int
	Candidates int
	Skipped    int
	Fetched    int
	Failed     int
}

// SensorAggregator maintains the daily-average documents of sensors.
type SensorAggregator struct {
	catalog Catalog
	store   *filestore.Store
	opts    Options
}

// NewSensorAggregator wires a sensor aggregator.
func NewSensorAggregator(catalog Catalog, store *filestore.Store, opts Options) *SensorAggregator {
	return &SensorAggregator{catalog: catalog, store: store, opts: opts}
}

// sensorDocs holds the pm10 and pm25 documents of one sensor while a run
// merges new dates into them.
type sensorDocs struct {
	pm10, pm25 *models.SensorAverageDocument
	idx10      map[string]models.DailyAverage
	idx25      map[string]models.DailyAverage
	prior      bool
}

// Run fetches every archive date outside the sensor's stored window,
// merges the new daily means and rewrites both documents.
//
// The stored [firstDate, lastDate] window is treated as complete: a date
// inside it that failed in an earlier run is not fetched again.
func (a *SensorAggregator) Run(ctx context.Context, sensorID int) (AverageReport, error) {
	report := AverageReport{SensorID: sensorID}

	docs, err := a.load(sensorID)
	if err != nil {
		return report, fmt.Errorf("load sensor %d: %w", sensorID, err)
	}

	dates, err := a.catalog.ListAvailableDates(ctx)
	if err != nil {
		return report, fmt.Errorf("catalog for sensor %d: %w", sensorID, err)
	}

	candidates := dates
	if docs.prior && docs.pm10.HasWindow() {
		candidates, err = utils.FilterOutsideWindow(dates, docs.pm10.FirstDate, docs.pm10.LastDate)
		if err != nil {
			return report, &errs.ParseError{Source: filestore.AveragePath(models.PM10, sensorID), Err: err}
		}
	}
	report.Candidates = len(candidates)
	report.Skipped = len(dates) - len(candidates)
	avgLog.Info("sensor run started",
		"sensor", sensorID,
		"candidates", report.Candidates,
		"skipped", report.Skipped,
		"prior", docs.prior,
	)

	for i, date := range candidates {
		if i > 0 {
			pause(ctx, a.opts.FetchDelay)
		}
		if err := a.mergeDate(ctx, sensorID, date, docs); err != nil {
			report.Failed++
			if isMissing(err) {
				avgLog.Debug("no export for date", "sensor", sensorID, "date", date)
			} else {
				metrics.IncItemFailure(LaneSensors, errs.Kind(err))
				avgLog.Warn("date skipped", "sensor", sensorID, "date", date, "error", err)
			}
			continue
		}
		report.Fetched++
	}

	finalize(docs.pm10, docs.idx10)
	finalize(docs.pm25, docs.idx25)

	if err := a.persist(ctx, sensorID, docs); err != nil {
		return report, err
	}

	avgLog.Info("sensor run finished",
		"sensor", sensorID,
		"fetched", report.Fetched,
		"failed", report.Failed,
		"firstDate", docs.pm10.FirstDate,
		"lastDate", docs.pm10.LastDate,
	)
	return report, nil
}

// load reads both prior documents. A sensor counts as known only when both
// exist; otherwise fresh documents are started.
func (a *SensorAggregator) load(sensorID int) (*sensorDocs, error) {
	docs := &sensorDocs{}

	if a.store.Exists(filestore.AveragePath(models.PM10, sensorID)) &&
		a.store.Exists(filestore.AveragePath(models.PM25, sensorID)) {
		pm10, err := a.store.ReadAverages(models.PM10, sensorID)
		if err != nil {
			return nil, err
		}
		pm25, err := a.store.ReadAverages(models.PM25, sensorID)
		if err != nil {
			return nil, err
		}
		docs.pm10, docs.pm25, docs.prior = pm10, pm25, true
	} else {
		docs.pm10 = models.NewSensorAverageDocument(sensorID, models.PM10)
		docs.pm25 = models.NewSensorAverageDocument(sensorID, models.PM25)
	}

	docs.pm10.ID, docs.pm10.Phenomenon = sensorID, models.PM10
	docs.pm25.ID, docs.pm25.Phenomenon = sensorID, models.PM25
	docs.idx10 = docs.pm10.AverageIndex()
	docs.idx25 = docs.pm25.AverageIndex()
	return docs, nil
}

// mergeDate runs fetch -> parse -> aggregate for one date.
func (a *SensorAggregator) mergeDate(ctx context.Context, sensorID int, date string, docs *sensorDocs) error {
	name := archive.SensorFileName(date, sensorID)
	body, err := a.catalog.FetchFile(ctx, date, name)
	if err != nil {
		return err
	}

	readings, err := utils.ParseReadings(body)
	if err != nil {
		return &errs.ParseError{Source: name, Err: err}
	}
	pm10, pm25, err := utils.Means(readings)
	if err != nil {
		return &errs.ParseError{Source: name, Err: err}
	}

	if docs.pm10.Location.IsZero() {
		loc := utils.Identity(sensorID, readings).Location
		docs.pm10.Location = loc
		docs.pm25.Location = loc
	}

	docs.idx10[date] = models.DailyAverage{Date: date, Value: pm10}
	docs.idx25[date] = models.DailyAverage{Date: date, Value: pm25}
	return nil
}

func finalize(doc *models.SensorAverageDocument, idx map[string]models.DailyAverage) {
	doc.SetAverages(idx)
	first, last, ok := utils.DateBounds(doc.DailyAverages)
	if !ok {
		doc.FirstDate, doc.LastDate = "", ""
		return
	}
	doc.FirstDate, doc.LastDate = first, last
}

func (a *SensorAggregator) persist(ctx context.Context, sensorID int, docs *sensorDocs) error {
	var failed []error
	written := 0
	for _, doc := range []*models.SensorAverageDocument{docs.pm10, docs.pm25} {
		path := filestore.AveragePath(doc.Phenomenon, sensorID)
		if err := a.store.Write(path, doc); err != nil {
			metrics.IncItemFailure(LaneSensors, errs.Kind(err))
			avgLog.Error("average write failed", "path", path, "error", err)
			failed = append(failed, err)
			continue
		}
		written++

		if a.opts.Mirror != nil {
			if err := a.opts.Mirror.UpsertDailyAverages(ctx, doc); err != nil {
				avgLog.Warn("mirror averages failed", "sensor", sensorID, "phenomenon", doc.Phenomenon, "error", err)
			}
		}
	}
	metrics.AddDocuments("average", written)

	if a.opts.Mirror != nil && !docs.pm10.Location.IsZero() {
		identity := models.SensorIdentity{ID: sensorID, Location: docs.pm10.Location}
		if err := a.opts.Mirror.UpsertSensors(ctx, []models.SensorIdentity{identity}); err != nil {
			avgLog.Warn("mirror sensor failed", "sensor", sensorID, "error", err)
		}
	}
	return errors.Join(failed...)
}
