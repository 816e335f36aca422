package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/errs"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/filestore"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/logging"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/metrics"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/models"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/utils"
)

var dayLog = logging.Component("day-ingestor")

// DayReport summarizes one day run.
type DayReport struct {
	Date     string
	Files    int
	Ingested int
	Failed   int
	Written  int
}

// DayIngestor builds the per-zone history documents of one archive day.
type DayIngestor struct {
	catalog Catalog
	store   *filestore.Store
	opts    Options
}

// NewDayIngestor wires a day ingestor.
func NewDayIngestor(catalog Catalog, store *filestore.Store, opts Options) *DayIngestor {
	return &DayIngestor{catalog: catalog, store: store, opts: opts}
}

// dayGroups is phenomenon -> zone -> sensor id -> record for the run's date.
type dayGroups map[models.Phenomenon]map[string]map[int]models.SensorRecord

func (g dayGroups) add(rec models.SensorRecord, zone string) {
	zones, ok := g[rec.Phenomenon]
	if !ok {
		zones = make(map[string]map[int]models.SensorRecord)
		g[rec.Phenomenon] = zones
	}
	sensors, ok := zones[zone]
	if !ok {
		sensors = make(map[int]models.SensorRecord)
		zones[zone] = sensors
	}
	sensors[rec.ID] = rec
}

// Run ingests every sensor export of date and overwrites that day's zone
// files. Only a failed file listing aborts the run; a failing file is
// skipped and a failing write is reported after the remaining writes.
func (d *DayIngestor) Run(ctx context.Context, date string) (DayReport, error) {
	report := DayReport{Date: date}

	files, err := d.catalog.ListDayFiles(ctx, date)
	if err != nil {
		return report, fmt.Errorf("discover %s: %w", date, err)
	}
	report.Files = len(files)
	dayLog.Info("day discovered", "date", date, "files", len(files))

	groups := make(dayGroups)
	identities := make([]models.SensorIdentity, 0, len(files))

	for i, name := range files {
		if i > 0 {
			pause(ctx, d.opts.FetchDelay)
		}

		identity, err := d.ingestFile(ctx, date, name, groups)
		if err != nil {
			report.Failed++
			metrics.IncItemFailure(LaneDays, errs.Kind(err))
			dayLog.Warn("file skipped", "date", date, "file", name, "error", err)
			continue
		}
		report.Ingested++
		identities = append(identities, identity)
		dayLog.Debug("file ingested", "date", date, "sensor", identity.ID, "progress", i+1, "total", len(files))
	}

	written, persistErr := d.persist(date, groups)
	report.Written = written
	metrics.AddDocuments("history", written)

	if d.opts.Mirror != nil && len(identities) > 0 {
		if err := d.opts.Mirror.UpsertSensors(ctx, identities); err != nil {
			dayLog.Warn("mirror sensors failed", "date", date, "error", err)
		}
	}

	dayLog.Info("day finished",
		"date", date,
		"ingested", report.Ingested,
		"failed", report.Failed,
		"written", report.Written,
	)
	return report, persistErr
}

// ingestFile runs fetch -> parse -> aggregate for one export.
func (d *DayIngestor) ingestFile(ctx context.Context, date, name string, groups dayGroups) (models.SensorIdentity, error) {
	sensorID, err := utils.SensorIDFromFileName(name)
	if err != nil {
		return models.SensorIdentity{}, &errs.ParseError{Source: name, Err: err}
	}

	body, err := d.catalog.FetchFile(ctx, date, name)
	if err != nil {
		return models.SensorIdentity{}, err
	}

	readings, err := utils.ParseReadings(body)
	if err != nil {
		return models.SensorIdentity{}, &errs.ParseError{Source: name, Err: err}
	}

	identity := utils.Identity(sensorID, readings)
	zone := utils.ZoneKey(identity.Location.Latitude, identity.Location.Longitude)
	for _, p := range models.Phenomena {
		groups.add(models.SensorRecord{
			ID:           sensorID,
			Manufacturer: identity.Manufacturer,
			Name:         identity.Name,
			Phenomenon:   p,
			Date:         date,
			Location:     identity.Location,
			Timeserie:    utils.BuildTimeseries(readings, p),
		}, zone)
	}
	return identity, nil
}

// persist writes one document per phenomenon and zone, records ordered by
// sensor id. Every group is attempted even when an earlier write fails.
func (d *DayIngestor) persist(date string, groups dayGroups) (int, error) {
	var (
		written int
		failed  []error
	)
	for _, p := range models.Phenomena {
		zones := groups[p]
		zoneKeys := make([]string, 0, len(zones))
		for z := range zones {
			zoneKeys = append(zoneKeys, z)
		}
		sort.Strings(zoneKeys)

		for _, zone := range zoneKeys {
			sensors := zones[zone]
			records := make([]models.SensorRecord, 0, len(sensors))
			for _, rec := range sensors {
				records = append(records, rec)
			}
			sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

			path := filestore.HistoryPath(p, zone, date)
			if err := d.store.Write(path, records); err != nil {
				metrics.IncItemFailure(LaneDays, errs.Kind(err))
				dayLog.Error("history write failed", "path", path, "error", err)
				failed = append(failed, err)
				continue
			}
			written++
			dayLog.Debug("history written", "path", path, "sensors", len(records))
		}
	}
	return written, errors.Join(failed...)
}
