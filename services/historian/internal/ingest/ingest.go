// Package ingest turns archive exports into stored documents.
//
// DayIngestor builds the per-zone raw timeseries of one day. SensorAggregator
// builds the daily averages of one sensor across the whole archive. Both run
// their work items sequentially with a fixed delay between archive requests;
// a failing file or date is logged and skipped, a failing catalog lookup
// aborts the run before anything is written.
package ingest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/errs"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/models"
)

// Lane names used for logs and metrics.
const (
	LaneDays    = "days"
	LaneSensors = "sensors"
)

// Catalog is the archive surface the ingestors depend on.
type Catalog interface {
	ListAvailableDates(ctx context.Context) ([]string, error)
	ListDayFiles(ctx context.Context, date string) ([]string, error)
	FetchFile(ctx context.Context, date, name string) ([]byte, error)
}

// Mirror receives a copy of what was stored. Failures are logged only.
type Mirror interface {
	UpsertSensors(ctx context.Context, sensors []models.SensorIdentity) error
	UpsertDailyAverages(ctx context.Context, doc *models.SensorAverageDocument) error
}

// Options tune both ingestors.
type Options struct {
	// FetchDelay is the pause between two archive requests of one run.
	FetchDelay time.Duration

	// Mirror is optional.
	Mirror Mirror
}

func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// isMissing reports an archive 404, the normal answer for a sensor that did
// not report on a day.
func isMissing(err error) bool {
	var fetchErr *errs.FetchError
	return errors.As(err, &fetchErr) && fetchErr.StatusCode == http.StatusNotFound
}
