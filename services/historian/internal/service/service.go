// Package service is the inbound surface of the historian: it validates
// requested days and sensors, queues them and answers status queries from
// the file store.
package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/errs"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/filestore"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/models"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/scheduler"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/utils"
)

// MinSensorID is the lowest accepted sensor id.
const MinSensorID = 1

// Status is the outcome of a day or sensor request.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusQueued    Status = "queued"
	StatusAccepted  Status = "accepted"
)

// Lister answers whether the archive lists a date.
type Lister interface {
	IsDateListed(ctx context.Context, date string) (bool, error)
}

// Service combines the scheduler, the store and the archive listing.
type Service struct {
	sched       *scheduler.Scheduler
	store       *filestore.Store
	lister      Lister
	maxSensorID int
	now         func() time.Time
}

// New wires a Service. maxSensorID is the highest accepted sensor id.
func New(sched *scheduler.Scheduler, store *filestore.Store, lister Lister, maxSensorID int) *Service {
	return &Service{
		sched:       sched,
		store:       store,
		lister:      lister,
		maxSensorID: maxSensorID,
		now:         time.Now,
	}
}

// ValidateDay accepts YYYY-MM-DD dates strictly before the current UTC day;
// the archive only carries completed days.
func (s *Service) ValidateDay(day string) error {
	ts, err := utils.ParseDate(day)
	if err != nil {
		return fmt.Errorf("%w: %q", errs.ErrInvalidDate, day)
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	if !ts.Before(today) {
		return fmt.Errorf("%w: %s", errs.ErrFutureDate, day)
	}
	return nil
}

// ParseSensorID parses and range checks a sensor id.
func (s *Service) ParseSensorID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id < MinSensorID || id > s.maxSensorID {
		return 0, fmt.Errorf("%w: %q (allowed %d-%d)", errs.ErrInvalidSensorID, raw, MinSensorID, s.maxSensorID)
	}
	return id, nil
}

// EnqueueDay queues a validated day. It reports false when the day is
// already queued.
func (s *Service) EnqueueDay(day string) (bool, error) {
	if err := s.ValidateDay(day); err != nil {
		return false, err
	}
	return s.sched.Enqueue(scheduler.Days, day)
}

// EnqueueSensor queues a sensor id. It reports false when already queued.
func (s *Service) EnqueueSensor(sensorID int) (bool, error) {
	if sensorID < MinSensorID || sensorID > s.maxSensorID {
		return false, fmt.Errorf("%w: %d", errs.ErrInvalidSensorID, sensorID)
	}
	return s.sched.Enqueue(scheduler.Sensors, strconv.Itoa(sensorID))
}

// IsDayQueued reports whether a day is pending or running.
func (s *Service) IsDayQueued(day string) bool {
	return s.sched.Contains(scheduler.Days, day)
}

// IsSensorQueued reports whether a sensor is pending or running.
func (s *Service) IsSensorQueued(sensorID int) bool {
	return s.sched.Contains(scheduler.Sensors, strconv.Itoa(sensorID))
}

// IsDayProcessed reports whether the store holds history for the day.
func (s *Service) IsDayProcessed(day string) (bool, error) {
	return s.store.IsDayAlreadyProcessed(day)
}

// LocationsForDay lists the zones holding history for the day.
func (s *Service) LocationsForDay(day string) ([]string, error) {
	return s.store.LocationsForDay(day)
}

// AvailableDays lists every stored day.
func (s *Service) AvailableDays() ([]string, error) {
	return s.store.AvailableDays()
}

// IsDateListedUpstream asks the archive whether it carries the day.
func (s *Service) IsDateListedUpstream(ctx context.Context, day string) (bool, error) {
	return s.lister.IsDateListed(ctx, day)
}

// RequestDay validates a day and queues it unless it is already stored or
// queued. Days the archive does not list are rejected with ErrNotListed.
func (s *Service) RequestDay(ctx context.Context, day string) (Status, error) {
	if err := s.ValidateDay(day); err != nil {
		return "", err
	}

	processed, err := s.IsDayProcessed(day)
	if err != nil {
		return "", err
	}
	if processed {
		return StatusProcessed, nil
	}
	if s.IsDayQueued(day) {
		return StatusQueued, nil
	}

	listed, err := s.IsDateListedUpstream(ctx, day)
	if err != nil {
		return "", err
	}
	if !listed {
		return "", fmt.Errorf("%w: %s", errs.ErrNotListed, day)
	}

	added, err := s.EnqueueDay(day)
	if err != nil {
		return "", err
	}
	if !added {
		return StatusQueued, nil
	}
	return StatusAccepted, nil
}

// RequestSensor queues a sensor unless it is already queued. Sensors are
// always accepted again after a run so new archive days get merged.
func (s *Service) RequestSensor(sensorID int) (Status, error) {
	added, err := s.EnqueueSensor(sensorID)
	if err != nil {
		return "", err
	}
	if !added {
		return StatusQueued, nil
	}
	return StatusAccepted, nil
}

// SensorAverages reads a sensor's stored average document.
func (s *Service) SensorAverages(sensorID int, phenomenon models.Phenomenon) (*models.SensorAverageDocument, error) {
	return s.store.ReadAverages(phenomenon, sensorID)
}
