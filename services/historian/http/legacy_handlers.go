package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/errs"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/service"
)

// registerLegacyRoutes serves the plain-text routes older clients call.
func (s *Server) registerLegacyRoutes() {
	s.engine.GET("/generateHistory/:day", s.handleGenerateHistory)
	s.engine.GET("/generateAverages/:sensor", s.handleGenerateAverages)
	s.engine.GET("/availableLocations/:day", s.handleAvailableLocations)
	s.engine.GET("/availableDays", s.handleAvailableDays)
}

func (s *Server) handleGenerateHistory(c *gin.Context) {
	day := c.Param("day")

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.upstreamTimeout())
	defer cancel()

	status, err := s.svc.RequestDay(ctx, day)
	switch {
	case errors.Is(err, errs.ErrInvalidDate):
		c.String(http.StatusBadRequest, "Expected a date in the url formatted like this (YYYY-MM-DD)")
		return
	case errors.Is(err, errs.ErrFutureDate):
		c.String(http.StatusBadRequest, "This is a historic data store, day %s is not complete yet", day)
		return
	case errors.Is(err, errs.ErrNotListed):
		c.String(http.StatusNotFound, "The archive has no data for day %s", day)
		return
	case err != nil:
		log.Error("generate history failed", "day", day, "error", err)
		c.String(statusFor(err), "Could not check day %s against the archive", day)
		return
	}

	switch status {
	case service.StatusProcessed:
		c.String(http.StatusOK, "Day %s already exists", day)
	case service.StatusQueued:
		c.String(http.StatusOK, "Day %s is in the queue and will be processed soon.", day)
	default:
		c.String(http.StatusAccepted, "Day %s is not in the history yet, it was added to the queue", day)
	}
}

func (s *Server) handleGenerateAverages(c *gin.Context) {
	raw := c.Param("sensor")
	sensorID, err := s.svc.ParseSensorID(raw)
	if err != nil {
		c.String(http.StatusBadRequest, "Expected a numeric sensor id, got %q", raw)
		return
	}

	status, err := s.svc.RequestSensor(sensorID)
	if err != nil {
		writeError(c, err)
		return
	}
	if status == service.StatusQueued {
		c.String(http.StatusOK, "Sensor %d is in the queue and will be processed soon.", sensorID)
		return
	}
	c.String(http.StatusAccepted, "Sensor %d was added to the queue", sensorID)
}

func (s *Server) handleAvailableLocations(c *gin.Context) {
	day := c.Param("day")
	if err := s.svc.ValidateDay(day); err != nil {
		c.String(http.StatusBadRequest, "Expected a past date in the url formatted like this (YYYY-MM-DD)")
		return
	}

	locations, err := s.locationsForProcessedDay(day)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.String(http.StatusNotFound, "Day %s has not been processed yet", day)
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, locations)
}

func (s *Server) handleAvailableDays(c *gin.Context) {
	days, err := s.svc.AvailableDays()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, days)
}

// locationsForProcessedDay returns ErrNotFound for days without history.
func (s *Server) locationsForProcessedDay(day string) ([]string, error) {
	processed, err := s.svc.IsDayProcessed(day)
	if err != nil {
		return nil, err
	}
	if !processed {
		return nil, fmt.Errorf("%w: day %s not processed", errs.ErrNotFound, day)
	}
	return s.svc.LocationsForDay(day)
}
