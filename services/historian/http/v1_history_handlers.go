package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/service"
)

// handleV1ListDays returns every day with stored history
// GET /api/v1/history/days
func (s *Server) handleV1ListDays(c *gin.Context) {
	days, err := s.svc.AvailableDays()
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": days,
		"meta": gin.H{
			"count": len(days),
		},
	})
}

// handleV1GetDay reports whether a day is processed or queued
// GET /api/v1/history/days/:day
func (s *Server) handleV1GetDay(c *gin.Context) {
	day := c.Param("day")
	if err := s.svc.ValidateDay(day); err != nil {
		writeError(c, err)
		return
	}

	processed, err := s.svc.IsDayProcessed(day)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"day":       day,
			"processed": processed,
			"queued":    s.svc.IsDayQueued(day),
		},
	})
}

// handleV1RequestDay queues a day for ingestion
// POST /api/v1/history/days/:day
func (s *Server) handleV1RequestDay(c *gin.Context) {
	day := c.Param("day")

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.upstreamTimeout())
	defer cancel()

	status, err := s.svc.RequestDay(ctx, day)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(codeFor(status), gin.H{
		"data": gin.H{
			"day":    day,
			"status": status,
		},
	})
}

// handleV1DayLocations lists the zones stored for a processed day
// GET /api/v1/history/days/:day/locations
func (s *Server) handleV1DayLocations(c *gin.Context) {
	day := c.Param("day")
	if err := s.svc.ValidateDay(day); err != nil {
		writeError(c, err)
		return
	}

	locations, err := s.locationsForProcessedDay(day)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": locations,
		"meta": gin.H{
			"day":   day,
			"count": len(locations),
		},
	})
}

// handleV1ArchiveDate asks the archive whether it lists a day
// GET /api/v1/archive/dates/:day
func (s *Server) handleV1ArchiveDate(c *gin.Context) {
	day := c.Param("day")
	if err := s.svc.ValidateDay(day); err != nil {
		writeError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.upstreamTimeout())
	defer cancel()

	listed, err := s.svc.IsDateListedUpstream(ctx, day)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"day":    day,
			"listed": listed,
		},
	})
}

// codeFor answers 202 only when a request created new work.
func codeFor(status service.Status) int {
	if status == service.StatusAccepted {
		return http.StatusAccepted
	}
	return http.StatusOK
}
