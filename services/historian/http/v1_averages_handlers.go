package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/errs"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/models"
)

// handleV1GetSensor summarizes the stored documents of a sensor
// GET /api/v1/averages/sensors/:id
func (s *Server) handleV1GetSensor(c *gin.Context) {
	sensorID, err := s.svc.ParseSensorID(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	documents := gin.H{}
	for _, p := range models.Phenomena {
		doc, err := s.svc.SensorAverages(sensorID, p)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			writeError(c, err)
			return
		}
		documents[string(p)] = gin.H{
			"firstDate": doc.FirstDate,
			"lastDate":  doc.LastDate,
			"days":      len(doc.DailyAverages),
		}
	}

	queued := s.svc.IsSensorQueued(sensorID)
	if len(documents) == 0 && !queued {
		c.JSON(http.StatusNotFound, gin.H{"error": "sensor not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"id":        sensorID,
			"queued":    queued,
			"documents": documents,
		},
	})
}

// handleV1RequestSensor queues a sensor for aggregation
// POST /api/v1/averages/sensors/:id
func (s *Server) handleV1RequestSensor(c *gin.Context) {
	sensorID, err := s.svc.ParseSensorID(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	status, err := s.svc.RequestSensor(sensorID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(codeFor(status), gin.H{
		"data": gin.H{
			"id":     sensorID,
			"status": status,
		},
	})
}

// handleV1SensorAverages returns the stored average document
// GET /api/v1/averages/sensors/:id/:phenomenon
func (s *Server) handleV1SensorAverages(c *gin.Context) {
	sensorID, err := s.svc.ParseSensorID(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	phenomenon, err := models.ParsePhenomenon(c.Param("phenomenon"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := s.svc.SensorAverages(sensorID, phenomenon)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": doc,
		"meta": gin.H{
			"count": len(doc.DailyAverages),
		},
	})
}
