package http

import "github.com/gin-gonic/gin"

// registerV1Routes sets up the JSON API.
// Groups: /api/v1/history, /api/v1/averages, /api/v1/archive
func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware())

	// History endpoints - per-day zone documents
	history := v1.Group("/history")
	{
		history.GET("/days", s.handleV1ListDays)
		history.GET("/days/:day", s.handleV1GetDay)
		history.POST("/days/:day", s.handleV1RequestDay)
		history.GET("/days/:day/locations", s.handleV1DayLocations)
	}

	// Average endpoints - per-sensor daily means
	averages := v1.Group("/averages")
	{
		averages.GET("/sensors/:id", s.handleV1GetSensor)
		averages.POST("/sensors/:id", s.handleV1RequestSensor)
		averages.GET("/sensors/:id/:phenomenon", s.handleV1SensorAverages)
	}

	// Archive endpoints - upstream listing
	archive := v1.Group("/archive")
	{
		archive.GET("/dates/:day", s.handleV1ArchiveDate)
	}
}

func apiVersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-API-Version", "v1")
		c.Next()
	}
}
