package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Liveness handles GET /healthz. It only reports that the process serves HTTP.
func (s *Server) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness handles GET /readyz: 200 when every dependency answers, 503 otherwise.
func (s *Server) Readiness(c *gin.Context) {
	ok, results := s.Check(c.Request.Context())
	status := http.StatusOK
	state := "ready"
	if !ok {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	c.JSON(status, gin.H{"status": state, "checks": results})
}
