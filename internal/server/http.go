package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	attendancehandler "cheqr/backend/internal/attendance/handler"
	healthhandler "cheqr/backend/internal/health/handler"
	"cheqr/backend/internal/server/middleware"
)

// HTTPDeps holds what the HTTP router serves.
type HTTPDeps struct {
	ServiceName string
	Tokens      middleware.TokenValidator
	Attendance  *attendancehandler.Handler
	Health      *healthhandler.Server
}

// NewRouter builds the gin engine: recovery, tracing, request logging, health probes and the
// authenticated /attendance group.
func NewRouter(deps HTTPDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(deps.ServiceName))
	r.Use(middleware.RequestLogger())

	if deps.Health != nil {
		r.GET("/healthz", deps.Health.Liveness)
		r.GET("/readyz", deps.Health.Readiness)
	}
	if deps.Attendance != nil {
		deps.Attendance.Register(r.Group("/attendance", middleware.Auth(deps.Tokens)))
	}
	return r
}

// NewHTTPServer wraps handler in an http.Server with timeouts. WriteTimeout stays zero because the live
// channel holds hijacked connections open.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
