// Package handler reports readiness of the attendance service over the standard gRPC health protocol and HTTP.
package handler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the overall ("") status.
const ServiceName = "cheqr.attendance"

// checkTimeout bounds each dependency check.
const checkTimeout = 2 * time.Second

// Pinger is used for readiness (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is used for readiness (e.g. the OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Check is one named dependency probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// DBCheck probes a database pool. A nil pinger yields no check.
func DBCheck(name string, p Pinger) []Check {
	if p == nil {
		return nil
	}
	return []Check{{Name: name, Fn: p.PingContext}}
}

// PolicyCheck probes the policy engine. A nil checker yields no check.
func PolicyCheck(c PolicyChecker) []Check {
	if c == nil {
		return nil
	}
	return []Check{{Name: "policy", Fn: c.HealthCheck}}
}

// Server runs dependency checks and publishes the result through a grpc health server.
type Server struct {
	grpc   *health.Server
	checks []Check

	mu   sync.RWMutex
	last map[string]string
}

// NewServer returns a Server for checks. With no checks the service is always SERVING.
func NewServer(checks ...Check) *Server {
	s := &Server{grpc: health.NewServer(), checks: checks, last: map[string]string{}}
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
	return s
}

// GRPC returns the health service implementation to register on a grpc.Server.
func (s *Server) GRPC() healthpb.HealthServer {
	return s.grpc
}

// Check runs every probe and returns ok plus a per-dependency status ("ok" or the error text).
func (s *Server) Check(ctx context.Context) (bool, map[string]string) {
	results := make(map[string]string, len(s.checks))
	ok := true
	for _, c := range s.checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Fn(cctx)
		cancel()
		if err != nil {
			ok = false
			results[c.Name] = err.Error()
			continue
		}
		results[c.Name] = "ok"
	}
	return ok, results
}

// Refresh runs the checks and updates the gRPC serving status.
func (s *Server) Refresh(ctx context.Context) bool {
	ok, results := s.Check(ctx)
	s.mu.Lock()
	changed := !equal(s.last, results)
	s.last = results
	s.mu.Unlock()

	if ok {
		s.setStatus(healthpb.HealthCheckResponse_SERVING)
	} else {
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	if changed {
		ev := log.Info()
		if !ok {
			ev = log.Warn()
		}
		for _, name := range sortedKeys(results) {
			ev = ev.Str(name, results[name])
		}
		ev.Bool("ready", ok).Msg("health: status changed")
	}
	return ok
}

// Run refreshes every interval until ctx is done.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Refresh(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING so load balancers drain before the listener closes.
func (s *Server) Shutdown() {
	s.grpc.Shutdown()
}

func (s *Server) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.grpc.SetServingStatus("", st)
	s.grpc.SetServingStatus(ServiceName, st)
}

func equal(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
