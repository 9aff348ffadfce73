package server

import "github.com/vietddude/backstop/internal/infra/upstream"

// SystemStatus represents the overall health state of the service or an upstream.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// UpstreamHealth contains health metrics for one upstream.
type UpstreamHealth struct {
	Name      string       `json:"name"`
	Status    SystemStatus `json:"status"`
	ErrorRate float64      `json:"error_rate"`
	LatencyMs int64        `json:"latency_ms"`
}

// HealthReport contains the full health report.
type HealthReport struct {
	SystemStatus SystemStatus              `json:"system_status"`
	Upstreams    map[string]UpstreamHealth `json:"upstreams"`
}

func upstreamHealth(c *upstream.Client) UpstreamHealth {
	h := c.Health()
	status := StatusHealthy
	switch {
	case !h.Available:
		status = StatusCritical
	case h.ErrorRate > 0.1:
		status = StatusDegraded
	}
	return UpstreamHealth{
		Name:      c.Name(),
		Status:    status,
		ErrorRate: h.ErrorRate,
		LatencyMs: h.Latency.Milliseconds(),
	}
}

// checkHealth aggregates upstream health, worst case wins.
func (s *Server) checkHealth() HealthReport {
	report := HealthReport{
		SystemStatus: StatusHealthy,
		Upstreams:    make(map[string]UpstreamHealth, len(s.upstreams)),
	}
	for name, c := range s.upstreams {
		h := upstreamHealth(c)
		report.Upstreams[name] = h
		if h.Status == StatusCritical {
			report.SystemStatus = StatusCritical
		} else if h.Status == StatusDegraded && report.SystemStatus != StatusCritical {
			report.SystemStatus = StatusDegraded
		}
	}
	return report
}
