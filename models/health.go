package models

// HealthResponse is the body returned by GET /api/v1/health.
type HealthResponse struct {
	Status  string       `json:"status"`
	Uptime  string       `json:"uptime"`
	Proxied bool         `json:"proxied"`
	Stats   MonitorStats `json:"stats"`
	Version string       `json:"version"`
}
