package api_types

// HealthCheckResponse represents the response structure for the health check endpoint.
type HealthCheckResponse struct {
	OverallStatus string `json:"overall_status"`
	PostgreSQL    string `json:"postgresql"`
	EventStore    string `json:"eventstore"`
	Redis         string `json:"redis"`
	Message       string `json:"message,omitempty"`
}

// InfoResponse is served by GET /api/0/info.
type InfoResponse struct {
	Hostname string `json:"hostname"`
	Version  string `json:"version"`
	Testing  bool   `json:"testing"`
}
