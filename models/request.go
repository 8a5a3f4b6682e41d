package models

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	// Query is the raw dork string, e.g. `site:example.com -inurl:public ext:pdf`.
	Query string `json:"query" binding:"required"`

	// Engines lists the engines to query ("google", "bing", "duckduckgo").
	// Empty means all configured engines.
	Engines []string `json:"engines,omitempty"`

	// MaxResults caps extraction per engine. 0 falls back to the server default.
	MaxResults int `json:"max_results,omitempty"`
}

// Defaults fills in zero-valued optional fields. MaxResults stays 0 here;
// the session controller substitutes the configured server default.
func (r *SearchRequest) Defaults() {
	if r.MaxResults > 100 {
		r.MaxResults = 100
	}
	if len(r.Engines) == 0 {
		r.Engines = []string{"google", "bing", "duckduckgo"}
	}
}

// SearchResponse is the body returned by POST /api/v1/search.
type SearchResponse struct {
	Success bool           `json:"success"`
	Query   string         `json:"query,omitempty"`
	Results []SearchResult `json:"results,omitempty"`
	Count   int            `json:"count"`
	Error   *ErrorDetail   `json:"error,omitempty"`
	Timing  TimingInfo     `json:"timing"`
}

// TimingInfo carries per-request timing for the API response.
type TimingInfo struct {
	TotalMs int64 `json:"total_ms"`
}

// StatsResponse is the body returned by GET /api/v1/stats.
type StatsResponse struct {
	Success bool         `json:"success"`
	Stats   MonitorStats `json:"stats"`
}
