package models

// SearchResult is one extracted search hit. URL is canonical (engine
// redirect wrapper stripped, percent-decoding resolved) before any dedup
// comparison happens.
type SearchResult struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Engine      string `json:"engine"`
}
