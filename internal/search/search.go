// Package search finds cards on a project board. Meilisearch serves
// queries when it is reachable; Postgres answers otherwise.
package search

// Result is a single card hit returned to the caller.
type Result struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	ColumnID    string `json:"columnId"`
	ColumnTitle string `json:"columnTitle"`
}

// Query describes a card search. ProjectID is always set: clients only
// ever search their own board.
type Query struct {
	Text      string
	ProjectID string
	Limit     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// CardRecord is the data we index for a card.
type CardRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ColumnID    string `json:"columnId"`
	ColumnTitle string `json:"columnTitle"`
	ProjectID   string `json:"projectId"`
}
