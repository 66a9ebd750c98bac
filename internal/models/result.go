package models

// ChunkResult is a single ranked chunk with the title of the document it came from.
type ChunkResult struct {
	DocumentID    string  `json:"document_id"`
	ChunkIndex    int     `json:"chunk_index"`
	ChunkText     string  `json:"chunk_text"`
	DocumentTitle string  `json:"document_title"`
	Similarity    float64 `json:"similarity"`
	Rank          int     `json:"rank"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results []*ChunkResult `json:"results"`
	// Total is the number of chunks scored before the limit was applied.
	Total     int    `json:"total"`
	QueryTime int64  `json:"query_time_ms"`
	Query     string `json:"query"`
	ClientID  string `json:"client_id"`
	// Weighting names the term weighting scheme that produced the similarities.
	Weighting string `json:"weighting"`
}
