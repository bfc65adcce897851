package model

// ChunkRecord is the metadata persisted next to the Nth vector of a user index.
type ChunkRecord struct {
	DocumentID int64  `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
	Filename   string `json:"filename"`
}

type SearchResult struct {
	Text       string  `json:"text"`
	Filename   string  `json:"filename"`
	DocumentID int64   `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}
