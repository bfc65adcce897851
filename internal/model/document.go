package model

// Document is the uploaded file a user owns. ChunkCount mirrors the number
// of metadata records the user's index holds for this document.
type Document struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"user_id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	FileType     string `json:"file_type"`
	ChunkCount   int    `json:"chunk_count"`
	Ctime        int64  `json:"ctime"`
}
