package models

// UploadResult reports what a document upload did.
type UploadResult struct {
	DocumentID  string `json:"document_id"`
	Path        string `json:"path"`
	Action      string `json:"action"`
	ContentHash string `json:"content_hash"`
	SizeBytes   int    `json:"size_bytes"`
}

// SyncResult aggregates a bulk document sync.
type SyncResult struct {
	Created   int            `json:"created"`
	Updated   int            `json:"updated"`
	Unchanged int            `json:"unchanged"`
	Deleted   int            `json:"deleted"`
	Results   []UploadResult `json:"results,omitempty"`
}
