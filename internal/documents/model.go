package documents

import "time"

// Status is the document lifecycle state.
type Status string

const (
	StatusUploaded Status = "uploaded"
	StatusIngested Status = "ingested"
)

// Document represents an uploaded document owned by a user.
type Document struct {
	ID              string
	OwnerID         string
	Title           string
	Description     string
	StorageLocation string
	FilePath        string
	FileName        string
	FileType        string
	SizeBytes       int64
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ListQuery selects a page of documents. Search matches the title.
type ListQuery struct {
	Page   int
	Limit  int
	Search string
}
