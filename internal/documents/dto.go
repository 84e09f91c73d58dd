package documents

import "time"

// DocumentResponse is the outward-facing representation of a document.
type DocumentResponse struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"ownerId"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	StorageLocation string    `json:"storageLocation"`
	FilePath        string    `json:"filePath"`
	FileName        string    `json:"fileName"`
	FileType        string    `json:"fileType"`
	SizeBytes       int64     `json:"sizeBytes"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func toResponse(doc Document) DocumentResponse {
	return DocumentResponse{
		ID:              doc.ID,
		OwnerID:         doc.OwnerID,
		Title:           doc.Title,
		Description:     doc.Description,
		StorageLocation: doc.StorageLocation,
		FilePath:        doc.FilePath,
		FileName:        doc.FileName,
		FileType:        doc.FileType,
		SizeBytes:       doc.SizeBytes,
		Status:          doc.Status,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

func toResponses(docs []Document) []DocumentResponse {
	out := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toResponse(doc))
	}
	return out
}
