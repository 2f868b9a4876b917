package documents

import (
	"time"

	"servicedocs-backend/internal/fixes"
)

type uploadRequest struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

func (r uploadRequest) input() UploadInput {
	return UploadInput{FileName: r.FileName, FileSize: r.FileSize, MimeType: r.MimeType}
}

type uploadBatchRequest struct {
	Files []uploadRequest `json:"files"`
}

// UploadResponse is the credential returned for one declared file.
type UploadResponse struct {
	DocumentID       string `json:"documentId"`
	FileName         string `json:"fileName"`
	UploadURL        string `json:"uploadUrl"`
	S3Key            string `json:"s3Key"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

func toUploadResponse(t UploadTicket) UploadResponse {
	return UploadResponse{
		DocumentID:       t.DocumentID,
		FileName:         t.FileName,
		UploadURL:        t.UploadURL,
		S3Key:            t.S3Key,
		ExpiresInSeconds: int64(t.ExpiresIn / time.Second),
	}
}

// DocumentResponse is the outward-facing representation of a document.
type DocumentResponse struct {
	DocumentID          string     `json:"documentId"`
	FileName            string     `json:"fileName"`
	FileSize            int64      `json:"fileSize"`
	MimeType            string     `json:"mimeType"`
	ProcessingStatus    Status     `json:"processingStatus"`
	ProcessingError     *string    `json:"processingError"`
	ExtractedTextLength *int       `json:"extractedTextLength"`
	UploadedAt          time.Time  `json:"uploadedAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
	ProcessedAt         *time.Time `json:"processedAt"`
}

func toResponse(doc Document) DocumentResponse {
	return DocumentResponse{
		DocumentID:          doc.ID,
		FileName:            doc.FileName,
		FileSize:            doc.FileSize,
		MimeType:            doc.MimeType,
		ProcessingStatus:    doc.ProcessingStatus,
		ProcessingError:     doc.ProcessingError,
		ExtractedTextLength: doc.ExtractedTextLength,
		UploadedAt:          doc.CreatedAt,
		UpdatedAt:           doc.UpdatedAt,
		ProcessedAt:         doc.ProcessedAt,
	}
}

type listResponse struct {
	Documents []DocumentResponse `json:"documents"`
	Total     int                `json:"total"`
}

type detailResponse struct {
	DocumentResponse
	Fixes []fixes.Response `json:"fixes"`
}

type urlResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func fixesResponse(out WithFixes) []fixes.Response {
	return fixes.ToResponses(out.Fixes)
}
