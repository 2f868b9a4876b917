package documents

import "time"

// Status is the processing state of a Document.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Document is an uploaded service report owned by a user.
type Document struct {
	ID                  string
	UserID              string
	FileName            string
	FileSize            int64
	MimeType            string
	S3Key               string
	S3Bucket            string
	ProcessingStatus    Status
	ProcessingError     *string
	ExtractedText       *string
	ExtractedTextLength *int
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ProcessedAt         *time.Time
}

// ListFilter narrows ListByUser. An empty Status matches every status.
type ListFilter struct {
	Limit  int
	Offset int
	Status Status
}

// StatusCounts is the number of a user's documents in each status.
type StatusCounts struct {
	All        int `json:"all"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

func (c *StatusCounts) add(status Status, n int) {
	switch status {
	case StatusPending:
		c.Pending += n
	case StatusProcessing:
		c.Processing += n
	case StatusCompleted:
		c.Completed += n
	case StatusFailed:
		c.Failed += n
	}
	c.All += n
}
