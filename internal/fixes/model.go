package fixes

import (
	"strings"
	"time"
)

// Fix is one structured repair record extracted from a service document.
type Fix struct {
	ID         string
	DocumentID string
	UserID     string

	ClientName         *string
	ClientAddress      *string
	ClientPhone        *string
	MachineModel       *string
	MachineType        *string
	SerialNumber       *string
	ProblemDescription string
	SolutionApplied    string
	PartsUsed          *string
	ServiceDate        *time.Time
	TechnicianName     *string
	TechnicianID       *string
	LabourHours        *float64

	SearchableText           *string
	SummarizedSearchableText *string
	Embedding                []float32
	EmbeddingSummarized      []float32
	EmbeddingModel           string

	// SearchText is the source of the full-text search vector. Empty means
	// the record has no search vector yet.
	SearchText      string
	HasSearchVector bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Scored is a fix with a strategy-specific similarity in [0,1].
type Scored struct {
	Fix        Fix
	Similarity float64
}

// ListFilter narrows ListByUser.
type ListFilter struct {
	Limit       int
	MachineType string
}

// SearchFieldsUpdate is written by the backfill job in a single update.
type SearchFieldsUpdate struct {
	SearchableText   string
	SummarizedText   string
	SummaryEmbedding []float32
	FullText         string
}

// FullTextSource joins the fields indexed for full-text search, skipping empty ones.
func FullTextSource(f Fix) string {
	parts := []string{f.ProblemDescription, f.SolutionApplied}
	for _, p := range []*string{f.MachineModel, f.MachineType, f.ClientName, f.PartsUsed, f.SerialNumber} {
		if p != nil {
			parts = append(parts, *p)
		}
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, " ")
}

// NeedsBackfill reports whether any derived search field is missing.
func (f Fix) NeedsBackfill() bool {
	return f.SummarizedSearchableText == nil || len(f.EmbeddingSummarized) == 0 || !f.HasSearchVector
}
