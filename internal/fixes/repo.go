package fixes

import "context"

// Store persists and lists fixes.
type Store interface {
	Create(ctx context.Context, fix Fix) error
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	ListByUser(ctx context.Context, userID string, filter ListFilter) ([]Fix, error)
	ListByDocument(ctx context.Context, userID, documentID string) ([]Fix, error)
}

// Searcher implements the three retrieval strategies of the hybrid search.
// Every method is scoped to userID.
type Searcher interface {
	SearchSubstring(ctx context.Context, userID, query string, limit int) ([]Scored, error)
	SearchEmbedding(ctx context.Context, userID string, vector []float32, floor float64, limit int) ([]Scored, error)
	SearchFullText(ctx context.Context, userID, query string, limit int) ([]Scored, error)
}

// Backfiller supports the search-index reconciliation job.
type Backfiller interface {
	CountBackfillCandidates(ctx context.Context) (int, error)
	ListBackfillCandidates(ctx context.Context, afterID string, limit int) ([]Fix, error)
	UpdateSearchFields(ctx context.Context, id string, update SearchFieldsUpdate) error
}

// Repo is the full fix persistence contract.
type Repo interface {
	Store
	Searcher
	Backfiller
}
