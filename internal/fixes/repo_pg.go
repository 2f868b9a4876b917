package fixes

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
)

// PGRepo implements Repo on Postgres with the pgvector extension.
type PGRepo struct {
	DB *sql.DB
}

const fixColumns = `id, document_id, user_id, client_name, client_address, client_phone,
    machine_model, machine_type, serial_number, problem_description, solution_applied,
    parts_used, service_date, technician_name, technician_id, labour_hours,
    searchable_text, summarized_searchable_text, embedding, embedding_summarized,
    embedding_model, search_vector IS NOT NULL AS has_search_vector, created_at, updated_at`

// firstUUID sorts before every generated id and starts a keyset scan.
const firstUUID = "00000000-0000-0000-0000-000000000000"

// Create inserts a fix. The search vector is computed in the database from SearchText.
func (r *PGRepo) Create(ctx context.Context, fix Fix) error {
	const query = `
INSERT INTO machine_fixes (
    id, document_id, user_id, client_name, client_address, client_phone,
    machine_model, machine_type, serial_number, problem_description, solution_applied,
    parts_used, service_date, technician_name, technician_id, labour_hours,
    searchable_text, summarized_searchable_text, embedding, embedding_summarized,
    embedding_model, search_vector, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21,
    CASE WHEN $22 = '' THEN NULL ELSE to_tsvector('english', $22) END,
    $23, $23
)`
	createdAt := fix.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(
		ctx,
		query,
		fix.ID,
		fix.DocumentID,
		fix.UserID,
		fix.ClientName,
		fix.ClientAddress,
		fix.ClientPhone,
		fix.MachineModel,
		fix.MachineType,
		fix.SerialNumber,
		fix.ProblemDescription,
		fix.SolutionApplied,
		fix.PartsUsed,
		fix.ServiceDate,
		fix.TechnicianName,
		fix.TechnicianID,
		fix.LabourHours,
		fix.SearchableText,
		fix.SummarizedSearchableText,
		vectorArg(fix.Embedding),
		vectorArg(fix.EmbeddingSummarized),
		fix.EmbeddingModel,
		fix.SearchText,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert fix document=%s: %w", fix.DocumentID, err)
	}
	return nil
}

// DeleteByDocument removes every fix derived from a document.
func (r *PGRepo) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM machine_fixes WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete fixes document=%s: %w", documentID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ListByUser lists a user's fixes newest first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, filter ListFilter) ([]Fix, error) {
	query := `SELECT ` + fixColumns + ` FROM machine_fixes WHERE user_id = $1`
	args := []any{userID}
	if mt := strings.TrimSpace(filter.MachineType); mt != "" {
		args = append(args, mt)
		query += fmt.Sprintf(" AND machine_type = $%d", len(args))
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFixes(rows)
}

// ListByDocument lists the fixes of one document owned by userID.
func (r *PGRepo) ListByDocument(ctx context.Context, userID, documentID string) ([]Fix, error) {
	query := `SELECT ` + fixColumns + ` FROM machine_fixes WHERE user_id = $1 AND document_id = $2 ORDER BY created_at ASC`
	rows, err := r.DB.QueryContext(ctx, query, userID, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFixes(rows)
}

// SearchSubstring matches the query case-insensitively against the
// identifying fields. Every hit has similarity 1.0.
func (r *PGRepo) SearchSubstring(ctx context.Context, userID, query string, limit int) ([]Scored, error) {
	const stmt = `SELECT ` + fixColumns + `
FROM machine_fixes
WHERE user_id = $1
  AND (client_name ILIKE $2 ESCAPE '\'
    OR machine_model ILIKE $2 ESCAPE '\'
    OR machine_type ILIKE $2 ESCAPE '\'
    OR serial_number ILIKE $2 ESCAPE '\'
    OR problem_description ILIKE $2 ESCAPE '\')
ORDER BY created_at DESC
LIMIT $3`
	rows, err := r.DB.QueryContext(ctx, stmt, userID, likePattern(query), limit)
	if err != nil {
		return nil, fmt.Errorf("substring search: %w", err)
	}
	defer rows.Close()

	list, err := scanFixes(rows)
	if err != nil {
		return nil, err
	}
	out := make([]Scored, 0, len(list))
	for _, f := range list {
		out = append(out, Scored{Fix: f, Similarity: 1.0})
	}
	return out, nil
}

// SearchEmbedding compares the query vector with both embeddings of every
// record and keeps the greater cosine similarity. A missing embedding counts as 0.
func (r *PGRepo) SearchEmbedding(ctx context.Context, userID string, vector []float32, floor float64, limit int) ([]Scored, error) {
	const stmt = `SELECT * FROM (
    SELECT ` + fixColumns + `,
        GREATEST(
            COALESCE(1 - (embedding <=> $2), 0),
            COALESCE(1 - (embedding_summarized <=> $2), 0)
        ) AS similarity
    FROM machine_fixes
    WHERE user_id = $1
) scored
WHERE similarity > $3
ORDER BY similarity DESC
LIMIT $4`
	rows, err := r.DB.QueryContext(ctx, stmt, userID, pgvector.NewVector(vector), floor, limit)
	if err != nil {
		return nil, fmt.Errorf("embedding search: %w", err)
	}
	defer rows.Close()
	return scanScored(rows)
}

// SearchFullText ranks records whose search vector matches the query.
// Normalization 1|32 divides by document length and maps the rank into [0,1).
func (r *PGRepo) SearchFullText(ctx context.Context, userID, query string, limit int) ([]Scored, error) {
	const stmt = `SELECT ` + fixColumns + `,
    ts_rank_cd(search_vector, plainto_tsquery('english', $2), 33) AS rank
FROM machine_fixes
WHERE user_id = $1
  AND search_vector @@ plainto_tsquery('english', $2)
ORDER BY rank DESC
LIMIT $3`
	rows, err := r.DB.QueryContext(ctx, stmt, userID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}
	defer rows.Close()
	return scanScored(rows)
}

// CountBackfillCandidates counts fixes missing a derived search field.
func (r *PGRepo) CountBackfillCandidates(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `
SELECT count(*) FROM machine_fixes
WHERE summarized_searchable_text IS NULL OR embedding_summarized IS NULL OR search_vector IS NULL`).Scan(&n)
	return n, err
}

// ListBackfillCandidates pages through candidates ordered by id.
func (r *PGRepo) ListBackfillCandidates(ctx context.Context, afterID string, limit int) ([]Fix, error) {
	if afterID == "" {
		afterID = firstUUID
	}
	stmt := `SELECT ` + fixColumns + `
FROM machine_fixes
WHERE (summarized_searchable_text IS NULL OR embedding_summarized IS NULL OR search_vector IS NULL)
  AND id > $1::uuid
ORDER BY id
LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, stmt, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFixes(rows)
}

// UpdateSearchFields writes the summary, its embedding and the search vector together.
func (r *PGRepo) UpdateSearchFields(ctx context.Context, id string, u SearchFieldsUpdate) error {
	const stmt = `
UPDATE machine_fixes
SET searchable_text = $2,
    summarized_searchable_text = $3,
    embedding_summarized = $4,
    search_vector = to_tsvector('english', $5),
    updated_at = now()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, stmt, id, u.SearchableText, u.SummarizedText, vectorArg(u.SummaryEmbedding), u.FullText)
	if err != nil {
		return fmt.Errorf("update search fields id=%s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFixes(rows *sql.Rows) ([]Fix, error) {
	out := []Fix{}
	for rows.Next() {
		f, err := scanFix(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanScored(rows *sql.Rows) ([]Scored, error) {
	out := []Scored{}
	for rows.Next() {
		var score float64
		f, err := scanFix(rows, &score)
		if err != nil {
			return nil, err
		}
		out = append(out, Scored{Fix: f, Similarity: score})
	}
	return out, rows.Err()
}

func scanFix(row rowScanner, extra ...any) (Fix, error) {
	var (
		f                                          Fix
		clientName, clientAddress, clientPhone     sql.NullString
		machineModel, machineType, serialNumber    sql.NullString
		partsUsed, technicianName, technicianID    sql.NullString
		searchableText, summarizedText, embedModel sql.NullString
		serviceDate                                sql.NullTime
		labourHours                                sql.NullFloat64
		embedding, embeddingSummarized             nullVector
	)
	dest := []any{
		&f.ID,
		&f.DocumentID,
		&f.UserID,
		&clientName,
		&clientAddress,
		&clientPhone,
		&machineModel,
		&machineType,
		&serialNumber,
		&f.ProblemDescription,
		&f.SolutionApplied,
		&partsUsed,
		&serviceDate,
		&technicianName,
		&technicianID,
		&labourHours,
		&searchableText,
		&summarizedText,
		&embedding,
		&embeddingSummarized,
		&embedModel,
		&f.HasSearchVector,
		&f.CreatedAt,
		&f.UpdatedAt,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return Fix{}, err
	}

	f.ClientName = stringPtr(clientName)
	f.ClientAddress = stringPtr(clientAddress)
	f.ClientPhone = stringPtr(clientPhone)
	f.MachineModel = stringPtr(machineModel)
	f.MachineType = stringPtr(machineType)
	f.SerialNumber = stringPtr(serialNumber)
	f.PartsUsed = stringPtr(partsUsed)
	f.TechnicianName = stringPtr(technicianName)
	f.TechnicianID = stringPtr(technicianID)
	f.SearchableText = stringPtr(searchableText)
	f.SummarizedSearchableText = stringPtr(summarizedText)
	f.EmbeddingModel = embedModel.String
	if serviceDate.Valid {
		d := serviceDate.Time
		f.ServiceDate = &d
	}
	if labourHours.Valid {
		h := labourHours.Float64
		f.LabourHours = &h
	}
	if embedding.Valid {
		f.Embedding = embedding.Vector.Slice()
	}
	if embeddingSummarized.Valid {
		f.EmbeddingSummarized = embeddingSummarized.Vector.Slice()
	}
	return f, nil
}

// nullVector scans a nullable vector column.
type nullVector struct {
	Vector pgvector.Vector
	Valid  bool
}

func (v *nullVector) Scan(src any) error {
	if src == nil {
		v.Valid = false
		return nil
	}
	if err := v.Vector.Scan(src); err != nil {
		return err
	}
	v.Valid = true
	return nil
}

func vectorArg(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(query string) string {
	return "%" + likeEscaper.Replace(query) + "%"
}

var _ Repo = (*PGRepo)(nil)
