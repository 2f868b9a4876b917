package documents_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"servicedocs-backend/internal/bootstrap"
	"servicedocs-backend/internal/extract/extracttest"
	"servicedocs-backend/internal/shared/config"
	localstore "servicedocs-backend/internal/shared/storage/object/local"
)

func newTestApp(t *testing.T) *bootstrap.App {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		Port:                "0",
		CORSAllowOrigin:     []string{"http://localhost:5173"},
		LocalStoreDir:       t.TempDir(),
		Env:                 "dev",
		ObjectStoreType:     "local",
		S3Bucket:            "service-documents",
		WorkerConcurrency:   1,
		EmbeddingDimensions: 1536,
		SearchTimeout:       5 * time.Second,
	}

	app, err := bootstrap.Build(cfg)
	if err != nil {
		t.Fatalf("bootstrap build: %v", err)
	}
	t.Cleanup(func() { _ = app.Close(5 * time.Second) })
	return app
}

func do(t *testing.T, app *bootstrap.App, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	return resp
}

type uploadResponse struct {
	DocumentID       string `json:"documentId"`
	FileName         string `json:"fileName"`
	UploadURL        string `json:"uploadUrl"`
	S3Key            string `json:"s3Key"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

func initiate(t *testing.T, app *bootstrap.App, userID, fileName string) uploadResponse {
	t.Helper()
	resp := do(t, app, http.MethodPost, "/api/v1/documents/uploads", userID, map[string]any{
		"fileName": fileName,
		"fileSize": 2048,
		"mimeType": "application/pdf",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var out uploadResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return out
}

func TestUploadIntakeRecordsPendingDocument(t *testing.T) {
	app := newTestApp(t)

	up := initiate(t, app, "tech-1", "Service Report.pdf")
	if up.DocumentID == "" || up.UploadURL == "" {
		t.Fatalf("expected document id and upload url, got %+v", up)
	}
	if !strings.HasPrefix(up.S3Key, "documents/tech-1/") || !strings.HasSuffix(up.S3Key, "-Service Report.pdf") {
		t.Fatalf("unexpected storage key %q", up.S3Key)
	}
	if up.ExpiresInSeconds <= 0 {
		t.Fatalf("expected positive expiry, got %d", up.ExpiresInSeconds)
	}

	resp := do(t, app, http.MethodGet, "/api/v1/documents/"+up.DocumentID, "tech-1", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var doc struct {
		ProcessingStatus string            `json:"processingStatus"`
		FileName         string            `json:"fileName"`
		Fixes            []json.RawMessage `json:"fixes"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.ProcessingStatus != "pending" {
		t.Fatalf("expected pending, got %q", doc.ProcessingStatus)
	}
	if doc.FileName != "Service Report.pdf" {
		t.Fatalf("expected original file name, got %q", doc.FileName)
	}
	if doc.Fixes == nil || len(doc.Fixes) != 0 {
		t.Fatalf("expected empty fixes array, got %v", doc.Fixes)
	}
}

func TestUploadIntakeRejectsInvalidFiles(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "wrong mime type", body: map[string]any{"fileName": "a.txt", "fileSize": 10, "mimeType": "text/plain"}},
		{name: "too large", body: map[string]any{"fileName": "a.pdf", "fileSize": 11 << 20, "mimeType": "application/pdf"}},
		{name: "empty name", body: map[string]any{"fileName": " ", "fileSize": 10, "mimeType": "application/pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, app, http.MethodPost, "/api/v1/documents/uploads", "tech-1", tt.body)
			if resp.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected status 422, got %d", resp.Code)
			}
		})
	}

	resp := do(t, app, http.MethodGet, "/api/v1/documents", "tech-1", nil)
	var list struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 0 {
		t.Fatalf("expected no documents recorded, got %d", list.Total)
	}
}

func TestBatchUploadIsAllOrNothing(t *testing.T) {
	app := newTestApp(t)

	resp := do(t, app, http.MethodPost, "/api/v1/documents/uploads/batch", "tech-1", map[string]any{
		"files": []map[string]any{
			{"fileName": "a.pdf", "fileSize": 100, "mimeType": "application/pdf"},
			{"fileName": "b.docx", "fileSize": 100, "mimeType": "application/msword"},
		},
	})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", resp.Code)
	}

	resp = do(t, app, http.MethodPost, "/api/v1/documents/uploads/batch", "tech-1", map[string]any{
		"files": []map[string]any{
			{"fileName": "a.pdf", "fileSize": 100, "mimeType": "application/pdf"},
			{"fileName": "b.pdf", "fileSize": 100, "mimeType": "application/pdf"},
		},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = do(t, app, http.MethodGet, "/api/v1/documents/status-counts", "tech-1", nil)
	var counts map[string]int
	if err := json.Unmarshal(resp.Body.Bytes(), &counts); err != nil {
		t.Fatalf("decode counts: %v", err)
	}
	if counts["all"] != 2 || counts["pending"] != 2 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestListPaginatesAndReportsTotal(t *testing.T) {
	app := newTestApp(t)
	for _, name := range []string{"one.pdf", "two.pdf", "three.pdf"} {
		initiate(t, app, "tech-1", name)
	}
	initiate(t, app, "tech-2", "other.pdf")

	resp := do(t, app, http.MethodGet, "/api/v1/documents?limit=2&offset=0", "tech-1", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var list struct {
		Documents []json.RawMessage `json:"documents"`
		Total     int               `json:"total"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Documents) != 2 || list.Total != 3 {
		t.Fatalf("expected 2 of 3 documents, got %d of %d", len(list.Documents), list.Total)
	}

	for _, query := range []string{"limit=0", "limit=101", "offset=-1", "status=archived", "limit=abc"} {
		resp := do(t, app, http.MethodGet, "/api/v1/documents?"+query, "tech-1", nil)
		if resp.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected status 422, got %d", query, resp.Code)
		}
	}
}

func TestDocumentsAreTenantScoped(t *testing.T) {
	app := newTestApp(t)
	up := initiate(t, app, "tech-1", "report.pdf")

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/documents/" + up.DocumentID},
		{http.MethodGet, "/api/v1/documents/" + up.DocumentID + "/url"},
		{http.MethodPost, "/api/v1/documents/" + up.DocumentID + "/reprocess"},
		{http.MethodDelete, "/api/v1/documents/" + up.DocumentID},
	} {
		resp := do(t, app, tc.method, tc.path, "tech-2", nil)
		if resp.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected status 404, got %d", tc.method, tc.path, resp.Code)
		}
	}

	resp := do(t, app, http.MethodGet, "/api/v1/documents/not-a-uuid", "tech-1", nil)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 for malformed id, got %d", resp.Code)
	}

	resp = do(t, app, http.MethodGet, "/api/v1/documents", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without identity, got %d", resp.Code)
	}
}

func TestDocumentURLAndDelete(t *testing.T) {
	app := newTestApp(t)
	up := initiate(t, app, "tech-1", "report.pdf")

	resp := do(t, app, http.MethodGet, "/api/v1/documents/"+up.DocumentID+"/url", "tech-1", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var url struct {
		URL       string    `json:"url"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &url); err != nil {
		t.Fatalf("decode url: %v", err)
	}
	if !strings.Contains(url.URL, up.S3Key) || url.ExpiresAt.IsZero() {
		t.Fatalf("unexpected url response %+v", url)
	}

	resp = do(t, app, http.MethodDelete, "/api/v1/documents/"+up.DocumentID, "tech-1", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	resp = do(t, app, http.MethodGet, "/api/v1/documents/"+up.DocumentID, "tech-1", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 after delete, got %d", resp.Code)
	}
}

func TestProcessingFailureIsVisibleOnDocument(t *testing.T) {
	app := newTestApp(t)
	up := initiate(t, app, "tech-1", "report.pdf")

	store, ok := app.Store.(*localstore.Store)
	if !ok {
		t.Fatalf("expected local store, got %T", app.Store)
	}
	pdf := extracttest.BuildPDF("Compressor overheating. Replaced condenser fan.")
	if _, err := store.Put(context.Background(), app.Config.S3Bucket, up.S3Key, bytes.NewReader(pdf)); err != nil {
		t.Fatalf("put pdf: %v", err)
	}

	// No OpenAI key is configured, so extraction fails and is recorded.
	if err := app.Processor.Process(context.Background(), up.DocumentID); err == nil {
		t.Fatalf("expected processing error")
	}

	resp := do(t, app, http.MethodGet, "/api/v1/documents/"+up.DocumentID, "tech-1", nil)
	var doc struct {
		ProcessingStatus    string  `json:"processingStatus"`
		ProcessingError     *string `json:"processingError"`
		ExtractedTextLength *int    `json:"extractedTextLength"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.ProcessingStatus != "failed" {
		t.Fatalf("expected failed, got %q", doc.ProcessingStatus)
	}
	if doc.ProcessingError == nil || !strings.Contains(*doc.ProcessingError, "OPENAI_API_KEY") {
		t.Fatalf("expected provider error recorded, got %v", doc.ProcessingError)
	}
	if doc.ExtractedTextLength == nil || *doc.ExtractedTextLength == 0 {
		t.Fatalf("expected extracted text length, got %v", doc.ExtractedTextLength)
	}
}

func TestReprocessAccepted(t *testing.T) {
	app := newTestApp(t)
	up := initiate(t, app, "tech-1", "report.pdf")

	resp := do(t, app, http.MethodPost, "/api/v1/documents/"+up.DocumentID+"/reprocess", "tech-1", nil)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", resp.Code, resp.Body.String())
	}
}
