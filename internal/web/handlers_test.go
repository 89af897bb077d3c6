package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/recordimport/internal/config"
	"github.com/JonMunkholm/recordimport/internal/core"
)

const testOwner = "6f1c2b7e-4d0a-4c43-9b1e-1f2d3c4b5a69"

// recordStore is an in-memory core.RecordStore and core.OwnerDirectory.
type recordStore struct {
	mu      sync.Mutex
	owners  map[string]bool
	codes   map[string]bool
	pingErr error
}

func newRecordStore() *recordStore {
	return &recordStore{
		owners: map[string]bool{testOwner: true},
		codes:  make(map[string]bool),
	}
}

func (s *recordStore) OwnerExists(_ context.Context, id string) (bool, error) {
	return s.owners[id], nil
}

func (s *recordStore) BeginBatch(context.Context) (core.BatchTx, error) {
	return &recordTx{store: s}, nil
}

func (s *recordStore) Ping(context.Context) error {
	return s.pingErr
}

type recordTx struct {
	store   *recordStore
	pending []string
}

func (t *recordTx) FindByOwnerAndCode(_ context.Context, owner, code string) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.codes[owner+"|"+code], nil
}

func (t *recordTx) CreateRecord(_ context.Context, rec core.ProjectRecord) (core.CommittedRecord, error) {
	t.pending = append(t.pending, rec.OwnerID+"|"+rec.ProjectCode)
	return core.CommittedRecord{
		ID:          fmt.Sprintf("rec-%d", len(t.pending)),
		OwnerID:     rec.OwnerID,
		ProjectCode: rec.ProjectCode,
		ProjectName: rec.ProjectName,
		CreatedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (t *recordTx) Savepoint(ctx context.Context, _ string, fn func(context.Context) error) error {
	mark := len(t.pending)
	if err := fn(ctx); err != nil {
		t.pending = t.pending[:mark]
		return err
	}
	return nil
}

func (t *recordTx) Commit(context.Context) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, k := range t.pending {
		t.store.codes[k] = true
	}
	return nil
}

func (t *recordTx) Rollback(context.Context) error { return nil }

func testConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	vars := map[string]string{
		"DATABASE_URL":       "postgres://localhost/test",
		"RATE_LIMIT_ENABLED": "false",
	}
	for k, v := range env {
		vars[k] = v
	}
	cfg, err := config.LoadFrom(config.MapLookup(vars))
	require.NoError(t, err)
	return cfg
}

func newTestServer(t *testing.T, env map[string]string, opts core.Options) (*Server, *recordStore) {
	t.Helper()
	store := newRecordStore()
	srv := NewServer(testConfig(t, env), core.NewService(store, store, opts), store)
	t.Cleanup(func() {
		for _, rl := range srv.limiters {
			rl.stop()
		}
	})
	return srv, store
}

func uploadRequest(t *testing.T, fileName, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/records/validate", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

const validCSV = "project_name,project_code,role_title,start_date,project_status\n" +
	"Billing,P1,Dev,2025-01-01,active\n" +
	",P2,Dev,2025-01-01,active\n"

func TestValidate_ReportsRowFindings(t *testing.T) {
	srv, _ := newTestServer(t, nil, core.Options{})

	rec := serve(srv, uploadRequest(t, "history.csv", "text/csv", []byte(validCSV)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[preflightResponse](t, rec)

	assert.NotEmpty(t, resp.ValidationID)
	assert.Equal(t, summaryJSON{TotalCount: 2, SuccessCount: 1, ErrorCount: 1, SuccessRate: 50}, resp.Summary)
	require.Len(t, resp.ValidationResult, 2)

	ok := resp.ValidationResult[0]
	assert.Equal(t, core.StatusOK, ok.Status)
	assert.Empty(t, ok.Errors)
	assert.Equal(t, "Billing", ok.Data[core.FieldProjectName])

	bad := resp.ValidationResult[1]
	assert.Equal(t, 2, bad.Row)
	assert.Equal(t, core.StatusError, bad.Status)
	require.Len(t, bad.Errors, 1)
	assert.Equal(t, core.FieldProjectName, bad.Errors[0].Field)
	assert.Equal(t, "required", bad.Errors[0].Message)
}

func TestValidate_Workbook(t *testing.T) {
	srv, _ := newTestServer(t, nil, core.Options{})
	data, err := core.TemplateXLSX()
	require.NoError(t, err)

	rec := serve(srv, uploadRequest(t, "template.xlsx", "", data))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[preflightResponse](t, rec)
	assert.Equal(t, 0, resp.Summary.ErrorCount)
}

func TestValidate_Rejections(t *testing.T) {
	big := strings.Repeat("x", 2048)

	tests := []struct {
		name     string
		env      map[string]string
		req      func(t *testing.T) *http.Request
		wantCode string
	}{
		{
			name: "unsupported extension",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "history.pdf", "", []byte("%PDF"))
			},
			wantCode: "FILE006",
		},
		{
			name: "unsupported content type",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "history.csv", "image/png", []byte(validCSV))
			},
			wantCode: "FILE006",
		},
		{
			name: "binary content",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "history.csv", "text/csv", []byte{0x00, 0x01, 0x02})
			},
			wantCode: core.CodeParseError,
		},
		{
			name: "header only",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "history.csv", "text/csv", []byte("project_code\n"))
			},
			wantCode: "FILE005",
		},
		{
			name: "too large",
			env:  map[string]string{"IMPORT_MAX_FILE_SIZE": "1024"},
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "history.csv", "text/csv", []byte(big))
			},
			wantCode: "FILE001",
		},
		{
			name: "no file part",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/records/validate", strings.NewReader("x=1"))
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				return req
			},
			wantCode: "FILE004",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.env, core.Options{})

			rec := serve(srv, tt.req(t))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestValidate_TooManyRows(t *testing.T) {
	srv, _ := newTestServer(t, nil, core.Options{MaxPreflightRows: 1})

	rec := serve(srv, uploadRequest(t, "history.csv", "text/csv", []byte(validCSV)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, core.CodeTooManyRows, decodeBody[ErrorResponse](t, rec).Code)
}

func commitRequestBody(t *testing.T, owner string, records ...map[string]any) *http.Request {
	t.Helper()
	body, err := json.Marshal(map[string]any{"owner_id": owner, "records": records})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/records/commit", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func record(code string) map[string]any {
	return map[string]any{
		"project_name":   "Project " + code,
		"project_code":   code,
		"role_title":     "Dev",
		"start_date":     "2025-01-01",
		"project_status": "active",
		"team_size":      4,
	}
}

func TestCommit_StatusByOutcome(t *testing.T) {
	invalid := record("X")
	invalid["participation_rate"] = 150

	tests := []struct {
		name       string
		records    []map[string]any
		wantStatus int
		wantCounts summaryJSON
		wantMsg    string
	}{
		{
			name:       "all created",
			records:    []map[string]any{record("A"), record("B")},
			wantStatus: http.StatusCreated,
			wantCounts: summaryJSON{TotalCount: 2, SuccessCount: 2, ErrorCount: 0, SuccessRate: 100},
			wantMsg:    "all records registered",
		},
		{
			name:       "partial",
			records:    []map[string]any{record("A"), invalid, record("A")},
			wantStatus: http.StatusMultiStatus,
			wantCounts: summaryJSON{TotalCount: 3, SuccessCount: 1, ErrorCount: 2, SuccessRate: 33},
			wantMsg:    "created 1, failed 2",
		},
		{
			name:       "none created",
			records:    []map[string]any{invalid},
			wantStatus: http.StatusBadRequest,
			wantCounts: summaryJSON{TotalCount: 1, SuccessCount: 0, ErrorCount: 1, SuccessRate: 0},
			wantMsg:    "no records registered, 1 failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, nil, core.Options{})

			rec := serve(srv, commitRequestBody(t, testOwner, tt.records...))

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			resp := decodeBody[commitResponse](t, rec)
			assert.Equal(t, tt.wantCounts, resp.Summary)
			assert.Equal(t, tt.wantMsg, resp.Message)
			assert.NotNil(t, resp.Created)
			assert.NotNil(t, resp.Errors)
		})
	}
}

func TestCommit_DuplicateFinding(t *testing.T) {
	srv, store := newTestServer(t, nil, core.Options{})

	rec := serve(srv, commitRequestBody(t, testOwner, record("A"), record("A")))

	require.Equal(t, http.StatusMultiStatus, rec.Code)
	resp := decodeBody[commitResponse](t, rec)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, core.CommitFinding{Row: 2, Field: "general", Code: core.CodeDuplicate, Message: "code already registered"}, resp.Errors[0])
	assert.True(t, store.codes[testOwner+"|A"])

	// A second batch sees the first one's record.
	rec = serve(srv, commitRequestBody(t, testOwner, record("A")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommit_Rejections(t *testing.T) {
	many := make([]map[string]any, core.DefaultMaxCommitRows+1)
	for i := range many {
		many[i] = record(fmt.Sprintf("P%d", i))
	}

	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		wantCode string
	}{
		{"too many records", func(t *testing.T) *http.Request { return commitRequestBody(t, testOwner, many...) }, core.CodeTooManyRows},
		{"unknown owner", func(t *testing.T) *http.Request { return commitRequestBody(t, "nobody", record("A")) }, "BAT003"},
		{"missing owner", func(t *testing.T) *http.Request { return commitRequestBody(t, "", record("A")) }, "BAT004"},
		{"empty records", func(t *testing.T) *http.Request { return commitRequestBody(t, testOwner) }, core.CodeBadRequest},
		{"malformed json", func(t *testing.T) *http.Request {
			return httptest.NewRequest(http.MethodPost, "/api/records/commit", strings.NewReader(`{"owner_id":`))
		}, core.CodeBadRequest},
		{"records not an array", func(t *testing.T) *http.Request {
			return httptest.NewRequest(http.MethodPost, "/api/records/commit",
				strings.NewReader(`{"owner_id":"`+testOwner+`","records":"A"}`))
		}, core.CodeBadRequest},
		{"nested field value", func(t *testing.T) *http.Request {
			return httptest.NewRequest(http.MethodPost, "/api/records/commit",
				strings.NewReader(`{"owner_id":"`+testOwner+`","records":[{"project_name":{"en":"x"}}]}`))
		}, core.CodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, store := newTestServer(t, nil, core.Options{})

			rec := serve(srv, tt.req(t))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantCode, decodeBody[ErrorResponse](t, rec).Code)
			assert.Empty(t, store.codes)
		})
	}
}

func TestCommit_BusyReturns503(t *testing.T) {
	srv, _ := newTestServer(t, nil, core.Options{MaxConcurrent: 1, MaxWait: 10 * time.Millisecond})
	require.NoError(t, srv.service.Limiter().Acquire(context.Background()))
	defer srv.service.Limiter().Release()

	rec := serve(srv, commitRequestBody(t, testOwner, record("A")))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, core.CodeTooManyBatch, decodeBody[ErrorResponse](t, rec).Code)
}

func TestTemplate(t *testing.T) {
	srv, _ := newTestServer(t, nil, core.Options{})

	t.Run("csv by default", func(t *testing.T) {
		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/records/template", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "project_history_template.csv")
		firstLine, _, _ := strings.Cut(rec.Body.String(), "\n")
		assert.Equal(t, strings.Join(core.TemplateHeaders(), ","), firstLine)
	})

	t.Run("xlsx", func(t *testing.T) {
		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/records/template?format=xlsx", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, []string{core.TemplateSheet}, f.GetSheetList())
	})

	t.Run("unknown format", func(t *testing.T) {
		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/records/template?format=pdf", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	srv, store := newTestServer(t, nil, core.Options{MaxConcurrent: 3})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[healthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, core.ImportLimiterStatus{Active: 0, Available: 3, MaxConcurrent: 3}, resp.Imports)

	store.pingErr = errors.New("connection refused")
	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decodeBody[healthResponse](t, rec).Status)
}

func TestAPIKeyRequired(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"REQUIRE_API_KEY": "true",
		"API_KEYS":        "secret-key",
	}, core.Options{})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/records/template", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/records/template", nil)
	req.Header.Set("X-API-Key", "secret-key")
	rec = serve(srv, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open for probes.
	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestImportRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"RATE_LIMIT_ENABLED": "true",
		"RATE_LIMIT_IMPORT":  "2",
	}, core.Options{})

	var codes []int
	for i := 0; i < 3; i++ {
		rec := serve(srv, commitRequestBody(t, testOwner, record(fmt.Sprintf("R%d", i))))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t, nil, core.Options{})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(fmt.Errorf("wrap: %w", core.ErrNoRows)))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(core.ErrTooManyImports))
	assert.Equal(t, http.StatusInternalServerError, statusFor(core.ErrScopeBroken))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
