package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/JonMunkholm/recordimport/internal/core"
	"github.com/JonMunkholm/recordimport/internal/logging"
)

// multipartMemory is how much of a multipart form is buffered in memory
// before spilling to temporary files.
const multipartMemory = 4 << 20

// multipartOverhead allows for boundaries and part headers on top of the
// file size limit.
const multipartOverhead = 64 << 10

type summaryJSON struct {
	TotalCount   int `json:"total_count"`
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`
	SuccessRate  int `json:"success_rate"`
}

type rowResultJSON struct {
	Row    int                      `json:"row"`
	Status core.RowStatus           `json:"status"`
	Errors []core.ValidationFinding `json:"errors"`
	Data   map[string]any           `json:"data"`
}

type preflightResponse struct {
	ValidationID     string          `json:"validation_id"`
	Summary          summaryJSON     `json:"summary"`
	ValidationResult []rowResultJSON `json:"validation_result"`
	Message          string          `json:"message"`
}

type commitRequest struct {
	OwnerID string           `json:"owner_id"`
	Records []map[string]any `json:"records"`
}

type commitResponse struct {
	Summary summaryJSON            `json:"summary"`
	Created []core.CommittedRecord `json:"created"`
	Errors  []core.CommitFinding   `json:"errors"`
	Message string                 `json:"message"`
}

// handleValidate runs a preflight over an uploaded file. Rows failing
// validation still produce 200; only transport and shape problems are 400.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, maxSize))
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: %v", core.ErrNoFile, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %v", core.ErrNoFile, err))
		return
	}
	defer file.Close()

	if header.Size > maxSize {
		s.respondError(w, r, fmt.Errorf("%w: %d bytes, limit is %d", core.ErrFileTooLarge, header.Size, maxSize))
		return
	}
	if ct := header.Header.Get("Content-Type"); !s.allowedContentType(ct) {
		s.respondError(w, r, fmt.Errorf("%w: content type %q", core.ErrUnsupportedFormat, ct))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	result, err := s.service.Preflight(withRequestMetadata(r), header.Filename, data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.ForImport(r.Context(), string(core.ModePreflight), "", result.ValidationID).
		Debug("preflight response", "file", header.Filename, "bytes", len(data))

	writeJSON(w, http.StatusOK, toPreflightResponse(result))
}

// handleCommit persists structured records: 201 when every record was
// registered, 207 when some were, 400 when none were.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, fmt.Errorf("%w: request body exceeds %d bytes", core.ErrFileTooLarge, s.cfg.Import.MaxFileSize))
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: %v", core.ErrInvalidRequest, err))
		return
	}

	req, err := decodeCommitRequest(body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	outcome, err := s.service.Commit(withRequestMetadata(r), core.CommitRequest{
		OwnerID: req.OwnerID,
		Records: req.Records,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	status := http.StatusCreated
	switch outcome.Class() {
	case core.OutcomePartial:
		status = http.StatusMultiStatus
	case core.OutcomeFailure:
		status = http.StatusBadRequest
	}

	logging.ForImport(r.Context(), string(core.ModeCommit), req.OwnerID, "").
		Debug("commit response", "status", status, "class", outcome.Class())

	writeJSON(w, status, commitResponse{
		Summary: summaryJSON{
			TotalCount:   outcome.Total,
			SuccessCount: outcome.SuccessCount,
			ErrorCount:   outcome.ErrorCount,
			SuccessRate:  outcome.SuccessRate,
		},
		Created: outcome.Created,
		Errors:  outcome.Errors,
		Message: outcome.Message(),
	})
}

// handleTemplate serves the example file in CSV (default) or XLSX form.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))

	switch format {
	case "", "csv":
		var buf bytes.Buffer
		if err := core.WriteTemplateCSV(&buf); err != nil {
			s.respondError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="project_history_template.csv"`)
		_, _ = w.Write(buf.Bytes())

	case "xlsx":
		data, err := core.TemplateXLSX()
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="project_history_template.xlsx"`)
		_, _ = w.Write(data)

	default:
		s.respondError(w, r, fmt.Errorf("%w: template format %q", core.ErrUnsupportedFormat, format))
	}
}

type healthResponse struct {
	Status   string                   `json:"status"`
	Database string                   `json:"database"`
	Imports  core.ImportLimiterStatus `json:"imports"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Database: "ok",
		Imports:  s.service.Limiter().Status(),
	}
	status := http.StatusOK

	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			logging.FromContext(r.Context()).Warn("health check: database unreachable", "error", err)
			resp.Status, resp.Database = "degraded", "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}

// allowedContentType reports whether a part's declared content type is
// accepted. A missing content type is left to the extension check.
func (s *Server) allowedContentType(ct string) bool {
	if ct == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	for _, allowed := range s.cfg.Import.AllowedContentTypes {
		if strings.EqualFold(mediaType, allowed) {
			return true
		}
	}
	return false
}

func toPreflightResponse(result core.PreflightResult) preflightResponse {
	rows := make([]rowResultJSON, len(result.Rows))
	for i, row := range result.Rows {
		findings := row.Findings
		if findings == nil {
			findings = []core.ValidationFinding{}
		}
		rows[i] = rowResultJSON{
			Row:    row.Row,
			Status: row.Status,
			Errors: findings,
			Data:   row.Normalized.Data(),
		}
	}

	return preflightResponse{
		ValidationID: result.ValidationID,
		Summary: summaryJSON{
			TotalCount:   result.Total,
			SuccessCount: result.SuccessCount,
			ErrorCount:   result.ErrorCount,
			SuccessRate:  result.SuccessRate,
		},
		ValidationResult: rows,
		Message:          result.Message,
	}
}
