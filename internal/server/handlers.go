package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MeKo-Tech/wordscan/internal/imports"
	"github.com/MeKo-Tech/wordscan/internal/pdf"
	"github.com/MeKo-Tech/wordscan/internal/session"
	"github.com/MeKo-Tech/wordscan/internal/utils"
	"github.com/MeKo-Tech/wordscan/internal/version"
)

const formatText = "text"

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Error encoding health response", "error", err)
	}
}

// scanImageHandler scans an uploaded still image.
func (s *Server) scanImageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	file, header, ok := s.formFile(w, r, "image")
	if !ok {
		return
	}
	defer func() { _ = file.Close() }()

	img, _, err := utils.ReadImage(file, s.maxUploadBytes(), header.Header.Get("Content-Type"))
	if err != nil {
		scanRequestsTotal.WithLabelValues("image", "invalid").Inc()
		s.writeErrorResponse(w, "Invalid image format", http.StatusBadRequest)
		return
	}

	start := time.Now()
	results, err := s.withSession(r.Context(), func(ctx context.Context, sess *session.Session) ([]imports.Result, error) {
		res, err := s.importer.Image(ctx, sess, header.Filename, img)
		if err != nil {
			return nil, err
		}
		return []imports.Result{res}, nil
	})
	s.finishScan(w, r, "image", start, results, err)
}

// scanPDFHandler scans the text layer and embedded images of an uploaded PDF.
func (s *Server) scanPDFHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	file, header, ok := s.formFile(w, r, "pdf")
	if !ok {
		return
	}
	defer func() { _ = file.Close() }()

	pageRange := r.FormValue("pages")
	if _, err := pdf.ParsePageRange(pageRange); err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Invalid page range: %v", err), http.StatusBadRequest)
		return
	}

	// pdfcpu works on files, so the upload is spooled to disk.
	tmp, err := spool(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	defer func() { _ = os.Remove(tmp) }()

	opts := imports.PDFOptions{
		Pages: pageRange,
		Credentials: pdf.PasswordCredentials{
			UserPassword:  r.FormValue("password"),
			OwnerPassword: r.FormValue("owner_password"),
		},
		SkipTextLayer: r.FormValue("text_layer") == "false",
	}

	start := time.Now()
	results, err := s.withSession(r.Context(), func(ctx context.Context, sess *session.Session) ([]imports.Result, error) {
		return s.importer.PDF(ctx, sess, tmp, opts)
	})
	for i := range results {
		results[i].Source = header.Filename
	}
	s.finishScan(w, r, "pdf", start, results, err)
}

// formFile parses the multipart upload and returns the named file. On
// failure the error response has been written.
func (s *Server) formFile(w http.ResponseWriter, r *http.Request, field string) (multipart.File, *multipart.FileHeader, bool) {
	limit := s.maxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		}
		return nil, nil, false
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("No %s file provided", field), http.StatusBadRequest)
		return nil, nil, false
	}
	if header.Size > limit {
		_ = file.Close()
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return nil, nil, false
	}
	uploadSizeBytes.Observe(float64(header.Size))
	return file, header, true
}

func (s *Server) maxUploadBytes() int64 { return s.maxUploadMB * 1024 * 1024 }

// withSession runs fn on a pooled single-frame session under the request
// timeout.
func (s *Server) withSession(
	ctx context.Context,
	fn func(context.Context, *session.Session) ([]imports.Result, error),
) ([]imports.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sess, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(sess)
	return fn(ctx, sess)
}

// finishScan records metrics and writes the scan response in the requested
// format.
func (s *Server) finishScan(w http.ResponseWriter, r *http.Request, kind string, start time.Time, results []imports.Result, err error) {
	scanDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		scanRequestsTotal.WithLabelValues(kind, "error").Inc()
		s.logger.Warn("scan failed", "type", kind, "error", err)
		s.writeErrorResponse(w, fmt.Sprintf("Scan failed: %v", err), scanErrorStatus(err))
		return
	}
	scanRequestsTotal.WithLabelValues(kind, "success").Inc()

	found := 0
	for _, res := range results {
		found += len(res.Found)
	}
	addressesReturned.WithLabelValues(kind).Observe(float64(found))

	format := r.FormValue("format")
	if format == "" {
		format = r.URL.Query().Get("format")
	}
	if format == formatText {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if _, err := io.WriteString(w, imports.FormatText(results)); err != nil {
			s.logger.Error("Error writing response", "error", err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ScanResponse{Success: true, Results: results}); err != nil {
		s.logger.Error("Error encoding scan response", "error", err)
	}
}

func scanErrorStatus(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, session.ErrPoolClosed):
		return http.StatusServiceUnavailable
	case pdf.IsPasswordError(err), errors.Is(err, pdf.ErrEncrypted):
		return http.StatusUnauthorized
	case errors.Is(err, imports.ErrNothingToScan):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// spool copies r to a temporary file and returns its path.
func spool(r io.Reader) (string, error) {
	f, err := os.CreateTemp("", "wordscan-upload-*.pdf")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(ScanResponse{Success: false, Error: message}); err != nil {
		s.logger.Error("Error writing error response", "error", err)
	}
}
