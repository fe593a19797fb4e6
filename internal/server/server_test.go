package server

import (
	"bytes"
	"context"
	"image/color"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/wordscan/internal/imports"
	"github.com/MeKo-Tech/wordscan/internal/recognition"
	"github.com/MeKo-Tech/wordscan/internal/session"
	"github.com/MeKo-Tech/wordscan/internal/testutil"
)

const testAddress = "index.home.raft"

// newTestServer returns a server whose engines recognize text and whose
// validator confirms testAddress.
func newTestServer(t *testing.T, text string, mutate func(*Config)) (*Server, *httptest.Server) {
	t.Helper()
	val := testutil.NewFakeValidator().Confirm(testAddress, "en")
	factory, err := session.NewFactory(session.Config{
		NewEngine: func() (recognition.Engine, error) { return testutil.StaticText(text), nil },
		Validator: val,
	})
	require.NoError(t, err)

	cfg := Config{
		Factory:     factory,
		Importer:    &imports.Importer{Validator: val},
		Sessions:    1,
		MaxUploadMB: 1,
		TimeoutSec:  5,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return srv, ts
}

// multipartBody builds a multipart form with one file and optional fields.
func multipartBody(t *testing.T, field, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func postForm(t *testing.T, url string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func pngUpload(t *testing.T) []byte {
	t.Helper()
	return testutil.EncodePNG(t, testutil.CreateTestImage(64, 32, color.White))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
