package recognition_test

import (
	"context"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/wordscan/internal/recognition"
)

func TestLanguagePack_Paths(t *testing.T) {
	p := &recognition.LanguagePack{Dir: "/data", Language: "eng+deu"}
	assert.Equal(t, []string{"/data/eng.traineddata", "/data/deu.traineddata"}, p.Paths())

	p.Language = ""
	assert.Equal(t, []string{"/data/eng.traineddata"}, p.Paths())
}

func TestLanguagePack_InstallDownloadsMissing(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = io.WriteString(w, "model:"+r.URL.Path)
	}))
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "eng.traineddata"), []byte("cached"), 0o600))

	p := &recognition.LanguagePack{Dir: dir, Language: "eng+jpn", BaseURL: srv.URL, Client: srv.Client()}
	ctx := context.Background()

	ok, err := p.Installed(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.Install(ctx))
	assert.Equal(t, int32(1), requests.Load(), "only the missing language is fetched")

	data, err := os.ReadFile(filepath.Join(dir, "jpn.traineddata"))
	require.NoError(t, err)
	assert.Equal(t, "model:/jpn.traineddata", string(data))

	ok, err = p.Installed(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLanguagePack_InstallFailureLeavesNothing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dir := t.TempDir()
	p := &recognition.LanguagePack{Dir: dir, Language: "fra", BaseURL: srv.URL, Client: srv.Client()}
	require.Error(t, p.Install(context.Background()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLanguagePack_EmptyBodyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	p := &recognition.LanguagePack{Dir: t.TempDir(), Language: "eng", BaseURL: srv.URL, Client: srv.Client()}
	err := p.Install(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty body")
}

func TestRemote_Recognize(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/ocr/image", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "text", r.URL.Query().Get("format"))
		f, _, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer func() { _ = f.Close() }()
		img, err := png.Decode(f)
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		assert.Equal(t, 3, img.Bounds().Dx())
		assert.Equal(t, "deu", r.FormValue("language"))
		_, _ = io.WriteString(w, "///index.home.raft")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := &recognition.Remote{BaseURL: srv.URL + "/", Client: srv.Client()}
	require.NoError(t, r.Open(context.Background()))

	text, err := r.Recognize(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)),
		recognition.Hint{Languages: []string{"deu"}, Region: image.Rect(0, 0, 3, 3)})
	require.NoError(t, err)
	assert.Equal(t, "///index.home.raft", text)
	assert.NoError(t, r.Close())
}

func TestRemote_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := &recognition.Remote{BaseURL: srv.URL, Client: srv.Client()}
	require.Error(t, r.Open(context.Background()))

	_, err := r.Recognize(context.Background(), image.NewRGBA(image.Rect(0, 0, 2, 2)), recognition.Hint{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestNewEngine(t *testing.T) {
	_, err := recognition.NewEngine(recognition.EngineConfig{Kind: "remote"})
	require.Error(t, err)

	e, err := recognition.NewEngine(recognition.EngineConfig{Kind: "Remote", RemoteURL: "http://localhost:8080"})
	require.NoError(t, err)
	assert.Equal(t, recognition.EngineRemote, e.Name())

	_, err = recognition.NewEngine(recognition.EngineConfig{Kind: "abacus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "abacus")
}

func TestDefaultEngineConfig(t *testing.T) {
	cfg := recognition.DefaultEngineConfig()
	assert.Equal(t, recognition.EngineTesseract, cfg.Kind)
	assert.Equal(t, "eng", cfg.Language)
	assert.Equal(t, recognition.DefaultTessdataURL, cfg.TessdataURL)
}
