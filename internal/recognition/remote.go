package recognition

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/disintegration/imaging"
)

// maxRemoteResponse bounds the text read back from a remote OCR server.
const maxRemoteResponse = 4 << 20

// Remote delegates recognition to an HTTP OCR server that accepts a
// multipart "image" upload on /ocr/image and answers plain text for
// format=text.
type Remote struct {
	BaseURL string
	Client  *http.Client
}

func (r *Remote) Name() string { return EngineRemote }

// Open verifies the server answers its health endpoint.
func (r *Remote) Open(ctx context.Context) error {
	if _, err := url.Parse(r.BaseURL); err != nil {
		return fmt.Errorf("invalid remote URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint("/health"), nil)
	if err != nil {
		return err
	}
	resp, err := r.client().Do(req)
	if err != nil {
		return fmt.Errorf("remote OCR unavailable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remote OCR unhealthy: %s", resp.Status)
	}
	return nil
}

func (r *Remote) Recognize(ctx context.Context, img image.Image, hint Hint) (string, error) {
	if !hint.Region.Empty() {
		img = imaging.Crop(img, hint.Region)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "frame.png")
	if err != nil {
		return "", err
	}
	if err := png.Encode(part, img); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	if len(hint.Languages) > 0 {
		_ = mw.WriteField("language", hint.Languages[0])
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint("/ocr/image?format=text"), &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("remote OCR request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteResponse))
	if err != nil {
		return "", fmt.Errorf("read remote OCR response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("remote OCR failed: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return string(data), nil
}

func (r *Remote) Close() error { return nil }

func (r *Remote) endpoint(path string) string {
	return strings.TrimRight(r.BaseURL, "/") + path
}

func (r *Remote) client() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return http.DefaultClient
}
