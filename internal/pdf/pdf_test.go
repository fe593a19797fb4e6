package pdf

import (
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePageRange(t *testing.T) {
	tests := []struct {
		name        string
		pageRange   string
		want        []int
		expectError bool
	}{
		{name: "empty range returns nil", pageRange: "", want: nil},
		{name: "blank range returns nil", pageRange: "  ", want: nil},
		{name: "single page", pageRange: "1", want: []int{1}},
		{name: "multiple single pages", pageRange: "1,3,5", want: []int{1, 3, 5}},
		{name: "simple range", pageRange: "1-5", want: []int{1, 2, 3, 4, 5}},
		{name: "mixed pages and ranges", pageRange: "1,3-5,7", want: []int{1, 3, 4, 5, 7}},
		{name: "range with spaces", pageRange: " 1 - 3 , 5 ", want: []int{1, 2, 3, 5}},
		{name: "overlapping and unordered", pageRange: "4,1-3,2", want: []int{1, 2, 3, 4}},
		{name: "invalid page number", pageRange: "abc", expectError: true},
		{name: "zero page", pageRange: "0", expectError: true},
		{name: "negative page", pageRange: "-1", expectError: true},
		{name: "invalid range format", pageRange: "1-2-3", expectError: true},
		{name: "start greater than end", pageRange: "5-1", expectError: true},
		{name: "invalid start page", pageRange: "abc-5", expectError: true},
		{name: "invalid end page", pageRange: "1-xyz", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePageRange(tt.pageRange)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePageFromFilename(t *testing.T) {
	tests := []struct {
		filename string
		want     int
		wantErr  bool
	}{
		{"page_1_image_1.png", 1, false},
		{"page_42_image_3.jpg", 42, false},
		{"scan_7_Im0.png", 7, false},
		{"my_scan_doc_12_Im3.jpg", 12, false},
		{"page_0_image_1.png", 0, true},
		{"page_x_image_1.png", 0, true},
		{"image_1.png", 0, true},
		{"not_a_match.png", 0, true},
		{"page_1_image_1", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := parsePageFromFilename(tt.filename)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func writeImage(t *testing.T, path string, enc string) {
	t.Helper()
	f, err := os.Create(path) //nolint:gosec // controlled test path
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := range 6 {
		for x := range 8 {
			img.Set(x, y, color.RGBA{uint8(10 * x), uint8(10 * y), 0, 255})
		}
	}
	switch enc {
	case "png":
		require.NoError(t, png.Encode(f, img))
	case "jpeg":
		require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 80}))
	default:
		t.Fatalf("unknown encoder: %s", enc)
	}
}

func TestCollectExtractedImages(t *testing.T) {
	tempDir := t.TempDir()

	writeImage(t, filepath.Join(tempDir, "page_1_image_1.png"), "png")
	writeImage(t, filepath.Join(tempDir, "page_1_image_2.jpg"), "jpeg")
	writeImage(t, filepath.Join(tempDir, "doc_2_Im0.png"), "png")

	// Noise that should be ignored
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "notes.txt"), []byte("ignore"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "page_3_image_1.png"), []byte("corrupt"), 0o600))
	writeImage(t, filepath.Join(tempDir, "not_a_match.png"), "png")
	require.NoError(t, os.Mkdir(filepath.Join(tempDir, "page_9_dir_1.d"), 0o750))

	result, err := collectExtractedImages(tempDir)
	require.NoError(t, err)

	require.Len(t, result, 2)
	require.Len(t, result[1], 2)
	require.Len(t, result[2], 1)
	for _, imgs := range result {
		for _, img := range imgs {
			assert.Equal(t, image.Rect(0, 0, 8, 6), img.Bounds())
		}
	}

	ordered := OrderedImages(result)
	require.Len(t, ordered, 3)
	assert.Equal(t, 1, ordered[0].Page)
	assert.Equal(t, 1, ordered[0].Index)
	assert.Equal(t, 2, ordered[1].Index)
	assert.Equal(t, 2, ordered[2].Page)
}

func TestExtractImages_ErrorCases(t *testing.T) {
	_, err := ExtractImages("/non/existent/file.pdf", "")
	require.Error(t, err)

	_, err = ExtractImages("dummy.pdf", "invalid-range")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid page range")

	_, err = ExtractText("dummy.pdf", "1-x")
	require.Error(t, err)
	_, err = ExtractText("/non/existent/file.pdf", "")
	require.Error(t, err)
}

// importPDF builds a one-page PDF around a PNG using pdfcpu.
func importPDF(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "page.png")
	writeImage(t, imgPath, "png")
	pdfPath := filepath.Join(dir, "scan.pdf")
	if err := api.ImportImagesFile([]string{imgPath}, pdfPath, nil, nil); err != nil {
		t.Skipf("pdfcpu could not build a fixture: %v", err)
	}
	return pdfPath
}

func TestExtractImages_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	pdfPath := importPDF(t)

	images, err := ExtractImages(pdfPath, "1")
	require.NoError(t, err)
	require.Len(t, images[1], 1)
	assert.Equal(t, 8, images[1][0].Bounds().Dx())

	encrypted, err := IsEncrypted(pdfPath)
	require.NoError(t, err)
	assert.False(t, encrypted)

	path, cleanup, err := Decrypt(pdfPath, PasswordCredentials{})
	require.NoError(t, err)
	cleanup()
	assert.Equal(t, pdfPath, path)

	// An image-only page has no text layer.
	pages, err := ExtractText(pdfPath, "")
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestDecrypt(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	plain := importPDF(t)
	locked := filepath.Join(t.TempDir(), "locked.pdf")
	conf := model.NewAESConfiguration("user", "owner", 256)
	if err := api.EncryptFile(plain, locked, conf); err != nil {
		t.Skipf("pdfcpu could not encrypt the fixture: %v", err)
	}

	encrypted, err := IsEncrypted(locked)
	require.NoError(t, err)
	require.True(t, encrypted)

	_, _, err = Decrypt(locked, PasswordCredentials{UserPassword: "wrong"})
	require.ErrorIs(t, err, ErrEncrypted)

	path, cleanup, err := Decrypt(locked, PasswordCredentials{UserPassword: "user", OwnerPassword: "owner"})
	require.NoError(t, err)
	defer cleanup()
	assert.NotEqual(t, locked, path)
	assert.True(t, strings.HasSuffix(path, ".pdf"))

	images, err := ExtractImages(path, "")
	require.NoError(t, err)
	assert.Len(t, images, 1)
}

func TestIsPasswordError(t *testing.T) {
	assert.False(t, IsPasswordError(nil))
	assert.True(t, IsPasswordError(ErrEncrypted))
	assert.True(t, IsPasswordError(errors.New("pdfcpu: please provide the correct password")))
	assert.False(t, IsPasswordError(errors.New("no such file")))
}

func BenchmarkParsePageRange(b *testing.B) {
	for _, pageRange := range []string{"1", "1-10", "1,3,5,7,9", "1-5,10-15,20"} {
		b.Run("range_"+strings.ReplaceAll(pageRange, ",", "_"), func(b *testing.B) {
			for range b.N {
				_, _ = ParsePageRange(pageRange)
			}
		})
	}
}
