//go:build !tesseract

package recognition

// NewTesseract reports ErrNoBackend in builds without the tesseract tag so
// the default build needs neither cgo nor libtesseract.
func NewTesseract(_ string, _ *LanguagePack) (Engine, error) {
	return nil, ErrNoBackend
}
