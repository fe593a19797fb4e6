// Package pdf imports scanned documents: embedded page images for
// recognition and the vector text layer for direct extraction.
package pdf

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/MeKo-Tech/wordscan/internal/utils"
)

// PageImage is one image embedded in a PDF page.
type PageImage struct {
	Page  int
	Index int
	Image image.Image
}

// ExtractImages extracts all images from a PDF file using pdfcpu's extract functionality.
func ExtractImages(filename string, pageRange string) (map[int][]image.Image, error) {
	pageNumbers, err := ParsePageRange(pageRange)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", pageRange, err)
	}

	tempDir, err := os.MkdirTemp("", "wordscan-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var pageStrings []string
	if len(pageNumbers) > 0 {
		pageStrings = make([]string, len(pageNumbers))
		for i, pageNum := range pageNumbers {
			pageStrings[i] = strconv.Itoa(pageNum)
		}
	}

	if err := api.ExtractImagesFile(filename, tempDir, pageStrings, nil); err != nil {
		if IsPasswordError(err) {
			return nil, fmt.Errorf("%w: %w", ErrEncrypted, err)
		}
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}

	result, err := collectExtractedImages(tempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to process extracted images: %w", err)
	}

	return result, nil
}

// OrderedImages flattens the result of ExtractImages in page order.
func OrderedImages(pages map[int][]image.Image) []PageImage {
	nums := make([]int, 0, len(pages))
	for n := range pages {
		nums = append(nums, n)
	}
	slices.Sort(nums)

	var out []PageImage
	for _, n := range nums {
		for i, img := range pages[n] {
			out = append(out, PageImage{Page: n, Index: i + 1, Image: img})
		}
	}
	return out
}

// loadImageFile loads an image from a file path.
func loadImageFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: files come from our own temp dir
	if err != nil {
		return nil, err
	}
	img, _, err := utils.DecodeImage(data, "")
	return img, err
}

// collectExtractedImages walks the given directory and groups images by page number.
// It expects filenames in the pdfcpu format: <name>_<page>_<obj>.<ext> or
// page_<num>_image_<idx>.<ext>.
func collectExtractedImages(dir string) (map[int][]image.Image, error) {
	result := make(map[int][]image.Image)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	for _, name := range names {
		pageNum, err := parsePageFromFilename(name)
		if err != nil {
			continue
		}

		img, err := loadImageFile(filepath.Join(dir, name))
		if err != nil {
			// Skip unreadable images
			continue
		}
		result[pageNum] = append(result[pageNum], img)
	}
	return result, nil
}

// parsePageFromFilename extracts the page number from a pdfcpu extracted
// filename. Older releases write page_1_image_1.png, newer ones
// <document>_1_Im0.png.
func parsePageFromFilename(filename string) (int, error) {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	if base == filename {
		return 0, errors.New("missing extension")
	}

	if rest, ok := strings.CutPrefix(base, "page_"); ok {
		num, _, _ := strings.Cut(rest, "_")
		pageNum, err := strconv.Atoi(num)
		if err != nil || pageNum < 1 {
			return 0, errors.New("invalid page number")
		}
		return pageNum, nil
	}

	parts := strings.Split(base, "_")
	if len(parts) < 3 {
		return 0, errors.New("not a page file")
	}
	pageNum, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil || pageNum < 1 {
		return 0, errors.New("invalid page number")
	}
	return pageNum, nil
}

// ParsePageRange parses a page range string like "1-5" or "1,3,5".
// Duplicates are removed and the result is sorted.
func ParsePageRange(pageRange string) ([]int, error) {
	if strings.TrimSpace(pageRange) == "" {
		return nil, nil // Empty means all pages
	}

	var pages []int
	for part := range strings.SplitSeq(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		pages = append(pages, tokenPages...)
	}

	slices.Sort(pages)
	return slices.Compact(pages), nil
}

// parseRangeToken parses either a single page token (e.g., "3") or a range token (e.g., "1-5").
func parseRangeToken(part string) ([]int, error) {
	if strings.Contains(part, "-") {
		rangeParts := strings.Split(part, "-")
		if len(rangeParts) != 2 {
			return nil, fmt.Errorf("invalid range format: %s", part)
		}
		start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
		if err != nil || start < 1 {
			return nil, fmt.Errorf("invalid start page: %s", rangeParts[0])
		}
		end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid end page: %s", rangeParts[1])
		}
		if start > end {
			return nil, fmt.Errorf("start page %d greater than end page %d", start, end)
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	page, err := strconv.Atoi(part)
	if err != nil || page < 1 {
		return nil, fmt.Errorf("invalid page number: %s", part)
	}
	return []int{page}, nil
}
