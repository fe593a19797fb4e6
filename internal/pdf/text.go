package pdf

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dslipak/pdf"
)

// PageText is the vector text layer of one page.
type PageText struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// ExtractText reads the vector text layer of the selected pages. Pages that
// cannot be parsed or carry no text are omitted.
func ExtractText(filename string, pageRange string) ([]PageText, error) {
	pageNumbers, err := ParsePageRange(pageRange)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", pageRange, err)
	}

	reader, err := pdf.Open(filename)
	if err != nil {
		if IsPasswordError(err) {
			return nil, fmt.Errorf("%w: %w", ErrEncrypted, err)
		}
		return nil, fmt.Errorf("failed to open PDF %q: %w", filename, err)
	}

	total := reader.NumPage()
	if len(pageNumbers) == 0 {
		for i := 1; i <= total; i++ {
			pageNumbers = append(pageNumbers, i)
		}
	}

	var out []PageText
	for _, n := range pageNumbers {
		if n < 1 || n > total {
			continue
		}
		text, err := pageText(reader.Page(n))
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, PageText{Page: n, Text: text})
	}
	return out, nil
}

// pageText joins the glyph runs of each row, inserting a space where the gap
// between runs is wider than a fraction of the font size.
func pageText(page pdf.Page) (text string, err error) {
	if page.V.IsNull() {
		return "", errors.New("page is null")
	}
	// The parser panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse page: %v", r)
		}
	}()

	rows, err := page.GetTextByRow()
	if err != nil || len(rows) == 0 {
		return page.GetPlainText(make(map[string]*pdf.Font))
	}

	var b strings.Builder
	for _, row := range rows {
		content := slices.Clone(row.Content)
		slices.SortStableFunc(content, func(a, b pdf.Text) int {
			switch {
			case a.X < b.X:
				return -1
			case a.X > b.X:
				return 1
			}
			return 0
		})
		for i, t := range content {
			if i > 0 {
				prev := content[i-1]
				if t.X-(prev.X+prev.W) > prev.FontSize*0.25 {
					b.WriteByte(' ')
				}
			}
			b.WriteString(t.S)
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}
