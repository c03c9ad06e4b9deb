package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"ragchat/internal/domain"
)

// PDFLoader yields one document per page that has text. Page numbers start at 1.
type PDFLoader struct{}

func (PDFLoader) Load(ctx context.Context, path string) (docs []domain.Document, err error) {
	// the pdf package panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			docs, err = nil, domain.Errorf(domain.ErrIngest, "loader.pdf", "parse %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, domain.Wrap(domain.ErrIngest, "loader.pdf", fmt.Errorf("open %s: %w", path, err))
	}
	defer f.Close()

	total := r.NumPage()
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return nil, domain.Classify(domain.ErrIngest, "loader.pdf", err)
		}
		page := r.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		docs = append(docs, domain.Document{
			Text:     text,
			SourceID: path,
			Locator:  strconv.Itoa(n),
			Metadata: map[string]any{
				"page":        n,
				"total_pages": total,
				"file_name":   filepath.Base(path),
			},
		})
	}
	if len(docs) == 0 {
		return nil, domain.Errorf(domain.ErrIngest, "loader.pdf", "no text found in %s", path)
	}
	return docs, nil
}
