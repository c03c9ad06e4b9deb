package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"ragchat/internal/domain"
)

// Output formats of the web loader.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

const (
	DefaultWebTimeout = 30 * time.Second
	// MaxReadSize caps the response body (5MB).
	MaxReadSize = int64(5 * 1024 * 1024)
)

// WebOptions configures the web loader.
type WebOptions struct {
	// Selector picks the page region to keep. Defaults to "body".
	Selector string
	// Format is text, markdown or html. Defaults to text.
	Format    string
	Timeout   time.Duration
	UserAgent string
	Client    *http.Client
}

// WebLoader fetches a page and keeps the selected region as one document.
type WebLoader struct {
	opts   WebOptions
	client *http.Client
}

func NewWebLoader(opts WebOptions) *WebLoader {
	if opts.Selector == "" {
		opts.Selector = "body"
	}
	if opts.Format == "" {
		opts.Format = FormatText
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultWebTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "ragchat/1.0"
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	return &WebLoader{opts: opts, client: client}
}

// Load makes a single GET; there is no retry.
func (w *WebLoader) Load(ctx context.Context, rawURL string) ([]domain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, domain.Wrap(domain.ErrIngest, "loader.web", err)
	}
	req.Header.Set("User-Agent", w.opts.UserAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, domain.Classify(domain.ErrIngest, "loader.web", fmt.Errorf("fetch %s: %w", rawURL, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.Errorf(domain.ErrIngest, "loader.web", "fetch %s: %s", rawURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, MaxReadSize))
	if err != nil {
		return nil, domain.Wrap(domain.ErrIngest, "loader.web", fmt.Errorf("parse %s: %w", rawURL, err))
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript").Remove()

	sel := doc.Find(w.opts.Selector)
	if sel.Length() == 0 {
		return nil, domain.Errorf(domain.ErrIngest, "loader.web", "selector %q matched nothing on %s", w.opts.Selector, rawURL)
	}
	text, err := w.render(sel, rawURL)
	if err != nil {
		return nil, domain.Wrap(domain.ErrIngest, "loader.web", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.Errorf(domain.ErrIngest, "loader.web", "no text found on %s", rawURL)
	}

	return []domain.Document{{
		Text:     text,
		SourceID: rawURL,
		Locator:  w.opts.Selector,
		Metadata: map[string]any{
			"title":       title,
			"status_code": resp.StatusCode,
		},
	}}, nil
}

func (w *WebLoader) render(sel *goquery.Selection, rawURL string) (string, error) {
	switch w.opts.Format {
	case FormatMarkdown:
		html, err := selectionHTML(sel)
		if err != nil {
			return "", err
		}
		return htmlToMarkdown(html, siteOf(rawURL))
	case FormatHTML:
		html, err := selectionHTML(sel)
		return strings.TrimSpace(html), err
	default:
		return strings.Join(strings.Fields(sel.Text()), " "), nil
	}
}

func selectionHTML(sel *goquery.Selection) (string, error) {
	var b strings.Builder
	var err error
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var h string
		h, err = s.Html()
		if err != nil {
			return false
		}
		b.WriteString(h)
		b.WriteString("\n")
		return true
	})
	return b.String(), err
}

func htmlToMarkdown(html, domainName string) (string, error) {
	converter := md.NewConverter(domainName, true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", err
	}
	lines := strings.Split(markdown, "\n")
	out := lines[:0]
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n"), nil
}

// siteOf returns the host the converter resolves relative links against.
func siteOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
