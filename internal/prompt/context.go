package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ragchat/internal/domain"
)

// Link is a hyperlink found in chunk text.
type Link struct {
	Text string
	URL  string
}

var markdownLink = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)\)`)

// Links returns the <a href> anchors and markdown links of text, first
// occurrence of each URL only.
func Links(text string) []Link {
	var out []Link
	seen := make(map[string]bool)
	add := func(label, href string) {
		href = strings.TrimSpace(href)
		if href == "" || seen[href] {
			return
		}
		seen[href] = true
		out = append(out, Link{Text: strings.Join(strings.Fields(label), " "), URL: href})
	}

	if strings.Contains(text, "<a") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(text)); err == nil {
			doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
				href, _ := s.Attr("href")
				add(s.Text(), href)
			})
		}
	}
	for _, m := range markdownLink.FindAllStringSubmatch(text, -1) {
		add(m[1], m[2])
	}
	return out
}

// FormatContext numbers the chunks and labels each with its source and page,
// appending a [Links] block to chunks that contain hyperlinks.
func FormatContext(chunks []domain.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		var b strings.Builder
		fmt.Fprintf(&b, "Document %d (%s):\n%s", i+1, origin(c), c.Text)
		if links := Links(c.Text); len(links) > 0 {
			b.WriteString("\n[Links]\n")
			for j, l := range links {
				fmt.Fprintf(&b, "%d. %s: %s\n", j+1, l.Text, l.URL)
			}
		}
		parts[i] = strings.TrimRight(b.String(), "\n")
	}
	return strings.Join(parts, "\n\n")
}

func origin(c domain.Chunk) string {
	src := c.SourceID
	if src == "" {
		src = "unknown source"
	}
	if c.Locator == "" {
		return src
	}
	if _, ok := c.Metadata["page"]; ok {
		return src + ", page " + c.Locator
	}
	return src + ", " + c.Locator
}

// FormatHistory lists previous questions, oldest first. It returns "" for no turns.
func FormatHistory(turns []domain.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nPrevious questions:\n")
	for i, t := range turns {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t.Question)
	}
	return b.String()
}
