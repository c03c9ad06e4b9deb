package prompt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func TestNew_ValidatesSlots(t *testing.T) {
	tests := []struct {
		name   string
		system string
		user   string
		ok     bool
	}{
		{"default", DefaultSystem, DefaultUser, true},
		{"slots split across messages", "Context: {context}", "Q: {question}", true},
		{"no system message", "", "{context}\n{question}", true},
		{"missing context", "", "Q: {question}", false},
		{"missing question", "", "{context}", false},
		{"unknown slot", "", "{context} {question} {answer}", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.system, tt.user)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrConfig)
			}
		})
	}
}

func TestTemplate_Render(t *testing.T) {
	tpl, err := New("sys", "Q={question}\nC={context}\nH={history}")
	require.NoError(t, err)

	msgs := tpl.Render("why {context}?", "ctx", "")
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.Message{Role: domain.RoleSystem, Content: "sys"}, msgs[0])
	assert.Equal(t, domain.RoleUser, msgs[1].Role)
	assert.Equal(t, "Q=why {context}?\nC=ctx\nH=", msgs[1].Content)

	bare, err := New("", "{context}|{question}")
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{{Role: domain.RoleUser, Content: "c|q"}}, bare.Render("q", "c", "h"))
}

func TestLinks(t *testing.T) {
	text := `Apply <a href="https://x.org/apply" class="btn">Become a
	sponsor</a> or read [the guide](https://x.org/guide). Again <a href="https://x.org/apply">here</a>.`
	assert.Equal(t, []Link{
		{Text: "Become a sponsor", URL: "https://x.org/apply"},
		{Text: "the guide", URL: "https://x.org/guide"},
	}, Links(text))

	assert.Empty(t, Links("no links in plain text"))
}

func TestFormatContext(t *testing.T) {
	chunks := []domain.Chunk{
		{SourceID: "nike.pdf", Locator: "3", Text: "Incorporated in 1967.", Metadata: map[string]any{"page": 3}},
		{SourceID: "https://x.org", Locator: "body", Text: `Sponsors: <a href="https://x.org/s">become one</a>`},
		{Text: "orphan"},
	}
	want := "Document 1 (nike.pdf, page 3):\nIncorporated in 1967.\n\n" +
		"Document 2 (https://x.org, body):\nSponsors: <a href=\"https://x.org/s\">become one</a>\n[Links]\n1. become one: https://x.org/s\n\n" +
		"Document 3 (unknown source):\norphan"
	assert.Equal(t, want, FormatContext(chunks))
	assert.Empty(t, FormatContext(nil))
}

func TestFormatHistory(t *testing.T) {
	assert.Empty(t, FormatHistory(nil))
	got := FormatHistory([]domain.Turn{{Question: "first?", Timestamp: time.Now()}, {Question: "second?"}})
	assert.Equal(t, "\nPrevious questions:\n1. first?\n2. second?\n", got)
}
