package prompt

import (
	"regexp"

	"ragchat/internal/domain"
)

// Slots a template may use.
const (
	SlotContext  = "context"
	SlotQuestion = "question"
	SlotHistory  = "history"
)

// slotRegex matches {name} placeholders.
var slotRegex = regexp.MustCompile(`\{(\w+)\}`)

// DefaultSystem instructs the model to answer only from the supplied documents.
const DefaultSystem = `You are a careful assistant that answers questions about the documents provided.

Rules:
1. Answer only from the document content. Never invent facts.
2. Pay attention to dates, numbers, lists and status descriptions.
3. Documents may list hyperlinks under [Links]. When the answer depends on a linked page, name the link and say that it holds more detail.
4. If the documents do not contain the answer, say that it was not found in the provided documents.
5. When previous questions are given, use them to understand what the current question refers to.
6. Answer in the language of the question, concisely.`

// DefaultUser carries the question, the retrieved context and the history.
const DefaultUser = `Question: {question}

Documents:
{context}
{history}
Answer the question using only the documents above.`

// Template renders the system and user messages for one turn.
type Template struct {
	system string
	user   string
}

// New validates that {context} and {question} appear in the templates and that
// no other slot than {history} is used.
func New(system, user string) (*Template, error) {
	used := make(map[string]bool)
	for _, text := range []string{system, user} {
		for _, m := range slotRegex.FindAllStringSubmatch(text, -1) {
			switch m[1] {
			case SlotContext, SlotQuestion, SlotHistory:
				used[m[1]] = true
			default:
				return nil, domain.Errorf(domain.ErrConfig, "prompt", "unknown slot {%s}", m[1])
			}
		}
	}
	for _, required := range []string{SlotContext, SlotQuestion} {
		if !used[required] {
			return nil, domain.Errorf(domain.ErrConfig, "prompt", "template lacks {%s}", required)
		}
	}
	return &Template{system: system, user: user}, nil
}

// Default returns the built-in template.
func Default() *Template {
	t, err := New(DefaultSystem, DefaultUser)
	if err != nil {
		panic(err)
	}
	return t
}

// Render fills the slots. Values are substituted in a single pass, so slot
// syntax inside a value is left alone.
func (t *Template) Render(question, context, history string) []domain.Message {
	values := map[string]string{SlotQuestion: question, SlotContext: context, SlotHistory: history}
	fill := func(text string) string {
		return slotRegex.ReplaceAllStringFunc(text, func(m string) string {
			return values[m[1:len(m)-1]]
		})
	}
	var msgs []domain.Message
	if t.system != "" {
		msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: fill(t.system)})
	}
	return append(msgs, domain.Message{Role: domain.RoleUser, Content: fill(t.user)})
}
