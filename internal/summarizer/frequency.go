package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// DefaultSentences is the summary length used when none is requested.
const DefaultSentences = 3

var (
	// sentenceRegex ends a sentence at ASCII or full-width terminal punctuation, or at a blank line.
	sentenceRegex = regexp.MustCompile(`[^.!?。！？]+?(?:[.!?。！？]+|\n\s*\n|$)`)
	termRegex     = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’]\p{L}+)*`)
)

// Frequency picks the sentences whose non-stopword terms are most frequent in
// the whole text. It backs the digest printed after an ingestion.
type Frequency struct {
	stopwords map[string]struct{}
}

func NewFrequency() *Frequency {
	return &Frequency{stopwords: stopwords()}
}

// Summarize returns up to maxSentences sentences of texts, in their original order.
func (f *Frequency) Summarize(texts []string, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = DefaultSentences
	}
	var sentences []string
	for _, t := range texts {
		for _, s := range sentenceRegex.FindAllString(t, -1) {
			if s = strings.Join(strings.Fields(s), " "); s != "" {
				sentences = append(sentences, s)
			}
		}
	}
	if len(sentences) <= maxSentences {
		return strings.Join(sentences, " ")
	}

	freq := make(map[string]float64)
	top := 0.0
	for _, s := range sentences {
		for _, term := range f.terms(s) {
			freq[term]++
			top = math.Max(top, freq[term])
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, s := range sentences {
		terms := f.terms(s)
		score := 0.0
		for _, term := range terms {
			score += freq[term] / top
		}
		if len(terms) > 0 {
			score /= math.Sqrt(float64(len(terms)))
		}
		ranked[i] = scored{i, score}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	picked := make([]int, maxSentences)
	for i := range picked {
		picked[i] = ranked[i].idx
	}
	sort.Ints(picked)
	out := make([]string, len(picked))
	for i, idx := range picked {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " ")
}

func (f *Frequency) terms(sentence string) []string {
	var out []string
	for _, t := range termRegex.FindAllString(strings.ToLower(sentence), -1) {
		if _, stop := f.stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

func stopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as",
		"is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these", "those", "from", "up", "down",
		"over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before",
		"after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "should", "now", "we", "our",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
