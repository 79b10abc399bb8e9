package retrieval

import (
	"strings"
	"unicode"
)

// snippetMaxLen is the approximate maximum character length for a snippet.
const snippetMaxLen = 300

// Snippet returns the one or two adjacent sentences of text that share the
// most terms with question. It returns "" when no sentence shares a term.
// A single sentence longer than the limit is cut at a word boundary.
func Snippet(text, question string) string {
	terms := queryTerms(question)
	if len(terms) == 0 || text == "" {
		return ""
	}
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return ""
	}

	scores := make([]int, len(sentences))
	best := 0
	for i, s := range sentences {
		for w := range queryTerms(s) {
			if terms[w] {
				scores[i]++
			}
		}
		if scores[i] > scores[best] {
			best = i
		}
	}
	if scores[best] == 0 {
		return ""
	}

	out := sentences[best]
	if len(out) > snippetMaxLen {
		return truncateWords(out, snippetMaxLen)
	}

	// Extend with the better-scoring neighbour when it still fits.
	adj, adjScore := -1, 0
	for _, i := range []int{best + 1, best - 1} {
		if i >= 0 && i < len(sentences) && scores[i] > adjScore {
			adj, adjScore = i, scores[i]
		}
	}
	if adj < 0 {
		return out
	}
	combined := out + " " + sentences[adj]
	if adj < best {
		combined = sentences[adj] + " " + out
	}
	if len(combined) <= snippetMaxLen {
		return combined
	}
	return out
}

// withSnippets fills Snippet for every match.
func withSnippets(matches []Match, question string) []Match {
	for i := range matches {
		matches[i].Snippet = Snippet(matches[i].Text, question)
	}
	return matches
}

// queryTerms returns the lowercased words of at least four characters that
// are not stop words.
func queryTerms(text string) map[string]bool {
	terms := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) >= 4 && !stopWords[w] {
			terms[w] = true
		}
	}
	return terms
}

// splitSentences splits at '.', '?', '!' or ';' followed by whitespace, and
// at blank lines, which separate numbered clauses in contract text.
func splitSentences(text string) []string {
	var (
		sentences []string
		cur       strings.Builder
	)
	flush := func() {
		if s := strings.Join(strings.Fields(cur.String()), " "); s != "" {
			sentences = append(sentences, s)
		}
		cur.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		cur.WriteRune(r)
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		switch {
		case strings.ContainsRune(".?!;", r) && (next == 0 || unicode.IsSpace(next)) && !isNumbering(cur.String()):
			flush()
		case r == '\n' && next == '\n':
			flush()
		}
	}
	flush()
	return sentences
}

// isNumbering reports whether s is only a clause number such as "4." or "12.3.".
func isNumbering(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && strings.Trim(s, "0123456789.") == ""
}

func truncateWords(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := strings.LastIndexByte(s[:max], ' ')
	if cut <= 0 {
		cut = max
	}
	return strings.TrimRight(s[:cut], " ,;:") + "..."
}
