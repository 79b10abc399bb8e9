// Package limitation explains why a similarity-only search cannot (or can)
// answer a question about contracts.
package limitation

import (
	"strings"
	"unicode"
)

// Category tags shared with the showcase queries.
const (
	NegativeSearch = "negative_search"
	MultiCriteria  = "multi_criteria"
	Aggregation    = "aggregation"
	Traversal      = "traversal"
	BooleanLogic   = "boolean_logic"
	Similarity     = "similarity"
	Unknown        = "unknown"
)

// Verdict is the fixed answer for one category.
type Verdict struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	CanHandle bool   `json:"canHandle"`
}

var verdicts = map[string]Verdict{
	NegativeSearch: {
		Type:    NegativeSearch,
		Message: "RAG cannot search for absence. Vector search only finds similar documents, not documents that DON'T contain something.",
	},
	MultiCriteria: {
		Type:    MultiCriteria,
		Message: "RAG cannot guarantee both criteria. Returns documents similar to query, but cannot verify both conditions are met.",
	},
	Aggregation: {
		Type:    Aggregation,
		Message: "RAG cannot aggregate. Vector search returns documents, not counts or statistics.",
	},
	Traversal: {
		Type:    Traversal,
		Message: "RAG loses context when traversing relationships. Cannot follow connections between entities.",
	},
	BooleanLogic: {
		Type:    BooleanLogic,
		Message: "RAG cannot handle complex boolean logic. Similarity search doesn't map to AND/OR/NOT operations.",
	},
	Similarity: {
		Type:      Similarity,
		Message:   "RAG can find similar documents, but results may not be precise for structured queries.",
		CanHandle: true,
	},
}

var unknownVerdict = Verdict{
	Type:    Unknown,
	Message: "RAG has limitations with this query type.",
}

// Categories lists the five limitation tags in precedence order.
func Categories() []string {
	return []string{NegativeSearch, MultiCriteria, Aggregation, BooleanLogic, Traversal}
}

// ForCategory looks tag up in the fixed table. Unknown tags, including
// "similarity", yield the generic verdict with CanHandle false.
func ForCategory(tag string) Verdict {
	if tag == Similarity {
		return unknownVerdict
	}
	if v, ok := verdicts[tag]; ok {
		return v
	}
	return unknownVerdict
}

// Classify prefers an explicit tag and falls back to Detect.
func Classify(question, tag string) Verdict {
	if tag != "" {
		return ForCategory(tag)
	}
	return Detect(question)
}

// Detect applies the ordered heuristics to question; the first match wins.
func Detect(question string) Verdict {
	q := strings.ToLower(question)
	words := tokenize(q)

	switch {
	case isNegative(words):
		return verdicts[NegativeSearch]
	case isConjunction(q, words):
		return verdicts[MultiCriteria]
	case isCounting(words):
		return verdicts[Aggregation]
	case isCompoundBoolean(q, words):
		return verdicts[BooleanLogic]
	case isTraversal(words):
		return verdicts[Traversal]
	}
	return verdicts[Similarity]
}

func tokenize(q string) []string {
	return strings.FieldsFunc(q, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func has(words []string, set ...string) bool {
	for _, w := range words {
		for _, s := range set {
			if w == s {
				return true
			}
		}
	}
	return false
}

func hasPair(words []string, a, b string) bool {
	for i := 0; i+1 < len(words); i++ {
		if words[i] == a && words[i+1] == b {
			return true
		}
	}
	return false
}

func isNegative(words []string) bool {
	return has(words, "without", "missing", "no", "lacking", "lack", "lacks") ||
		hasPair(words, "not", "have") || hasPair(words, "don't", "have") ||
		hasPair(words, "doesn't", "have")
}

// isConjunction needs a conjunction word and at least two non-empty
// segments around " and ".
func isConjunction(q string, words []string) bool {
	if !has(words, "and", "both") {
		return false
	}
	segments := 0
	for _, part := range splitWord(q, "and") {
		if strings.TrimSpace(part) != "" {
			segments++
		}
	}
	return segments >= 2
}

func splitWord(q, word string) []string {
	var parts []string
	var cur strings.Builder
	for _, w := range strings.Fields(q) {
		if strings.Trim(w, "()") == word {
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteString(w)
		cur.WriteByte(' ')
	}
	return append(parts, cur.String())
}

func isCounting(words []string) bool {
	return has(words, "count", "counts", "counting", "aggregate", "aggregated", "aggregation") ||
		hasPair(words, "how", "many")
}

func isCompoundBoolean(q string, words []string) bool {
	return strings.Contains(q, "(") && strings.Contains(q, ")") && has(words, "or", "and")
}

func isTraversal(words []string) bool {
	if !has(words, "from") {
		return false
	}
	for _, w := range words {
		if strings.HasPrefix(w, "contract") {
			return true
		}
	}
	return false
}
