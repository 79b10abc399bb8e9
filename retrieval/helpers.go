package retrieval

import (
	"strconv"
	"strings"
)

var ftsReplacer = strings.NewReplacer(
	"\"", "", "*", "", "(", "", ")", "",
	"+", "", "-", " ", "^", "", ":", "",
	"?", "", "[", "", "]", "", "{", "",
	"}", "", "!", "", ".", "", ",", "",
	";", "", "'", "", "/", " ",
)

// sanitizeFTSQuery strips FTS5 syntax characters and builds an OR query:
// the full phrase plus every significant word. Returns "" when nothing
// searchable is left.
func sanitizeFTSQuery(query string) string {
	words := strings.Fields(ftsReplacer.Replace(query))
	if len(words) == 0 {
		return ""
	}

	var parts []string
	if len(words) > 1 {
		parts = append(parts, "\""+strings.Join(words, " ")+"\"")
	}
	for _, w := range words {
		if len(w) > 2 && !isStopWord(w) && !isFTSOperator(w) {
			parts = append(parts, w)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " OR ")
}

func isFTSOperator(w string) bool {
	switch w {
	case "AND", "OR", "NOT", "NEAR":
		return true
	}
	return false
}

// vectorLiteral renders an embedding in pgvector's text format.
func vectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// stopWords are dropped from FTS queries and snippet scoring. The last
// line holds words every contract question carries.
var stopWords = wordSet(`
	a an the and or but nor not no if then than so as
	in on at to for of with by from into about between
	is are was were be been being have has had do does did
	will would could should may might must shall can
	this that these those what which who whom where when how why
	find show list all any contract contracts agreement agreements`)

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}

func isStopWord(w string) bool {
	return stopWords[strings.ToLower(w)]
}
