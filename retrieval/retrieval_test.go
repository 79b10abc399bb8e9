package retrieval

import (
	"errors"
	"strings"
	"testing"

	"github.com/brunobiangulo/clausegraph/store"
)

func result(id string) store.SearchResult {
	return store.SearchResult{Contract: store.Contract{ID: id, Title: "T" + id}}
}

func TestFuseRRF(t *testing.T) {
	vec := []store.SearchResult{result("K1"), result("K2")}
	vec[0].Score, vec[1].Score = 0.91, 0.82
	fts := []store.SearchResult{result("K2"), result("K3")}

	results, infoMap := fuseRRF(vec, fts, 1.0, 1.0, 10)

	if len(results) != 3 {
		t.Fatalf("expected 3 fused results, got %d", len(results))
	}

	if info := infoMap["K2"]; len(info.Methods) != 2 || info.VecRank != 2 || info.FTSRank != 1 {
		t.Errorf("K2 should come from vector rank 2 and fts rank 1, got %+v", info)
	}
	if info := infoMap["K1"]; info.VecSim != 0.91 {
		t.Errorf("K1 vector similarity = %f, want 0.91", info.VecSim)
	}

	// K2: 1/62 + 1/61, K1: 1/61, K3: 1/62
	k2Score := 1.0/62.0 + 1.0/61.0
	k1Score := 1.0 / 61.0
	k3Score := 1.0 / 62.0

	wantOrder := []string{"K2", "K1", "K3"}
	wantScores := []float64{k2Score, k1Score, k3Score}
	const eps = 1e-9
	for i, id := range wantOrder {
		if results[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, results[i].ID, id)
		}
		if diff := results[i].Score - wantScores[i]; diff < -eps || diff > eps {
			t.Errorf("%s score: got %f, want %f", id, results[i].Score, wantScores[i])
		}
	}
}

func TestFuseRRFMaxResults(t *testing.T) {
	vec := []store.SearchResult{result("a"), result("b"), result("c")}

	results, _ := fuseRRF(vec, nil, 1.0, 1.0, 2)
	if len(results) != 2 {
		t.Errorf("expected 2 results with maxResults=2, got %d", len(results))
	}
}

func TestFuseRRFEmptyInputs(t *testing.T) {
	results, _ := fuseRRF(nil, nil, 1.0, 1.0, 10)
	if len(results) != 0 {
		t.Errorf("expected 0 results for empty inputs, got %d", len(results))
	}
}

func TestFuseRRFWeightZero(t *testing.T) {
	vec := []store.SearchResult{result("a")}
	fts := []store.SearchResult{result("b")}

	results, _ := fuseRRF(vec, fts, 0.0, 1.0, 10)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "b" {
		t.Errorf("expected b first when vec weight=0, got %s", results[0].ID)
	}
}

func TestSanitizeFTSQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text", "software licensing", `"software licensing" OR software OR licensing`},
		{"special characters removed", `"audit" + (rights)*`, `"audit rights" OR audit OR rights`},
		{"hyphen splits words", "non-compete", `"non compete" OR non OR compete`},
		{"stop words only", "find all the contracts", `"find all the contracts"`},
		{"operators dropped as terms", "audit NOT rights", `"audit NOT rights" OR audit OR rights`},
		{"single word", "indemnification", "indemnification"},
		{"nothing left", "?? !!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeFTSQuery(tt.input)
			if got != tt.want {
				t.Errorf("sanitizeFTSQuery(%q) = %q, want %q", tt.input, got, tt.want)
			}
			for _, ch := range []string{"*", "(", ")", "+", "^", ":"} {
				if strings.Contains(got, ch) {
					t.Errorf("sanitized query still contains %q: %s", ch, got)
				}
			}
		})
	}
}

func TestVectorLiteral(t *testing.T) {
	if got := vectorLiteral([]float32{0.5, -1, 0.25}); got != "[0.5,-1,0.25]" {
		t.Errorf("vectorLiteral = %q", got)
	}
	if got := vectorLiteral(nil); got != "[]" {
		t.Errorf("empty vectorLiteral = %q", got)
	}
}

func TestNewPostgresRequiresEmbedder(t *testing.T) {
	if _, err := NewPostgres("postgres://localhost/none", nil); !errors.Is(err, ErrNoEmbedder) {
		t.Errorf("expected ErrNoEmbedder, got %v", err)
	}
}

func TestOptionsDefaults(t *testing.T) {
	got := Options{}.withDefaults()
	if got.Threshold != 0.7 || got.Count != 10 {
		t.Errorf("defaults = %+v", got)
	}
	got = Options{Threshold: 0.5, Count: 3}.withDefaults()
	if got.Threshold != 0.5 || got.Count != 3 {
		t.Errorf("explicit options overwritten: %+v", got)
	}
}
