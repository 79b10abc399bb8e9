// Package queries holds the five showcase questions, each demonstrating a
// class of question similarity search cannot answer.
package queries

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/clausegraph/limitation"
)

//go:embed showcase.yaml
var defaultYAML []byte

// BusinessScenario is the persona behind a query.
type BusinessScenario struct {
	Persona           string `json:"persona" yaml:"persona"`
	Role              string `json:"role" yaml:"role"`
	Quote             string `json:"quote" yaml:"quote"`
	Problem           string `json:"problem" yaml:"problem"`
	SimpleExplanation string `json:"simpleExplanation" yaml:"simple_explanation"`
	SimpleProblem     string `json:"simpleProblem" yaml:"simple_problem"`
}

// BusinessValue quantifies the answer.
type BusinessValue struct {
	TimeSaved      string `json:"timeSaved" yaml:"time_saved"`
	CostAvoidance  string `json:"costAvoidance,omitempty" yaml:"cost_avoidance"`
	RiskMitigation string `json:"riskMitigation,omitempty" yaml:"risk_mitigation"`
}

// Query is one showcase question.
type Query struct {
	ID               string           `json:"id" yaml:"id"`
	Query            string           `json:"query" yaml:"query"`
	Description      string           `json:"description" yaml:"description"`
	RAGLimitation    string           `json:"ragLimitation" yaml:"rag_limitation"`
	GraphSolution    string           `json:"graphragSolution" yaml:"graph_solution"`
	Category         string           `json:"category" yaml:"category"`
	BusinessScenario BusinessScenario `json:"businessScenario" yaml:"business_scenario"`
	BusinessValue    BusinessValue    `json:"businessValue" yaml:"business_value"`
	ExpectedResults  string           `json:"expectedResults" yaml:"expected_results"`
}

// Set is an ordered, indexed collection of queries.
type Set struct {
	Version int     `yaml:"version"`
	Queries []Query `yaml:"queries"`

	byID map[string]int
}

// Default returns the embedded showcase set. It panics if the embedded
// file is invalid, which only a broken build can cause.
func Default() *Set {
	s, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("queries: embedded showcase.yaml: %v", err))
	}
	return s
}

// Load reads a showcase set from a YAML file.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading showcase queries: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a showcase set: ids must be unique and
// categories must be known limitation categories.
func Parse(data []byte) (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing showcase queries: %w", err)
	}

	known := make(map[string]bool)
	for _, c := range limitation.Categories() {
		known[c] = true
	}

	s.byID = make(map[string]int, len(s.Queries))
	for i, q := range s.Queries {
		if q.ID == "" || q.Query == "" {
			return nil, fmt.Errorf("showcase query %d: id and query are required", i)
		}
		if _, dup := s.byID[q.ID]; dup {
			return nil, fmt.Errorf("showcase query %q: duplicate id", q.ID)
		}
		if !known[q.Category] {
			return nil, fmt.Errorf("showcase query %q: unknown category %q", q.ID, q.Category)
		}
		s.byID[q.ID] = i
	}
	return &s, nil
}

// All returns the queries in file order.
func (s *Set) All() []Query {
	return append([]Query(nil), s.Queries...)
}

// IDs returns every query id in file order.
func (s *Set) IDs() []string {
	ids := make([]string, len(s.Queries))
	for i, q := range s.Queries {
		ids[i] = q.ID
	}
	return ids
}

// ByID looks a query up.
func (s *Set) ByID(id string) (Query, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Query{}, false
	}
	return s.Queries[i], true
}
