// Package normalize turns heterogeneous graph query rows into one canonical
// Result: deduplicated contracts, clause records linked to them, an
// aggregation bag, and the raw rows.
//
// Row shapes are recognised through a versioned FieldTable. The table is
// resolved against the whole batch once (a Plan) and each row is then
// classified a single time, so the branch logic never re-inspects open maps.
package normalize

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Heuristics holds the substring tokens used to spot aggregation queries
// and the category/count columns of grouped results.
type Heuristics struct {
	AggregationTokens []string `json:"aggregation_tokens" yaml:"aggregation_tokens"`
	CategoryTokens    []string `json:"category_tokens" yaml:"category_tokens"`
	CategoryExclude   []string `json:"category_exclude" yaml:"category_exclude"`
	CountTokens       []string `json:"count_tokens" yaml:"count_tokens"`
}

// DefaultHeuristics returns the token sets used when a query supplies none.
func DefaultHeuristics() Heuristics {
	return Heuristics{
		AggregationTokens: []string{"count", "total", "sum", "pct", "percentage"},
		CategoryTokens:    []string{"state", "category", "type"},
		CategoryExclude:   []string{"count", "clause"},
		CountTokens:       []string{"count", "total", "sum"},
	}
}

// merge fills empty token lists from d.
func (h Heuristics) merge(d Heuristics) Heuristics {
	if len(h.AggregationTokens) == 0 {
		h.AggregationTokens = d.AggregationTokens
	}
	if len(h.CategoryTokens) == 0 {
		h.CategoryTokens = d.CategoryTokens
	}
	if h.CategoryExclude == nil {
		h.CategoryExclude = d.CategoryExclude
	}
	if len(h.CountTokens) == 0 {
		h.CountTokens = d.CountTokens
	}
	return h
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if t != "" && strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// Option configures a single Normalize call.
type Option func(*options)

type options struct {
	table      *FieldTable
	heuristics Heuristics
}

// WithFieldTable replaces the alias table.
func WithFieldTable(t *FieldTable) Option {
	return func(o *options) {
		if t != nil {
			o.table = t
		}
	}
}

// WithHeuristics overrides the aggregation heuristics for this call.
// Empty token lists keep their defaults.
func WithHeuristics(h Heuristics) Option {
	return func(o *options) { o.heuristics = h.merge(DefaultHeuristics()) }
}

// Plan is a FieldTable resolved against one batch of rows.
type Plan struct {
	Version        int
	Signature      []string
	Aggregation    bool
	ClauseSignal   bool
	ContractSignal bool
	Strategies     []Strategy
}

// signature collects the truthy effective field names of all rows,
// expanding node objects to "key.field".
func signature(rows []Row) map[string]bool {
	sig := make(map[string]bool)
	for _, r := range rows {
		for k, v := range r.values {
			if truthy(v) {
				sig[k] = true
			}
			if node, ok := v.(map[string]any); ok {
				for f, fv := range node {
					if truthy(fv) {
						sig[k+"."+f] = true
					}
				}
			}
		}
	}
	return sig
}

func hasAny(sig map[string]bool, fields []string) bool {
	for _, f := range fields {
		if sig[f] {
			return true
		}
	}
	return false
}

// Resolve computes the batch plan for rows. Aggregation is decided from the
// field names of the first row.
func (t *FieldTable) Resolve(rows []Row, h Heuristics) Plan {
	sig := signature(rows)
	p := Plan{Version: t.Version}
	for f := range sig {
		p.Signature = append(p.Signature, f)
	}
	sort.Strings(p.Signature)

	if len(rows) > 0 {
		for _, k := range rows[0].keys {
			if containsAny(strings.ToLower(k), h.AggregationTokens) {
				p.Aggregation = true
				break
			}
		}
	}

	p.ClauseSignal = hasAny(sig, t.ClauseSignal)
	for _, s := range t.Strategies {
		if hasAny(sig, s.Fields()) {
			p.ClauseSignal = true
			p.Strategies = append(p.Strategies, s)
		}
	}
	p.ContractSignal = hasAny(sig, t.Contract.ID) || hasAny(sig, t.Contract.Title)
	return p
}

// rowKind tags a classified row.
type rowKind int

const (
	rowOpaque rowKind = iota
	rowEntity
	rowRelationship
)

type classifiedRow struct {
	kind     rowKind
	contract Contract
	hits     []clauseHit
}

func classify(t *FieldTable, p Plan, r Row) classifiedRow {
	c := t.contractOf(r)
	if c.key() == "" {
		return classifiedRow{kind: rowOpaque}
	}
	cr := classifiedRow{kind: rowEntity, contract: c}
	for _, s := range p.Strategies {
		cr.hits = append(cr.hits, s.Extract(r)...)
	}
	if len(cr.hits) > 0 {
		cr.kind = rowRelationship
	}
	return cr
}

// Normalize shapes rows into a Result. It never fails and never modifies
// rows; values are coerced copies.
func Normalize(cypher string, elapsed time.Duration, rows []Row, opts ...Option) *Result {
	o := options{table: DefaultFieldTable(), heuristics: DefaultHeuristics()}
	for _, fn := range opts {
		fn(&o)
	}

	res := &Result{
		Cypher:        cypher,
		ExecutionTime: elapsed.Milliseconds(),
		RawResults:    make([]Row, len(rows)),
	}
	for i, r := range rows {
		res.RawResults[i] = CoerceRow(r)
	}
	if len(rows) == 0 {
		res.Shape = ShapeEmpty
		res.Contracts = []Contract{}
		res.Clauses = []ClauseRecord{}
		res.Aggregations = &Aggregations{}
		return res
	}

	coerced := res.RawResults
	plan := o.table.Resolve(coerced, o.heuristics)

	switch {
	case plan.Aggregation && plan.ClauseSignal:
		res.Shape = ShapeAggregationWithDetails
		res.Contracts, res.Clauses = relationships(o.table, plan, coerced)
		res.Aggregations = detailAggregations(o.table, o.heuristics, coerced)
	case plan.Aggregation:
		res.Shape = ShapeAggregation
		res.Aggregations = &Aggregations{Fields: copyRow(coerced[0])}
		if len(coerced) > 1 {
			res.Aggregations.Groups = append([]Row(nil), coerced...)
		}
	case plan.ClauseSignal:
		res.Shape = ShapeRelationships
		res.Contracts, res.Clauses = relationships(o.table, plan, coerced)
	case plan.ContractSignal:
		res.Shape = ShapeEntities
		res.Contracts = contracts(o.table, plan, coerced)
	default:
		res.Shape = ShapeRaw
	}
	return res
}

func copyRow(r Row) Row {
	return Row{keys: r.Keys(), values: r.Map()}
}

func contracts(t *FieldTable, p Plan, rows []Row) []Contract {
	var out []Contract
	seen := make(map[string]bool)
	for _, r := range rows {
		cr := classify(t, p, r)
		if cr.kind == rowOpaque || seen[cr.contract.key()] {
			continue
		}
		seen[cr.contract.key()] = true
		out = append(out, cr.contract)
	}
	return out
}

// relationships groups clause records under their first-seen contract.
// A clause already recorded for the contract with the same id, or the same
// text and type, is dropped.
func relationships(t *FieldTable, p Plan, rows []Row) ([]Contract, []ClauseRecord) {
	type group struct {
		contract Contract
		records  []ClauseRecord
	}
	var order []*group
	byKey := make(map[string]*group)

	for _, r := range rows {
		cr := classify(t, p, r)
		if cr.kind == rowOpaque {
			continue
		}
		g, ok := byKey[cr.contract.key()]
		if !ok {
			g = &group{contract: cr.contract}
			byKey[cr.contract.key()] = g
			order = append(order, g)
		}
		for _, h := range cr.hits {
			if duplicateClause(g.records, h) {
				continue
			}
			g.records = append(g.records, ClauseRecord{
				Clause:     h.clause,
				ClauseType: ClauseType{Name: h.typeName},
				Contract:   g.contract,
			})
		}
	}

	contracts := make([]Contract, 0, len(order))
	var records []ClauseRecord
	for _, g := range order {
		contracts = append(contracts, g.contract)
		records = append(records, g.records...)
	}
	return contracts, records
}

func duplicateClause(existing []ClauseRecord, h clauseHit) bool {
	for _, rec := range existing {
		if h.clause.ID != "" && rec.Clause.ID == h.clause.ID {
			return true
		}
		if rec.Clause.Text == h.clause.Text && rec.ClauseType.Name == h.typeName {
			return true
		}
	}
	return false
}

// detailAggregations builds the bag for aggregation results that also
// carry detail rows: one row per distinct category when a category and a
// count column exist, otherwise every row. A single row contributes its
// non-relationship fields.
func detailAggregations(t *FieldTable, h Heuristics, rows []Row) *Aggregations {
	if len(rows) > 1 {
		catKey, countKey := groupingKeys(rows[0], h)
		if catKey != "" && countKey != "" {
			var groups []Row
			seen := make(map[string]bool)
			for _, r := range rows {
				cat, ok := r.values[catKey]
				if !ok {
					continue
				}
				id := fmt.Sprintf("%T:%v", cat, cat)
				if seen[id] {
					continue
				}
				seen[id] = true
				var g Row
				g.set(catKey, cat)
				if n, ok := r.values[countKey]; ok {
					g.set(countKey, n)
				}
				groups = append(groups, g)
			}
			if len(groups) > 0 {
				return &Aggregations{Groups: groups}
			}
		}
		return &Aggregations{Groups: append([]Row(nil), rows...)}
	}

	rel := t.relationshipKeys()
	var fields Row
	for _, k := range rows[0].keys {
		if !rel[k] {
			fields.set(k, rows[0].values[k])
		}
	}
	return &Aggregations{Fields: fields}
}

func groupingKeys(r Row, h Heuristics) (catKey, countKey string) {
	for _, k := range r.keys {
		lk := strings.ToLower(k)
		if catKey == "" && containsAny(lk, h.CategoryTokens) && !containsAny(lk, h.CategoryExclude) {
			catKey = k
		}
		if countKey == "" && containsAny(lk, h.CountTokens) {
			countKey = k
		}
	}
	return catKey, countKey
}
