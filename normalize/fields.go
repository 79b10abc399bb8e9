package normalize

import "strings"

// lookup resolves a field alias against a row. "p.f" matches the literal
// key first, then key f of a node object stored under p.
func lookup(r Row, alias string) (any, bool) {
	if v, ok := r.values[alias]; ok {
		return v, true
	}
	prefix, field, ok := strings.Cut(alias, ".")
	if !ok {
		return nil, false
	}
	node, ok := r.values[prefix].(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := node[field]
	return v, ok
}

// first returns the first truthy value among aliases.
func first(r Row, aliases []string) (any, bool) {
	for _, a := range aliases {
		if v, ok := lookup(r, a); ok && truthy(v) {
			return v, true
		}
	}
	return nil, false
}

func firstString(r Row, aliases []string) string {
	v, _ := first(r, aliases)
	return asString(v)
}

func anyTruthy(r Row, aliases []string) bool {
	_, ok := first(r, aliases)
	return ok
}

// clauseHit is one clause found in a row by an extraction strategy.
type clauseHit struct {
	clause   Clause
	typeName string
}

// Strategy extracts clause records from a row. Fields lists every alias
// the strategy reads; the batch plan activates a strategy when any of its
// Fields appears in the batch signature.
type Strategy interface {
	Name() string
	Fields() []string
	Extract(r Row) []clauseHit
}

// StandardStrategy reads one clause per row through the cl/clause and
// ct/clauseType aliases. Text and type are both required.
type StandardStrategy struct {
	Gate          []string
	IDs           []string
	Texts         []string
	Types         []string
	StartPosition []string
	IsImpossible  []string
}

func (s StandardStrategy) Name() string { return "standard" }

func (s StandardStrategy) Fields() []string {
	return joinFields(s.Gate, s.IDs, s.Texts, s.Types, s.StartPosition, s.IsImpossible)
}

func (s StandardStrategy) Extract(r Row) []clauseHit {
	if !anyTruthy(r, s.Gate) {
		return nil
	}
	text := firstString(r, s.Texts)
	typeName := firstString(r, s.Types)
	if text == "" || typeName == "" {
		return nil
	}
	start, _ := first(r, s.StartPosition)
	impossible, _ := first(r, s.IsImpossible)
	return []clauseHit{{
		clause: Clause{
			ID:            firstString(r, s.IDs),
			Text:          text,
			StartPosition: asInt(start),
			IsImpossible:  asBool(impossible),
		},
		typeName: typeName,
	}}
}

// ClauseSlot is one side of a paired-clause row.
type ClauseSlot struct {
	IDs         []string
	Texts       []string
	Types       []string
	DefaultType string
}

// PairStrategy reads the two clauses of a multi-criteria row (cl1/ct1 and
// cl2/ct2). A slot's type falls back to DefaultType.
type PairStrategy struct {
	Slots []ClauseSlot
}

func (s PairStrategy) Name() string { return "pair" }

func (s PairStrategy) Fields() []string {
	var groups [][]string
	for _, sl := range s.Slots {
		groups = append(groups, sl.IDs, sl.Texts, sl.Types)
	}
	return joinFields(groups...)
}

func (s PairStrategy) Extract(r Row) []clauseHit {
	var hits []clauseHit
	for _, sl := range s.Slots {
		text := firstString(r, sl.Texts)
		if text == "" {
			continue
		}
		typeName := firstString(r, sl.Types)
		if typeName == "" {
			typeName = sl.DefaultType
		}
		hits = append(hits, clauseHit{
			clause:   Clause{ID: firstString(r, sl.IDs), Text: text},
			typeName: typeName,
		})
	}
	return hits
}

// NamedStrategy maps single named text fields to a fixed clause type.
type NamedStrategy struct {
	Types []NamedField
}

// NamedField binds a field holding clause text to its clause type.
type NamedField struct {
	Field string
	Type  string
}

func (s NamedStrategy) Name() string { return "named" }

func (s NamedStrategy) Fields() []string {
	out := make([]string, len(s.Types))
	for i, nf := range s.Types {
		out[i] = nf.Field
	}
	return out
}

func (s NamedStrategy) Extract(r Row) []clauseHit {
	var hits []clauseHit
	for _, nf := range s.Types {
		v, ok := lookup(r, nf.Field)
		if !ok {
			continue
		}
		text, isString := v.(string)
		if !isString || text == "" {
			continue
		}
		hits = append(hits, clauseHit{clause: Clause{Text: text}, typeName: nf.Type})
	}
	return hits
}

// ListStrategy reads a field holding a list of {text, type} objects.
type ListStrategy struct {
	Field    string
	TextKeys []string
	TypeKeys []string
}

func (s ListStrategy) Name() string { return "list" }

func (s ListStrategy) Fields() []string { return []string{s.Field} }

func (s ListStrategy) Extract(r Row) []clauseHit {
	v, ok := lookup(r, s.Field)
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var hits []clauseHit
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		obj := Row{values: m}
		text := firstString(obj, s.TextKeys)
		typeName := firstString(obj, s.TypeKeys)
		if text == "" || typeName == "" {
			continue
		}
		hits = append(hits, clauseHit{clause: Clause{Text: text}, typeName: typeName})
	}
	return hits
}

// ContractFields lists the aliases of each contract property.
type ContractFields struct {
	ID         []string
	Title      []string
	NumClauses []string
	Context    []string
}

// FieldTable is the versioned alias table mapping row fields to contract
// properties and clause extraction strategies.
type FieldTable struct {
	Version  int
	Contract ContractFields
	// ClauseSignal lists fields whose presence marks a relationship query
	// even when no strategy can extract a full clause from them.
	ClauseSignal []string
	Strategies   []Strategy
}

// DefaultFieldTable returns the alias table for the contract graph schema.
func DefaultFieldTable() *FieldTable {
	return &FieldTable{
		Version: 2,
		Contract: ContractFields{
			ID:         []string{"c.id", "contract.id", "c_id", "contract_id"},
			Title:      []string{"c.title", "contract.title", "c_title", "contract_title"},
			NumClauses: []string{"c.num_clauses", "contract.num_clauses", "c_num_clauses"},
			Context:    []string{"c.context", "contract.context", "c_context"},
		},
		ClauseSignal: []string{
			"ct.name", "ct_name", "clauseType.name", "clause_type",
			"ct1.name", "ct1_name", "ct2.name", "ct2_name", "cl1_type", "cl2_type",
		},
		Strategies: []Strategy{
			StandardStrategy{
				Gate:          []string{"cl.id", "cl.text", "cl_id", "cl_text", "clause.id", "clause.text", "clause_id", "clause_text"},
				IDs:           []string{"cl.id", "cl_id", "clause.id", "clause_id"},
				Texts:         []string{"cl.text", "cl_text", "clause.text", "clause_text"},
				Types:         []string{"ct.name", "ct_name", "clauseType.name", "clause_type"},
				StartPosition: []string{"cl.start_position", "cl_start_position", "clause.start_position"},
				IsImpossible:  []string{"cl.is_impossible", "cl_is_impossible", "clause.is_impossible"},
			},
			PairStrategy{Slots: []ClauseSlot{
				{
					IDs:         []string{"cl1.id", "cl1_id"},
					Texts:       []string{"cl1.text", "cl1_text", "revenue_clause"},
					Types:       []string{"ct1.name", "ct1_name", "cl1_type", "revenue_clause_type"},
					DefaultType: "Revenue/Profit Sharing",
				},
				{
					IDs:         []string{"cl2.id", "cl2_id"},
					Texts:       []string{"cl2.text", "cl2_text", "noncompete_clause"},
					Types:       []string{"ct2.name", "ct2_name", "cl2_type", "governing_law_type"},
					DefaultType: "Non-Compete",
				},
			}},
			NamedStrategy{Types: []NamedField{
				{Field: "revenue_terms", Type: "Revenue/Profit Sharing"},
				{Field: "governing_law", Type: "Governing Law"},
			}},
			ListStrategy{
				Field:    "renewal_terms",
				TextKeys: []string{"terms", "text"},
				TypeKeys: []string{"clause_type", "type"},
			},
		},
	}
}

func joinFields(groups ...[]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, g := range groups {
		for _, f := range g {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

// relationshipKeys returns every row key the table reads as contract or
// clause data, including node prefixes of dotted aliases.
func (t *FieldTable) relationshipKeys() map[string]bool {
	keys := make(map[string]bool)
	add := func(fields []string) {
		for _, f := range fields {
			keys[f] = true
			if prefix, _, ok := strings.Cut(f, "."); ok {
				keys[prefix] = true
			}
		}
	}
	add(t.Contract.ID)
	add(t.Contract.Title)
	add(t.Contract.NumClauses)
	add(t.Contract.Context)
	add(t.ClauseSignal)
	for _, s := range t.Strategies {
		add(s.Fields())
	}
	return keys
}

func (t *FieldTable) contractOf(r Row) Contract {
	nc, _ := first(r, t.Contract.NumClauses)
	return Contract{
		ID:         firstString(r, t.Contract.ID),
		Title:      firstString(r, t.Contract.Title),
		NumClauses: asInt(nc),
		Context:    firstString(r, t.Contract.Context),
	}
}
