package normalize

import "encoding/json"

// Contract is a contract node.
type Contract struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	NumClauses int    `json:"num_clauses"`
	Context    string `json:"context"`
}

// key identifies a contract for deduplication: id, else title.
func (c Contract) key() string {
	if c.ID != "" {
		return "id:" + c.ID
	}
	if c.Title != "" {
		return "title:" + c.Title
	}
	return ""
}

// Clause is a clause node.
type Clause struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	StartPosition int    `json:"start_position"`
	IsImpossible  bool   `json:"is_impossible"`
}

// ClauseType is a clause category node.
type ClauseType struct {
	Name string `json:"name"`
}

// ClauseRecord links a clause and its type to the contract containing it.
type ClauseRecord struct {
	Clause     Clause     `json:"clause"`
	ClauseType ClauseType `json:"clauseType"`
	Contract   Contract   `json:"contract"`
}

// Shape names the branch that produced a Result.
type Shape string

const (
	ShapeEmpty                  Shape = "empty"
	ShapeAggregationWithDetails Shape = "aggregation_with_details"
	ShapeAggregation            Shape = "aggregation"
	ShapeRelationships          Shape = "relationships"
	ShapeEntities               Shape = "entities"
	ShapeRaw                    Shape = "raw"
)

// AggregationRowsKey is the reserved bag key holding grouped rows.
const AggregationRowsKey = "_aggregationRows"

// Aggregations is the aggregation bag: flat metric fields plus optional
// grouped rows serialized under AggregationRowsKey.
type Aggregations struct {
	Fields Row
	Groups []Row
}

// Empty reports whether the bag holds nothing.
func (a *Aggregations) Empty() bool {
	return a == nil || (a.Fields.Len() == 0 && len(a.Groups) == 0)
}

func (a Aggregations) MarshalJSON() ([]byte, error) {
	out := Row{keys: a.Fields.Keys(), values: a.Fields.Map()}
	if len(a.Groups) > 0 {
		out.set(AggregationRowsKey, a.Groups)
	}
	return out.MarshalJSON()
}

func (a *Aggregations) UnmarshalJSON(data []byte) error {
	*a = Aggregations{}
	return decodeObject(data, func(key string, dec *json.Decoder) error {
		if key == AggregationRowsKey {
			return dec.Decode(&a.Groups)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		a.Fields.set(key, v)
		return nil
	})
}

// Result is the canonical shape every query result is normalized into.
type Result struct {
	Cypher        string         `json:"cypher"`
	ExecutionTime int64          `json:"executionTime"`
	Shape         Shape          `json:"shape"`
	Contracts     []Contract     `json:"contracts,omitempty"`
	Clauses       []ClauseRecord `json:"clauses,omitempty"`
	Aggregations  *Aggregations  `json:"aggregations,omitempty"`
	RawResults    []Row          `json:"rawResults"`
}

// HasDualCapability reports whether the result carries both an aggregation
// bag and contract or clause detail.
func (r *Result) HasDualCapability() bool {
	return !r.Aggregations.Empty() && (len(r.Contracts) > 0 || len(r.Clauses) > 0)
}
