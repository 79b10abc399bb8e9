package graphdb

import (
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/brunobiangulo/clausegraph/normalize"
)

// Value converts a driver value into a plain value: nodes and
// relationships become their property maps, paths a list of node property
// maps, temporal values ISO strings. Everything else goes through
// normalize.Coerce.
func Value(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case neo4j.Node:
		return properties(x.Props)
	case *neo4j.Node:
		if x == nil {
			return nil
		}
		return properties(x.Props)
	case neo4j.Relationship:
		return properties(x.Props)
	case *neo4j.Relationship:
		if x == nil {
			return nil
		}
		return properties(x.Props)
	case neo4j.Path:
		nodes := make([]any, len(x.Nodes))
		for i, n := range x.Nodes {
			nodes[i] = properties(n.Props)
		}
		return nodes
	case neo4j.Date:
		return time.Time(x).Format("2006-01-02")
	case neo4j.LocalDateTime:
		return time.Time(x).Format("2006-01-02T15:04:05.999999999")
	case neo4j.LocalTime:
		return time.Time(x).Format("15:04:05.999999999")
	case neo4j.Time:
		return time.Time(x).Format("15:04:05.999999999Z07:00")
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Value(e)
		}
		return out
	case map[string]any:
		return properties(x)
	case fmt.Stringer:
		// durations and points
		return x.String()
	}
	return normalize.Coerce(v)
}

func properties(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = Value(v)
	}
	return out
}

// Record converts one driver record into a row.
func Record(keys []string, values []any) normalize.Row {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = Value(v)
	}
	return normalize.NewRow(keys, vals)
}
