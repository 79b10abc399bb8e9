package export

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/brunobiangulo/clausegraph/analysis"
	"github.com/brunobiangulo/clausegraph/normalize"
)

func dualEnvelope(t *testing.T) *analysis.Envelope {
	t.Helper()
	var rows []normalize.Row
	require.NoError(t, json.Unmarshal([]byte(`[
		{"state": "California", "contract_count": 46, "c_id": "K1", "c_title": "MSA", "cl_text": "laws of California", "ct_name": "Governing Law", "tags": ["a"]},
		{"state": "New York", "contract_count": 78, "c_id": "K2", "c_title": "NDA", "cl_text": "laws of New York", "ct_name": "Governing Law"}
	]`), &rows))
	return &analysis.Envelope{
		Query:     "Count contracts by governing law state with clauses",
		Result:    normalize.Normalize("MATCH ...", 0, rows),
		Analysis:  analysis.Analysis{Summary: "New York leads.", Insights: []string{"i1", "i2"}, RiskFlags: []string{"r1"}},
		Timestamp: "2025-03-01T09:30:00.000Z",
		QueryMetadata: &analysis.QueryMetadata{ID: "aggregation", Category: "aggregation"},
	}
}

func open(t *testing.T, env *analysis.Envelope) *excelize.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, env))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestWriteXLSXSheets(t *testing.T) {
	f := open(t, dualEnvelope(t))
	assert.Equal(t, []string{SheetSummary, SheetContracts, SheetClauses, SheetAggregations, SheetRaw}, f.GetSheetList())

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Field", "Value"}, summary[0])
	assert.Equal(t, []string{"Query", "Count contracts by governing law state with clauses"}, summary[1])
	assert.Contains(t, summary, []string{"Shape", "aggregation_with_details"})
	assert.Contains(t, summary, []string{"Risk flag", "r1"})

	contracts, err := f.GetRows(SheetContracts)
	require.NoError(t, err)
	require.Len(t, contracts, 3)
	assert.Equal(t, "K1", contracts[1][0])

	clauses, err := f.GetRows(SheetClauses)
	require.NoError(t, err)
	require.Len(t, clauses, 3)
	assert.Equal(t, "Governing Law", clauses[2][2])

	aggs, err := f.GetRows(SheetAggregations)
	require.NoError(t, err)
	assert.Contains(t, aggs, []string{"state", "contract_count"})
	assert.Contains(t, aggs, []string{"New York", "78"})

	raw, err := f.GetRows(SheetRaw)
	require.NoError(t, err)
	require.Len(t, raw, 3)
	assert.Equal(t, []string{"state", "contract_count", "c_id", "c_title", "cl_text", "ct_name", "tags"}, raw[0])
	assert.Equal(t, `["a"]`, raw[1][6])
}

func TestWriteXLSXEmptyResult(t *testing.T) {
	f := open(t, &analysis.Envelope{Query: "q", Analysis: analysis.Analysis{Summary: "none"}})

	raw, err := f.GetRows(SheetRaw)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"(no rows)"}}, raw)

	contracts, err := f.GetRows(SheetContracts)
	require.NoError(t, err)
	assert.Len(t, contracts, 1)
}

func TestWriteXLSXNil(t *testing.T) {
	assert.Error(t, WriteXLSX(&bytes.Buffer{}, nil))
}
