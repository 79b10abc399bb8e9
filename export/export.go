// Package export renders a response envelope as an XLSX workbook.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/brunobiangulo/clausegraph/analysis"
	"github.com/brunobiangulo/clausegraph/normalize"
)

// Sheet names in workbook order.
const (
	SheetSummary      = "Summary"
	SheetContracts    = "Contracts"
	SheetClauses      = "Clauses"
	SheetAggregations = "Aggregations"
	SheetRaw          = "Raw"
)

// ContentType is the MIME type of the workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteXLSX writes env as a workbook with one sheet per result part.
// Sheets without data still carry their header row.
func WriteXLSX(w io.Writer, env *analysis.Envelope) error {
	if env == nil {
		return fmt.Errorf("export: nil envelope")
	}
	res := env.Result
	if res == nil {
		res = normalize.Normalize("", 0, nil)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return err
	}
	for _, name := range []string{SheetContracts, SheetClauses, SheetAggregations, SheetRaw} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	sw := &sheetWriter{f: f, header: bold}

	sw.summary(env, res)
	sw.contracts(res)
	sw.clauses(res)
	sw.aggregations(res)
	sw.raw(res)
	if sw.err != nil {
		return fmt.Errorf("export: %w", sw.err)
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

// sheetWriter keeps the first error so the section writers stay linear.
type sheetWriter struct {
	f      *excelize.File
	header int
	err    error
}

func (s *sheetWriter) row(sheet string, r int, values ...any) {
	if s.err != nil {
		return
	}
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, r)
		if err != nil {
			s.err = err
			return
		}
		if err := s.f.SetCellValue(sheet, cell, cellValue(v)); err != nil {
			s.err = err
			return
		}
	}
}

func (s *sheetWriter) headerRow(sheet string, r int, names ...string) {
	values := make([]any, len(names))
	for i, n := range names {
		values[i] = n
	}
	s.row(sheet, r, values...)
	if s.err == nil {
		s.err = s.f.SetRowStyle(sheet, r, r, s.header)
	}
}

func (s *sheetWriter) summary(env *analysis.Envelope, res *normalize.Result) {
	s.headerRow(SheetSummary, 1, "Field", "Value")
	r := 2
	add := func(k string, v any) {
		s.row(SheetSummary, r, k, v)
		r++
	}
	add("Query", env.Query)
	add("Timestamp", env.Timestamp)
	add("Cached", env.Cached)
	if m := env.QueryMetadata; m != nil {
		add("Query ID", m.ID)
		add("Category", m.Category)
		add("Description", m.Description)
	}
	add("Cypher", res.Cypher)
	add("Execution time (ms)", res.ExecutionTime)
	add("Shape", string(res.Shape))
	add("Summary", env.Analysis.Summary)
	for _, v := range env.Analysis.Insights {
		add("Insight", v)
	}
	for _, v := range env.Analysis.RiskFlags {
		add("Risk flag", v)
	}
	for _, v := range env.Analysis.Recommendations {
		add("Recommendation", v)
	}
}

func (s *sheetWriter) contracts(res *normalize.Result) {
	s.headerRow(SheetContracts, 1, "ID", "Title", "Clauses", "Context")
	for i, c := range res.Contracts {
		s.row(SheetContracts, i+2, c.ID, c.Title, c.NumClauses, c.Context)
	}
}

func (s *sheetWriter) clauses(res *normalize.Result) {
	s.headerRow(SheetClauses, 1, "Contract ID", "Contract Title", "Clause Type", "Clause ID", "Text", "Start Position")
	for i, rec := range res.Clauses {
		s.row(SheetClauses, i+2, rec.Contract.ID, rec.Contract.Title, rec.ClauseType.Name,
			rec.Clause.ID, rec.Clause.Text, rec.Clause.StartPosition)
	}
}

func (s *sheetWriter) aggregations(res *normalize.Result) {
	r := 1
	s.headerRow(SheetAggregations, r, "Metric", "Value")
	r++
	if res.Aggregations.Empty() {
		return
	}
	for _, k := range res.Aggregations.Fields.Keys() {
		v, _ := res.Aggregations.Fields.Get(k)
		s.row(SheetAggregations, r, k, v)
		r++
	}
	if len(res.Aggregations.Groups) > 0 {
		r++
		s.table(SheetAggregations, r, res.Aggregations.Groups)
	}
}

func (s *sheetWriter) raw(res *normalize.Result) {
	if len(res.RawResults) == 0 {
		s.headerRow(SheetRaw, 1, "(no rows)")
		return
	}
	s.table(SheetRaw, 1, res.RawResults)
}

// table writes rows under a header made of every key in first-seen order.
func (s *sheetWriter) table(sheet string, start int, rows []normalize.Row) {
	var cols []string
	index := make(map[string]int)
	for _, row := range rows {
		for _, k := range row.Keys() {
			if _, ok := index[k]; !ok {
				index[k] = len(cols)
				cols = append(cols, k)
			}
		}
	}
	s.headerRow(sheet, start, cols...)
	for i, row := range rows {
		values := make([]any, len(cols))
		for _, k := range row.Keys() {
			values[index[k]], _ = row.Get(k)
		}
		s.row(sheet, start+1+i, values...)
	}
}

// cellValue keeps scalars native and JSON-encodes nested values.
func cellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case string, bool, int, int64, float64:
		return x
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := strconv.ParseFloat(string(x), 64)
		return f
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
