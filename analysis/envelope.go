package analysis

import (
	"context"
	"time"

	"github.com/brunobiangulo/clausegraph/normalize"
)

// TimestampFormat is ISO 8601 with milliseconds in UTC.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// QueryMetadata describes the showcase query a request was made for.
type QueryMetadata struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Envelope is the response returned for a graph-path question.
type Envelope struct {
	Query         string            `json:"query"`
	Result        *normalize.Result `json:"result"`
	Analysis      Analysis          `json:"analysis"`
	Timestamp     string            `json:"timestamp"`
	Cached        bool              `json:"cached,omitempty"`
	QueryMetadata *QueryMetadata    `json:"queryMetadata,omitempty"`
	RequestID     string            `json:"requestId,omitempty"`
}

// Assembler builds envelopes.
type Assembler struct {
	analyzer *Analyzer
	now      func() time.Time
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) AssemblerOption {
	return func(a *Assembler) { a.now = now }
}

// NewAssembler creates an Assembler around analyzer.
func NewAssembler(analyzer *Analyzer, opts ...AssemblerOption) *Assembler {
	a := &Assembler{analyzer: analyzer, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assemble analyzes res and returns a complete envelope. A nil result is
// replaced by an empty one so the envelope is always well formed.
func (a *Assembler) Assemble(ctx context.Context, question string, res *normalize.Result, meta *QueryMetadata) *Envelope {
	if res == nil {
		res = normalize.Normalize("", 0, nil)
	}
	return &Envelope{
		Query:         question,
		Result:        res,
		Analysis:      a.analyzer.Analyze(ctx, question, res),
		Timestamp:     a.now().UTC().Format(TimestampFormat),
		QueryMetadata: meta,
	}
}
