package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/brunobiangulo/clausegraph"
	"github.com/brunobiangulo/clausegraph/analysis"
	"github.com/brunobiangulo/clausegraph/export"
	"github.com/brunobiangulo/clausegraph/failure"
	"github.com/brunobiangulo/clausegraph/normalize"
)

const maxBodyBytes = 4 << 20

var errNoQuestion = fmt.Errorf("either queryId or query string is required: %w", failure.ErrInvalidInput)

type handler struct {
	engine  clausegraph.Engine
	timeout time.Duration
}

func newHandler(e clausegraph.Engine, timeout time.Duration) *handler {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &handler{engine: e, timeout: timeout}
}

// queryRequest is the body of /query and /export. Cypher skips generation;
// Rows, when present, skips execution.
type queryRequest struct {
	QueryID string          `json:"queryId,omitempty"`
	Query   string          `json:"query,omitempty"`
	Cypher  string          `json:"cypher,omitempty"`
	Rows    []normalize.Row `json:"rows,omitempty"`
}

func (h *handler) runQuery(ctx context.Context, req queryRequest) (*analysis.Envelope, error) {
	var opts []clausegraph.QueryOption
	if req.Cypher != "" {
		opts = append(opts, clausegraph.WithCypher(req.Cypher))
	}
	if req.Rows != nil {
		opts = append(opts, clausegraph.WithRows(req.Rows))
	}

	switch {
	case req.QueryID != "":
		return h.engine.QueryShowcase(ctx, req.QueryID, opts...)
	case req.Query != "":
		return h.engine.Query(ctx, req.Query, opts...)
	}
	return nil, errNoQuestion
}

// POST /query
func (h *handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req queryRequest
	if !decode(w, r, &req) {
		return
	}

	env, err := h.runQuery(ctx, req)
	if err != nil {
		writeFailure(w, "query", err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

// POST /cypher
func (h *handler) handleCypher(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req struct {
		Query string `json:"query"`
	}
	if !decode(w, r, &req) {
		return
	}

	q, err := h.engine.Cypher(ctx, req.Query)
	if err != nil {
		writeFailure(w, "cypher", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"query":  req.Query,
		"cypher": q,
	})
}

// POST /rag
func (h *handler) handleRAG(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req struct {
		QueryID  string `json:"queryId"`
		Query    string `json:"query"`
		Category string `json:"category"`
	}
	if !decode(w, r, &req) {
		return
	}

	var (
		resp *clausegraph.SimilarityResponse
		err  error
	)
	switch {
	case req.QueryID != "":
		resp, err = h.engine.SimilarityShowcase(ctx, req.QueryID)
	case req.Query != "":
		resp, err = h.engine.Similarity(ctx, req.Query, req.Category)
	default:
		err = errNoQuestion
	}
	if err != nil {
		writeFailure(w, "rag", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /classify
func (h *handler) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query    string `json:"query"`
		Category string `json:"category"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Query == "" && req.Category == "" {
		writeError(w, http.StatusBadRequest, "query or category is required")
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Classify(req.Query, req.Category))
}

// POST /export
// Runs a query like /query and returns the envelope as an XLSX workbook.
func (h *handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req queryRequest
	if !decode(w, r, &req) {
		return
	}

	env, err := h.runQuery(ctx, req)
	if err != nil {
		writeFailure(w, "export", err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, env); err != nil {
		slog.Error("export error", "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	name := "clausegraph-query.xlsx"
	if req.QueryID != "" {
		name = "clausegraph-" + req.QueryID + ".xlsx"
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// GET /queries
func (h *handler) handleQueries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queries": h.engine.Showcase().All(),
	})
}

// GET /queries/recent
func (h *handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	logs, err := h.engine.RecentQueries(r.Context(), limit)
	if err != nil {
		slog.Error("query log error", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read query log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queries": logs,
		"count":   len(logs),
	})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version,
	})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// statusFor maps an engine error to the status code reported to clients.
func statusFor(err error) int {
	if errors.Is(err, clausegraph.ErrUnknownQuery) {
		return http.StatusBadRequest
	}
	return failure.HTTPStatus(failure.KindOf(err))
}

// writeFailure reports err with its stage and kind when known.
func writeFailure(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	body := map[string]string{"error": err.Error()}

	var fe *failure.Error
	if errors.As(err, &fe) {
		body["stage"] = string(fe.Stage)
		body["kind"] = string(fe.Kind)
	} else if k := failure.KindOf(err); k != failure.KindUnknown {
		body["kind"] = string(k)
	}

	if status >= http.StatusInternalServerError {
		slog.Error(op+" error", "status", status, "error", err)
	} else {
		slog.Warn(op+" rejected", "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
