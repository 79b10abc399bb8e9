package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/brunobiangulo/clausegraph"
	"github.com/brunobiangulo/clausegraph/export"
	"github.com/brunobiangulo/clausegraph/failure"
	"github.com/brunobiangulo/clausegraph/graphdb"
	"github.com/brunobiangulo/clausegraph/limitation"
	"github.com/brunobiangulo/clausegraph/llm"
	"github.com/brunobiangulo/clausegraph/llm/llmtest"
	"github.com/brunobiangulo/clausegraph/metrics"
	"github.com/brunobiangulo/clausegraph/normalize"
	"github.com/brunobiangulo/clausegraph/retrieval"
)

type stubSearcher struct{ matches []retrieval.Match }

func (s stubSearcher) Search(context.Context, string, retrieval.Options) ([]retrieval.Match, error) {
	return s.matches, nil
}

func contractRows() []normalize.Row {
	return []normalize.Row{
		normalize.NewRow([]string{"c.id", "c.title"}, []any{"K1", "MSA"}),
		normalize.NewRow([]string{"c.id", "c.title"}, []any{"K2", "NDA"}),
	}
}

func newTestServer(t *testing.T, chat llm.Chatter, exec graphdb.Executor, server clausegraph.ServerConfig) http.Handler {
	t.Helper()
	cfg := clausegraph.DefaultConfig()
	cfg.Cache = clausegraph.CacheConfig{}
	e, err := clausegraph.New(context.Background(), cfg,
		clausegraph.WithChat(chat),
		clausegraph.WithExecutor(exec),
		clausegraph.WithSearcher(stubSearcher{matches: []retrieval.Match{{ID: "K1", Title: "MSA"}}}),
		clausegraph.WithMetrics(metrics.New()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return newServer(e, server)
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestHandleQuery(t *testing.T) {
	chat := &llmtest.Chat{Responses: []string{
		"MATCH (c:Contract) RETURN c.id, c.title",
		`{"summary": "Two contracts.", "insights": []}`,
	}}
	h := newTestServer(t, chat, &graphdb.StaticExecutor{Rows: contractRows()}, clausegraph.ServerConfig{})

	rec := do(t, h, http.MethodPost, "/query", `{"query": "List contracts"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "List contracts", body["query"])
	result := body["result"].(map[string]any)
	assert.Equal(t, "entities", result["shape"])
	assert.Len(t, result["contracts"], 2)
	assert.Equal(t, "Two contracts.", body["analysis"].(map[string]any)["summary"])
	assert.NotEmpty(t, body["requestId"])
}

func TestHandleQueryWithRows(t *testing.T) {
	exec := &graphdb.StaticExecutor{}
	h := newTestServer(t, &llmtest.Chat{}, exec, clausegraph.ServerConfig{})

	rec := do(t, h, http.MethodPost, "/query",
		`{"query": "How many?", "cypher": "MATCH (c) RETURN count(c) AS contract_count", "rows": [{"contract_count": 510}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decodeBody(t, rec)["result"].(map[string]any)
	assert.Equal(t, "aggregation", result["shape"])
	assert.Equal(t, 510.0, result["aggregations"].(map[string]any)["contract_count"])
	assert.Empty(t, exec.Queries())
}

func TestHandleQueryErrors(t *testing.T) {
	tests := []struct {
		name   string
		chat   *llmtest.Chat
		exec   graphdb.Executor
		body   string
		status int
		kind   string
	}{
		{"invalid json", &llmtest.Chat{}, &graphdb.StaticExecutor{}, `{`, http.StatusBadRequest, ""},
		{"no question", &llmtest.Chat{}, &graphdb.StaticExecutor{}, `{}`, http.StatusBadRequest, "invalid_input"},
		{"unknown id", &llmtest.Chat{}, &graphdb.StaticExecutor{}, `{"queryId": "nope"}`, http.StatusBadRequest, ""},
		{
			"quota", &llmtest.Chat{Err: &llm.APIError{StatusCode: http.StatusTooManyRequests}},
			&graphdb.StaticExecutor{}, `{"query": "count"}`, http.StatusTooManyRequests, "quota_exceeded",
		},
		{
			"graph unconfigured", &llmtest.Chat{Responses: []string{"MATCH (c) RETURN c"}},
			graphdb.Unconfigured, `{"query": "count"}`, http.StatusServiceUnavailable, "unconfigured",
		},
		{
			"graph down", &llmtest.Chat{Responses: []string{"MATCH (c) RETURN c"}},
			&graphdb.StaticExecutor{Err: failure.ErrUnavailable}, `{"query": "count"}`, http.StatusBadGateway, "unavailable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, tt.chat, tt.exec, clausegraph.ServerConfig{})
			rec := do(t, h, http.MethodPost, "/query", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			assert.NotEmpty(t, body["error"])
			if tt.kind != "" {
				assert.Equal(t, tt.kind, body["kind"])
			}
		})
	}
}

func TestHandleCypher(t *testing.T) {
	chat := &llmtest.Chat{Responses: []string{"```cypher\nMATCH (c:Contract) RETURN count(c)\n```"}}
	h := newTestServer(t, chat, &graphdb.StaticExecutor{}, clausegraph.ServerConfig{})

	rec := do(t, h, http.MethodPost, "/cypher", `{"query": "How many contracts?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "MATCH (c:Contract) RETURN count(c)", decodeBody(t, rec)["cypher"])

	rec = do(t, h, http.MethodPost, "/cypher", `{"query": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "generation", decodeBody(t, rec)["stage"])
}

func TestHandleRAG(t *testing.T) {
	h := newTestServer(t, &llmtest.Chat{}, &graphdb.StaticExecutor{}, clausegraph.ServerConfig{})

	rec := do(t, h, http.MethodPost, "/rag", `{"queryId": "aggregation"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, 1.0, body["count"])
	lim := body["limitation"].(map[string]any)
	assert.Equal(t, limitation.Aggregation, lim["type"])
	assert.Equal(t, false, lim["canHandle"])
	assert.Equal(t, lim["message"], body["note"])

	rec = do(t, h, http.MethodPost, "/rag", `{"query": "Find contracts without a non-compete"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, limitation.NegativeSearch, decodeBody(t, rec)["limitation"].(map[string]any)["type"])

	rec = do(t, h, http.MethodPost, "/rag", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleClassify(t *testing.T) {
	h := newTestServer(t, &llmtest.Chat{}, &graphdb.StaticExecutor{}, clausegraph.ServerConfig{})

	rec := do(t, h, http.MethodPost, "/classify", `{"query": "How many contracts per state?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, limitation.Aggregation, decodeBody(t, rec)["type"])

	rec = do(t, h, http.MethodPost, "/classify", `{"query": "anything", "category": "traversal"}`)
	assert.Equal(t, limitation.Traversal, decodeBody(t, rec)["type"])

	rec = do(t, h, http.MethodPost, "/classify", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExport(t *testing.T) {
	h := newTestServer(t, &llmtest.Chat{}, &graphdb.StaticExecutor{}, clausegraph.ServerConfig{})

	rec := do(t, h, http.MethodPost, "/export",
		`{"queryId": "negative-search", "cypher": "MATCH (c) RETURN c", "rows": [{"c.id": "K1", "c.title": "MSA"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "clausegraph-negative-search.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetContracts)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"K1", "MSA", "0"}, rows[1])
}

func TestHandleQueries(t *testing.T) {
	h := newTestServer(t, &llmtest.Chat{}, &graphdb.StaticExecutor{}, clausegraph.ServerConfig{})

	rec := do(t, h, http.MethodGet, "/queries", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody(t, rec)["queries"].([]any)
	require.Len(t, list, 5)
	assert.Equal(t, "negative-search", list[0].(map[string]any)["id"])

	rec = do(t, h, http.MethodGet, "/queries/recent?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, decodeBody(t, rec)["count"])

	rec = do(t, h, http.MethodGet, "/queries/recent?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, &llmtest.Chat{}, &graphdb.StaticExecutor{}, clausegraph.ServerConfig{})

	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	do(t, h, http.MethodPost, "/query", `{"query": "q", "cypher": "RETURN 1", "rows": []}`)
	rec = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `clausegraph_results_total{shape="empty"} 1`)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(t, &llmtest.Chat{}, &graphdb.StaticExecutor{}, clausegraph.ServerConfig{})
	rec := do(t, h, http.MethodGet, "/query", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	h := newTestServer(t, &llmtest.Chat{}, &graphdb.StaticExecutor{}, clausegraph.ServerConfig{APIKey: "s3cret"})

	rec := do(t, h, http.MethodGet, "/queries", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/queries", "", "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/queries", "", "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestID(t *testing.T) {
	h := newTestServer(t, &llmtest.Chat{}, &graphdb.StaticExecutor{}, clausegraph.ServerConfig{})

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)

	rec = do(t, h, http.MethodGet, "/health", "", "X-Request-ID", "trace-7")
	assert.Equal(t, "trace-7", rec.Header().Get("X-Request-ID"))
}

func TestCORSMiddleware(t *testing.T) {
	h := newTestServer(t, &llmtest.Chat{}, &graphdb.StaticExecutor{},
		clausegraph.ServerConfig{CORSOrigins: "https://app.example.com, https://admin.example.com"})

	rec := do(t, h, http.MethodOptions, "/query", "", "Origin", "https://admin.example.com")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://admin.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, h, http.MethodGet, "/health", "", "Origin", "https://evil.example.com")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
