package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/clausegraph/analysis"
	"github.com/brunobiangulo/clausegraph/normalize"
)

func sampleEnvelope() *analysis.Envelope {
	rows := []normalize.Row{normalize.NewRow([]string{"c.id", "c.title"}, []any{"K1", "MSA"})}
	return &analysis.Envelope{
		Query:     "Contracts WITHOUT audit rights",
		Result:    normalize.Normalize("MATCH (c:Contract) RETURN c.id, c.title", 0, rows),
		Analysis:  analysis.Analysis{Summary: "One contract lacks audit rights.", Insights: []string{}},
		Timestamp: "2025-03-01T09:30:00.000Z",
		QueryMetadata: &analysis.QueryMetadata{
			ID: "negative-search", Description: "Find contracts missing audit rights clauses", Category: "negative_search",
		},
	}
}

func TestKey(t *testing.T) {
	name, err := Key("negative-search")
	require.NoError(t, err)
	assert.Equal(t, "query-negative-search.json", name)

	for _, bad := range []string{"", "../etc/passwd", "a/b", "-x", "a b"} {
		_, err := Key(bad)
		assert.ErrorIs(t, err, ErrInvalidID, bad)
	}
}

func TestDiskRoundTrip(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDisk(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = d.Load(ctx, "negative-search")
	assert.ErrorIs(t, err, ErrNotFound)

	env := sampleEnvelope()
	require.NoError(t, d.Save(ctx, "negative-search", env))
	assert.False(t, env.Cached, "Save must not modify the caller's envelope")

	_, err = os.Stat(filepath.Join(dir, "query-negative-search.json"))
	require.NoError(t, err)

	got, err := d.Load(ctx, "negative-search")
	require.NoError(t, err)
	assert.True(t, got.Cached)
	assert.Equal(t, env.Query, got.Query)
	assert.Equal(t, env.QueryMetadata, got.QueryMetadata)
	require.Len(t, got.Result.Contracts, 1)
	assert.Equal(t, "K1", got.Result.Contracts[0].ID)
	assert.Equal(t, []string{"c.id", "c.title"}, got.Result.RawResults[0].Keys())
}

func TestDiskCorruptFile(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDisk(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "query-broken.json"), []byte("{"), 0644))

	_, err = d.Load(context.Background(), "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

type countingStore struct {
	Store
	loads int
}

func (c *countingStore) Load(ctx context.Context, id string) (*analysis.Envelope, error) {
	c.loads++
	return c.Store.Load(ctx, id)
}

func TestLRUFrontsBackingStore(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, d.Save(ctx, "aggregation", sampleEnvelope()))

	backing := &countingStore{Store: d}
	l, err := NewLRU(8, backing)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := l.Load(ctx, "aggregation")
		require.NoError(t, err)
		assert.True(t, got.Cached)
	}
	assert.Equal(t, 1, backing.loads)
	assert.Equal(t, 1, l.Len())

	// Each load returns an independent copy.
	a, _ := l.Load(ctx, "aggregation")
	a.Query = "changed"
	b, _ := l.Load(ctx, "aggregation")
	assert.Equal(t, "Contracts WITHOUT audit rights", b.Query)
}

func TestLRUMemoryOnly(t *testing.T) {
	l, err := NewLRU(2, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = l.Load(ctx, "traversal")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, l.Save(ctx, "traversal", sampleEnvelope()))
	got, err := l.Load(ctx, "traversal")
	require.NoError(t, err)
	assert.True(t, got.Cached)
}

func TestNewS3Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  S3Config
		want string
	}{
		{"endpoint", S3Config{}, "s3 endpoint is required"},
		{"keys", S3Config{Endpoint: "localhost:9000"}, "s3 access key and secret key are required"},
		{"bucket", S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"}, "s3 bucket is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewS3(tt.cfg)
			assert.EqualError(t, err, tt.want)
		})
	}

	s, err := NewS3(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "envelopes", Prefix: "/demo/"})
	require.NoError(t, err)
	key, err := s.objectKey("boolean-logic")
	require.NoError(t, err)
	assert.Equal(t, "demo/query-boolean-logic.json", key)
}
