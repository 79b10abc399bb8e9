// Package cache persists response envelopes per showcase query so a
// failed live run can fall back to the last good answer.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/brunobiangulo/clausegraph/analysis"
)

var (
	// ErrNotFound is returned when no envelope is stored for an id.
	ErrNotFound = errors.New("cache: not found")

	// ErrInvalidID is returned for ids that cannot be used as a file name.
	ErrInvalidID = errors.New("cache: invalid query id")
)

var idRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Store loads and saves envelopes by query id. Load marks the returned
// envelope as cached.
type Store interface {
	Load(ctx context.Context, id string) (*analysis.Envelope, error)
	Save(ctx context.Context, id string, env *analysis.Envelope) error
}

// Key returns the object or file name for id.
func Key(id string) (string, error) {
	if !idRe.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return "query-" + id + ".json", nil
}

func encode(env *analysis.Envelope) ([]byte, error) {
	cp := *env
	cp.Cached = false
	return json.MarshalIndent(&cp, "", "  ")
}

func decode(data []byte) (*analysis.Envelope, error) {
	var env analysis.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("cache: decoding envelope: %w", err)
	}
	env.Cached = true
	return &env, nil
}
