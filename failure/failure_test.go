package failure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type statusErr int

func (s statusErr) Error() string   { return fmt.Sprintf("status %d", int(s)) }
func (s statusErr) HTTPStatus() int { return int(s) }

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"unconfigured sentinel", fmt.Errorf("neo4j: %w", ErrUnconfigured), KindUnconfigured},
		{"syntax error", fmt.Errorf("cypher: %w", ErrInvalidInput), KindInvalidInput},
		{"deadline", fmt.Errorf("run: %w", context.DeadlineExceeded), KindTimeout},
		{"401", statusErr(http.StatusUnauthorized), KindUnauthorized},
		{"429", fmt.Errorf("chat: %w", statusErr(http.StatusTooManyRequests)), KindQuotaExceeded},
		{"400", statusErr(http.StatusBadRequest), KindInvalidInput},
		{"503", statusErr(http.StatusServiceUnavailable), KindUnavailable},
		{"plain", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestStageMatching(t *testing.T) {
	gen := Generation(statusErr(http.StatusTooManyRequests))
	assert.ErrorIs(t, gen, ErrGeneration)
	assert.NotErrorIs(t, gen, ErrExecution)

	exec := Execution(fmt.Errorf("connect: %w", ErrUnavailable))
	assert.ErrorIs(t, exec, ErrExecution)
	assert.ErrorIs(t, exec, ErrUnavailable)

	var fe *Error
	assert.ErrorAs(t, exec, &fe)
	assert.Equal(t, KindUnavailable, fe.Kind)
}

func TestWrapKeepsExistingClassification(t *testing.T) {
	inner := Generation(ErrQuotaExceeded)
	assert.Same(t, inner, Execution(inner))
	assert.Nil(t, Generation(nil))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(KindQuotaExceeded))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(KindUnconfigured))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(KindInvalidInput))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(KindUnknown))
}
