package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesKindAndCode(t *testing.T) {
	err := fmt.Errorf("create sprint: %w", StateConflict(CodeSprintOverlap, "overlaps"))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.True(t, errors.Is(err, &Error{Kind: KindConflict, Code: CodeSprintOverlap}))
	assert.False(t, errors.Is(err, &Error{Kind: KindConflict, Code: CodeDuplicateName}))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusConflict, HTTPStatus(Duplicate("team", "core", "t1")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(AlreadyDeleted("team", "t1")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("team", "t1")))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(Forbidden("no")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("disk full")))
}

func TestInvalidTransitionListsAllowed(t *testing.T) {
	err := InvalidTransition("sprint", "COMPLETED", "ACTIVE", nil)
	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, []string{}, e.Details["allowed"])
	assert.Contains(t, e.Message, "allowed from COMPLETED: none")

	err = InvalidTransition("sprint", "ACTIVE", "PLANNING", []string{"COMPLETED"})
	e, _ = As(err)
	assert.Equal(t, []string{"COMPLETED"}, e.Details["allowed"])
}

func TestInvalidEnumNamesLegalSet(t *testing.T) {
	err := InvalidEnum("priority", "NOW", []string{"LOW", "HIGH"})
	assert.Equal(t, "priority", err.Field)
	assert.Contains(t, err.Message, "LOW, HIGH")
}
