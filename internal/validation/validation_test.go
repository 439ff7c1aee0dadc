package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planboard/internal/apperr"
)

type sampleAttrs struct {
	Title    string     `json:"title" validate:"notblank,max=20"`
	Priority string     `json:"priority" validate:"required,oneof=LOW MEDIUM HIGH URGENT"`
	DueDate  *time.Time `json:"dueDate" validate:"required"`
	Email    string     `json:"email,omitempty" validate:"omitempty,email"`
	Progress *int       `json:"progress,omitempty" validate:"omitempty,gte=0,lte=100"`
}

func TestStructReportsFieldPath(t *testing.T) {
	due := time.Now()
	err := Struct(sampleAttrs{Title: "  ", Priority: "LOW", DueDate: &due})
	require.Error(t, err)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, e.Kind)
	assert.Equal(t, "title", e.Field)
	assert.Equal(t, "title is required", e.Message)
}

func TestStructListsEveryFailingField(t *testing.T) {
	err := Struct(sampleAttrs{})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"title", "priority", "dueDate"}, e.Details["fields"])
}

func TestStructEnumNamesLegalSet(t *testing.T) {
	due := time.Now()
	err := Struct(sampleAttrs{Title: "x", Priority: "NOW", DueDate: &due})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "priority", e.Field)
	assert.Equal(t, []string{"LOW", "MEDIUM", "HIGH", "URGENT"}, e.Details["allowed"])
}

func TestStructRange(t *testing.T) {
	due := time.Now()
	progress := 120
	err := Struct(sampleAttrs{Title: "x", Priority: "LOW", DueDate: &due, Progress: &progress})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "progress", e.Field)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestVar(t *testing.T) {
	assert.NoError(t, Var("status", "DONE", "oneof=TODO DONE"))
	err := Var("status", "LATER", "oneof=TODO DONE")
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "status", e.Field)
	assert.Contains(t, e.Message, "TODO, DONE")
}
