// Package apperr defines the error kinds surfaced by the engine. Transports map them to
// status codes with errors.As; anything that is not an *Error is internal.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindForbidden         Kind = "forbidden"
	KindInvalidTransition Kind = "invalid_transition"
)

// Error is a classified engine error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Field is the attrs path of a validation failure.
	Field   string
	Details map[string]any
	Status  int
}

func (e *Error) Error() string { return e.Message }

// Is matches on Kind, and on Code when the target sets one, so sentinels like
// ErrConflict work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is; they carry no message.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
)

// Codes shared between the engine and its callers.
const (
	CodeInvalidField        = "invalid_field"
	CodeInvalidWindow       = "invalid_window"
	CodeSelfParent          = "self_parent"
	CodeCyclicHierarchy     = "cyclic_hierarchy"
	CodeNotFound            = "not_found"
	CodeSprintNotFound      = "sprint_not_found"
	CodeParentNotFound      = "parent_not_found"
	CodeAssignedUserMissing = "assigned_user_not_found"
	CodeDuplicateName       = "duplicate_name"
	CodeAlreadyDeleted      = "already_deleted"
	CodeNotDeleted          = "not_deleted"
	CodeLastElevatedMember  = "last_elevated_member"
	CodeSprintOverlap       = "sprint_overlap"
	CodeIncompleteTasks     = "incomplete_tasks"
	CodeUnfinishedTasks     = "unfinished_tasks"
	CodeSprintNotStarted    = "sprint_not_started"
	CodeAlreadyMember       = "already_member"
	CodeForbidden           = "forbidden"
	CodeInvalidTransition   = "invalid_transition"
)

// Validation reports a bad attrs field.
func Validation(field, format string, args ...any) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeInvalidField,
		Message: fmt.Sprintf(format, args...),
		Field:   field,
		Status:  http.StatusBadRequest,
	}
}

// InvalidEnum reports a value outside of allowed, naming the legal set.
func InvalidEnum(field, value string, allowed []string) *Error {
	err := Validation(field, "%s must be one of %s, got %q", field, strings.Join(allowed, ", "), value)
	return err.WithDetail("allowed", allowed)
}

// BadRequest is a validation failure that is not tied to a single field.
func BadRequest(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...), Status: http.StatusBadRequest}
}

func NotFound(entity, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %s not found", entity, id),
		Details: map[string]any{"entity": entity, "id": id},
		Status:  http.StatusNotFound,
	}
}

// NotFoundCode is a NotFound with a caller-specific code such as sprint_not_found.
func NotFoundCode(code, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...), Status: http.StatusNotFound}
}

// Duplicate reports an active sibling with the same name (409).
func Duplicate(entity, name, existingID string) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    CodeDuplicateName,
		Message: fmt.Sprintf("%s named %q already exists", entity, name),
		Details: map[string]any{"entity": entity, "name": name, "existingId": existingID},
		Status:  http.StatusConflict,
	}
}

// StateConflict reports a request that clashes with current state (400).
func StateConflict(code, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...), Status: http.StatusBadRequest}
}

func AlreadyDeleted(entity, id string) *Error {
	return StateConflict(CodeAlreadyDeleted, "%s %s is already deleted", entity, id).
		WithDetail("entity", entity).WithDetail("id", id)
}

func NotDeleted(entity, id string) *Error {
	return StateConflict(CodeNotDeleted, "%s %s is not deleted", entity, id).
		WithDetail("entity", entity).WithDetail("id", id)
}

func Forbidden(reason string) *Error {
	return &Error{Kind: KindForbidden, Code: CodeForbidden, Message: reason, Status: http.StatusForbidden}
}

// InvalidTransition names the legal targets of from.
func InvalidTransition(entity, from, to string, allowed []string) *Error {
	if allowed == nil {
		allowed = []string{}
	}
	legal := "none"
	if len(allowed) > 0 {
		legal = strings.Join(allowed, ", ")
	}
	return &Error{
		Kind:    KindInvalidTransition,
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("invalid %s transition %s -> %s; allowed from %s: %s", entity, from, to, from, legal),
		Details: map[string]any{"from": from, "to": to, "allowed": allowed},
		Status:  http.StatusBadRequest,
	}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus returns the status for err, 500 for unclassified errors.
func HTTPStatus(err error) int {
	if e, ok := As(err); ok && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}
