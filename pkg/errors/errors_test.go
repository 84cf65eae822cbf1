package errors

import (
    "errors"
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
    err := New(ErrValidation, "phone is required")
    assert.Equal(t, ErrValidation, err.Code)
    assert.Equal(t, "phone is required", err.Message)
    assert.Nil(t, err.Err)
    assert.Equal(t, "[VALIDATION_ERROR] phone is required", err.Error())
}

func TestWrap_WrapsPlainError(t *testing.T) {
    cause := errors.New("connection refused")
    err := Wrap(cause, ErrDatabase, "lock fairness pointer")

    assert.Equal(t, ErrDatabase, err.Code)
    assert.Equal(t, "lock fairness pointer", err.Message)
    assert.Same(t, cause, err.Err)
    assert.Equal(t, "[DATABASE_ERROR] lock fairness pointer: connection refused", err.Error())
    assert.Equal(t, cause, err.Unwrap())
}

func TestWrap_NilReturnsNil(t *testing.T) {
    assert.Nil(t, Wrap(nil, ErrDatabase, "whatever"))
}

func TestWrap_EnhancesExistingAppError(t *testing.T) {
    inner := New(ErrCallerNotFound, "caller not found")
    outer := Wrap(inner, ErrDatabase, "reassign lookup")

    // Wrap prepends context onto the existing AppError rather than nesting,
    // and keeps the original code.
    assert.Same(t, inner, outer)
    assert.Equal(t, ErrCallerNotFound, outer.Code)
    assert.Equal(t, "reassign lookup: caller not found", outer.Message)
}

func TestWithContext(t *testing.T) {
    err := New(ErrLeadNotFound, "lead not found").WithContext("lead_id", "abc123")
    assert.Equal(t, "abc123", err.Context["lead_id"])
}

func TestWithStatusCode(t *testing.T) {
    err := New(ErrValidation, "bad input").WithStatusCode(400)
    assert.Equal(t, 400, err.StatusCode)
}

func TestIsRetryable(t *testing.T) {
    assert.True(t, New(ErrDatabase, "x").IsRetryable())
    assert.True(t, New(ErrRedis, "x").IsRetryable())
    assert.True(t, New(ErrTransientConflict, "x").IsRetryable())
    assert.False(t, New(ErrValidation, "x").IsRetryable())
    assert.False(t, New(ErrCallerNotFound, "x").IsRetryable())
}

func TestIs(t *testing.T) {
    err := New(ErrCallerNotFound, "caller not found")
    assert.True(t, Is(err, ErrCallerNotFound))
    assert.False(t, Is(err, ErrLeadNotFound))
    assert.False(t, Is(nil, ErrCallerNotFound))
    assert.False(t, Is(errors.New("plain"), ErrCallerNotFound))
}
