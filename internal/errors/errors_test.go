package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := Wrap(fmt.Errorf("disk gone"), KindStoreQueryFailed, CodeBookCountFailed, "book count failed")

	assert.True(t, Is(err, ErrStoreQueryFailed))
	assert.False(t, Is(err, ErrMutationFailed))

	// Code does not participate in matching.
	other := Wrap(fmt.Errorf("x"), KindStoreQueryFailed, CodeAuthorCountFailed, "author count failed")
	assert.True(t, Is(other, err))
}

func TestError_WrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := Wrap(cause, KindMutationFailed, CodeAddBookFailed, "add book failed")

	assert.Equal(t, "add book failed: connection reset", err.Error())
	assert.Same(t, cause, err.Cause())
	assert.ErrorIs(t, err, cause)
}

func TestError_WrappedInFmt(t *testing.T) {
	inner := NotFound(CodeAuthorNotFound, "author not found")
	outer := fmt.Errorf("edit: %w", inner)

	var e *Error
	require.True(t, As(outer, &e))
	assert.Equal(t, CodeAuthorNotFound, e.Code)
	assert.Equal(t, KindNotFound, KindOf(outer))
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("boom")))
}

func TestError_CopyHelpers(t *testing.T) {
	base := ValidationWithDetails("validation failed", map[string]string{"username": "is required"})
	withCode := base.WithCode(CodeBadUserInput)
	withCause := base.WithCause(fmt.Errorf("dup"))

	assert.Equal(t, base.Details, withCode.Details)
	assert.Nil(t, base.Cause())
	assert.EqualError(t, withCause, "validation failed: dup")
	assert.Equal(t, []string{"a"}, base.WithDetails([]string{"a"}).Details)

	withArgs := withCause.WithInvalidArgs("mluukkai")
	assert.Equal(t, "mluukkai", withArgs.InvalidArgs)
	assert.Nil(t, withCause.InvalidArgs)
	assert.Same(t, withCause.Cause(), withArgs.Cause())
	assert.Equal(t, base.Details, withArgs.Details)
}

func TestKind_HTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindInputValidation, http.StatusBadRequest},
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindNotFound, http.StatusNotFound},
		{KindStoreQueryFailed, http.StatusInternalServerError},
		{KindBatchFailed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.HTTPStatus())
		})
	}
}
