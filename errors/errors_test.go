package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsTrace(t *testing.T) {
	tcs := []struct {
		name     string
		err      *Err
		expected string
	}{
		{
			name:     "ErrWithoutCause",
			err:      NewNotFound("record not found"),
			expected: "record not found",
		},
		{
			name: "ErrWithCauses",
			err: &Err{
				msg: "foo",
				cause: &Err{
					msg:   "bar",
					cause: &Err{msg: "qux"},
				},
			},
			expected: "foo\n\tCaused by: bar\n\t\tCaused by: qux",
		},
		{
			name:     "ErrWithForeignCause",
			err:      NewServiceFailure("error saving record").WithCause(fmt.Errorf("connection reset")),
			expected: "error saving record\n\tCaused by: connection reset",
		},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			actual := c.err.Trace()
			assert.Equal(t, c.expected, actual, "unexpected error trace")
		})
	}
}

func TestErrorsStatusCode(t *testing.T) {
	tcs := []struct {
		err          *Err
		expectedCode int
	}{
		{err: NewServiceFailure("fake"), expectedCode: http.StatusInternalServerError},
		{err: NewNotFound("fake"), expectedCode: http.StatusNotFound},
		{err: NewExpired("fake"), expectedCode: http.StatusGone},
		{err: NewBadInput("fake"), expectedCode: http.StatusBadRequest},
		{err: NewUnauthorized("fake"), expectedCode: http.StatusUnauthorized},
		{err: NewForbidden("fake"), expectedCode: http.StatusForbidden},
		{err: NewExisted("fake"), expectedCode: http.StatusConflict},
		{err: NewOversized("fake"), expectedCode: http.StatusRequestEntityTooLarge},
		{err: NewDecryptionFailed("fake"), expectedCode: http.StatusUnprocessableEntity},
		{err: NewConfig("fake"), expectedCode: http.StatusInternalServerError},
	}
	for _, c := range tcs {
		code := c.err.StatusCode()
		assert.Equal(t, c.expectedCode, code, "unexpected status code for %s", c.err.Code)
	}
}

func TestErrorsIs(t *testing.T) {
	wrapped := fmt.Errorf("lookup: %w", NewExpired("share link expired"))
	assert.True(t, Is(wrapped, ErrCodeExpired))
	assert.False(t, Is(wrapped, ErrCodeNotFound))
	assert.False(t, Is(fmt.Errorf("plain"), ErrCodeExpired))
	assert.False(t, Is(nil, ErrCodeExpired))
}
