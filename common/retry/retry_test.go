package retry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type testErrRetryable struct {
}

func (e testErrRetryable) Error() string {
	return "retryable err"
}

func TestRetry(t *testing.T) {
	retryable, nonRetryable := testErrRetryable{}, fmt.Errorf("non-retryable")
	f := func(count *int, errs []error) error {
		cnt := *count
		// to prove the function logic is actually executed
		*count = cnt + 1
		return errs[cnt]
	}
	retryOn := func(e error) bool {
		_, ok := e.(testErrRetryable)
		return ok
	}
	tcs := []struct {
		name     string
		errs     []error
		strategy []RetryOption
		expected int
	}{
		{
			name:     "no retry",
			errs:     []error{nil},
			expected: 1,
		},
		{
			name: "retry with max attempt",
			errs: []error{
				retryable,
				retryable,
				retryable,
				retryable,
			},
			expected: 3,
			strategy: []RetryOption{
				WithMaxAttempts(2),
				WithRetryOn(retryOn),
			},
		},
		{
			name: "retryOn",
			errs: []error{
				retryable,
				retryable,
				nonRetryable,
				retryable,
				retryable,
			},
			expected: 3,
			strategy: []RetryOption{
				WithMaxAttempts(10),
				WithRetryOn(retryOn),
			},
		},
		{
			name: "exponential backoff",
			errs: []error{
				retryable,
				retryable,
				nil,
			},
			expected: 3,
			strategy: []RetryOption{
				WithBaseDelay(time.Millisecond),
				WithExp(2.0),
				WithMaxBackoff(5 * time.Millisecond),
				WithRetryOn(retryOn),
			},
		},
	}

	for _, c := range tcs {
		errs, strategy, exp := c.errs, c.strategy, c.expected
		t.Run(c.name, func(*testing.T) {
			actual := 0
			Retry(
				func() error {
					// f can also return result besides values as long as we refer to
					// the result with pointer so that it won't get lost
					return f(&actual, errs)
				},
				strategy...,
			)
			if actual != exp {
				t.Errorf("expected %d for %v and %v but got %d", exp, errs, strategy, actual)
			}
		})
	}
}

func TestRetryTimeout(t *testing.T) {
	err := Retry(
		func() error { return testErrRetryable{} },
		WithBaseDelay(time.Hour),
		WithTimeout(10*time.Millisecond),
		WithRetryOn(func(error) bool { return true }),
	)
	assert.Equal(t, ErrRetryTimedOut, err)
}

func TestRetryDelay(t *testing.T) {
	cfg := DefaultRetryConfig()
	WithBaseDelay(100 * time.Millisecond)(cfg)
	WithExp(2.0)(cfg)
	WithMaxBackoff(time.Second)(cfg)
	assert.Equal(t, 100*time.Millisecond, cfg.delay(0))
	assert.Equal(t, 400*time.Millisecond, cfg.delay(2))
	assert.Equal(t, time.Second, cfg.delay(10), "delay must be capped by max backoff")
}

func TestIsDepOffline(t *testing.T) {
	assert.True(t, IsDepOffline(fmt.Errorf("dial tcp 127.0.0.1:6379: connect: connection refused")))
	assert.True(t, IsDepOffline(fmt.Errorf("error initializing DB: %w", fmt.Errorf("dial tcp: connect: connection refused"))))
	assert.False(t, IsDepOffline(fmt.Errorf("i/o timeout")))
	assert.False(t, IsDepOffline(nil))
}
