package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "favsync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantBackoff(t *testing.T) {
	b := &ConstantBackoff{Delay: 250 * time.Millisecond}
	assert.Equal(t, time.Duration(0), b.NextDelay(0))
	assert.Equal(t, 250*time.Millisecond, b.NextDelay(1))
	assert.Equal(t, 250*time.Millisecond, b.NextDelay(7))
}

func TestRetryWithSuccess(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}, Constant(5, time.Millisecond, nil))

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	var retried []int
	cfg := Constant(3, time.Millisecond, nil)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		retried = append(retried, attempt)
	}

	err := Do(context.Background(), func() error {
		attempts++
		return errors.New("persistent error")
	}, cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Contains(t, err.Error(), "persistent error")
	assert.Equal(t, 3, attempts)
	// no sleep after the final attempt
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetryWithNonRetryableError(t *testing.T) {
	attempts := 0
	authError := errs.New(errs.ErrorTypeAuth, 401, "authentication required")

	err := Do(context.Background(), func() error {
		attempts++
		return authError
	}, Constant(5, time.Millisecond, nil))

	assert.Same(t, authError, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	err := Do(ctx, func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	}, Constant(5, 50*time.Millisecond, nil))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts)
}

func TestDefaultRetryIf(t *testing.T) {
	assert.False(t, DefaultRetryIf(nil))
	assert.False(t, DefaultRetryIf(context.Canceled))
	assert.False(t, DefaultRetryIf(errs.New(errs.ErrorTypeNotFound, 404, "gone")))
	assert.True(t, DefaultRetryIf(errs.New(errs.ErrorTypeServerError, 502, "bad gateway")))
	assert.True(t, DefaultRetryIf(errs.Wrap(errs.ErrorTypeNetwork, "dial", errors.New("reset"))))
	assert.True(t, DefaultRetryIf(errors.New("short write")))
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	result, err := DoWithResult(context.Background(), func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("temporary error")
		}
		return "success", nil
	}, Constant(3, time.Millisecond, nil))

	require.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, 2, attempts)
}

func TestWaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Wait(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
