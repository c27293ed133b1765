package retrier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errPermanent = errors.New("permanent")

func TestRetrier_Do(t *testing.T) {
	tests := []struct {
		name         string
		opts         []Option
		failUntil    int
		failWith     error
		wantAttempts int
		wantErr      bool
	}{
		{name: "first attempt succeeds", wantAttempts: 1},
		{
			name:         "succeeds after retries",
			opts:         []Option{WithMaxRetries(3), WithInitialInterval(time.Millisecond)},
			failUntil:    3,
			wantAttempts: 3,
		},
		{
			name:         "budget exhausted",
			opts:         []Option{WithMaxRetries(2), WithInitialInterval(time.Millisecond)},
			failUntil:    100,
			wantAttempts: 3,
			wantErr:      true,
		},
		{
			name: "predicate stops retrying",
			opts: []Option{
				WithMaxRetries(5),
				WithInitialInterval(time.Millisecond),
				WithRetryIf(func(err error) bool { return !errors.Is(err, errPermanent) }),
			},
			failUntil:    100,
			failWith:     errPermanent,
			wantAttempts: 1,
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := New(tt.opts...).Do(context.Background(), func(ctx context.Context) error {
				attempts++
				if attempts < tt.failUntil {
					if tt.failWith != nil {
						return tt.failWith
					}
					return errors.New("fail")
				}
				return nil
			})

			assert.Equal(t, tt.wantAttempts, attempts)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetrier_ContextCancellation(t *testing.T) {
	r := New(WithMaxRetries(5), WithInitialInterval(100*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := r.Do(ctx, func(ctx context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts)
}

func TestRetrier_OnRetry(t *testing.T) {
	var seen []int
	r := New(
		WithMaxRetries(2),
		WithInitialInterval(time.Millisecond),
		WithJitter(0),
		WithOnRetry(func(attempt int, wait time.Duration, err error) {
			seen = append(seen, attempt)
			assert.Error(t, err)
			assert.GreaterOrEqual(t, wait, time.Duration(0))
		}),
	)

	err := r.Do(context.Background(), func(ctx context.Context) error { return errors.New("down") })
	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestDoWithData(t *testing.T) {
	val, err := DoWithData(New(), context.Background(), func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)

	val, err = DoWithData(New(WithMaxRetries(1), WithInitialInterval(time.Millisecond)), context.Background(),
		func(ctx context.Context) (string, error) { return "", errors.New("fail") })
	assert.Error(t, err)
	assert.Empty(t, val)
}
