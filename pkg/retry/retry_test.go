package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(tries uint) Policy {
	return Policy{MaxTries: tries, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestDo(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		got, err := Do(context.Background(), fastPolicy(5), nil, "op", func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("transient")
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops at max tries", func(t *testing.T) {
		calls := 0
		_, err := Do(context.Background(), fastPolicy(2), nil, "op", func(context.Context) (int, error) {
			calls++
			return 0, errors.New("down")
		})
		require.Error(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("permanent error is not retried and is unwrapped", func(t *testing.T) {
		sentinel := errors.New("bad request")
		calls := 0
		_, err := Do(context.Background(), fastPolicy(5), nil, "op", func(context.Context) (int, error) {
			calls++
			return 0, Permanent(sentinel)
		})
		assert.Equal(t, 1, calls)
		assert.Same(t, sentinel, err)
	})

	t.Run("no retry policy runs once", func(t *testing.T) {
		calls := 0
		_, _ = Do(context.Background(), NoRetry(), nil, "op", func(context.Context) (int, error) {
			calls++
			return 0, errors.New("x")
		})
		assert.Equal(t, 1, calls)
	})
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}
