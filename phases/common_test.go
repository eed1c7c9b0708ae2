package phases

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/vellum/ai"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy(t *testing.T) {
	policy := newRetryPolicy(3, time.Millisecond)

	t.Run("transient errors are retried", func(t *testing.T) {
		calls := 0
		err := policy.do(context.Background(), func() error {
			calls++
			return errors.New("connection reset")
		})
		assert.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("malformed replies fail at once", func(t *testing.T) {
		calls := 0
		err := policy.do(context.Background(), func() error {
			calls++
			return fmt.Errorf("%w after 3 attempts: bad json", ai.ErrMalformedResponse)
		})
		assert.ErrorIs(t, err, ai.ErrMalformedResponse)
		assert.Equal(t, 1, calls)
	})

	t.Run("unknown categories fail at once", func(t *testing.T) {
		calls := 0
		err := policy.do(context.Background(), func() error {
			calls++
			return ai.ErrUnknownCategory
		})
		assert.ErrorIs(t, err, ai.ErrUnknownCategory)
		assert.Equal(t, 1, calls)
	})

	t.Run("defaults", func(t *testing.T) {
		p := newRetryPolicy(0, 0)
		assert.Equal(t, DefaultRetryAttempts, p.attempts)
		assert.Equal(t, DefaultRetryDelay, p.delay)
	})
}
