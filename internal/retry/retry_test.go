package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixed_SucceedsEventually(t *testing.T) {
	attempts := 0
	err := Fixed(context.Background(), 5, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestFixed_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Fixed(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		return errors.New("always fails")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestFixed_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Fixed(ctx, 5, 10*time.Millisecond, func() error {
		attempts++
		return errors.New("fails")
	})
	assert.Error(t, err)
	assert.LessOrEqual(t, attempts, 2)
}
