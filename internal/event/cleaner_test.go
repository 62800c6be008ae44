package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanerRunsNewestFirst(t *testing.T) {
	var order []int
	loggerClosed := false
	c := NewCleaner(CallableFunc(func(context.Context) error {
		loggerClosed = true
		return nil
	}))
	for i := 1; i <= 3; i++ {
		i := i
		c.Add(CallableFunc(func(ctx context.Context) error {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			order = append(order, i)
			return nil
		}))
	}

	require.NoError(t, c.Clean())
	assert.Equal(t, []int{3, 2, 1}, order)
	assert.True(t, loggerClosed)
}

func TestCleanerCollectsErrorsAndIgnoresLateAdds(t *testing.T) {
	boom := errors.New("boom")
	c := NewCleaner(nil)
	ran := 0
	c.Add(CallableFunc(func(context.Context) error { ran++; return boom }))
	c.Add(CallableFunc(func(context.Context) error { ran++; return nil }))

	err := c.Clean()
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, ran)

	c.Add(CallableFunc(func(context.Context) error { ran++; return nil }))
	require.NoError(t, c.Clean())
	assert.Equal(t, 2, ran)
}

func TestCleanerWaitReturnsOnContextCancel(t *testing.T) {
	c := NewCleaner(nil)
	called := make(chan struct{}, 1)
	c.Add(CallableFunc(func(context.Context) error {
		called <- struct{}{}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Wait(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after cancel")
	}
	<-called
}
