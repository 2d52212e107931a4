package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanerRunsInReverseOrder(t *testing.T) {
	var order []string
	loggerDone := false
	c := NewCleaner(CallableFunc(func(context.Context) error {
		loggerDone = true
		return nil
	}))

	c.Add(CallableFunc(func(context.Context) error { order = append(order, "database"); return nil }))
	c.Add(CallableFunc(func(context.Context) error { order = append(order, "server"); return nil }))

	errs := c.Clean()
	assert.Empty(t, errs)
	assert.Equal(t, []string{"server", "database"}, order)
	assert.True(t, loggerDone)

	// second call is a no-op
	assert.Empty(t, c.Clean())
	assert.Len(t, order, 2)
}

func TestCleanerCollectsErrorsAndTimeouts(t *testing.T) {
	boom := errors.New("boom")
	c := NewCleaner(nil)
	c.SetTimeout(20 * time.Millisecond)
	c.Add(CallableFunc(func(context.Context) error { return boom }))
	c.Add(CallableFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	errs := c.Clean()
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], context.DeadlineExceeded)
	assert.ErrorIs(t, errs[1], boom)
}

func TestCleanerIgnoresAddAfterClean(t *testing.T) {
	c := NewCleaner(nil)
	c.Clean()
	called := false
	c.Add(CallableFunc(func(context.Context) error { called = true; return nil }))
	c.Clean()
	assert.False(t, called)
}
