package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bookhaven/book-lending-go/lending"
	"github.com/bookhaven/book-lending-go/service"
)

func Test_RetryOnStoreUnavailable_Succeeds_WithoutRetries(t *testing.T) {
	// arrange
	ctx := context.Background()
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		return nil
	}

	// act
	err := service.RetryOnStoreUnavailable(ctx, fn)

	// assert
	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func Test_RetryOnStoreUnavailable_Retries_WhenStoreUnavailable(t *testing.T) {
	// arrange
	ctx := context.Background()
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		if callCount < 3 {
			return errors.Join(lending.ErrStoreUnavailable, fmt.Errorf("connection refused"))
		}
		return nil
	}

	// act
	err := service.RetryOnStoreUnavailable(ctx, fn, service.WithBaseDelay(time.Millisecond))

	// assert
	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func Test_RetryOnStoreUnavailable_FailsFast_OnBusinessErrors(t *testing.T) {
	// arrange
	ctx := context.Background()
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		return lending.ErrBookUnavailable
	}

	// act
	err := service.RetryOnStoreUnavailable(ctx, fn)

	// assert
	assert.ErrorIs(t, err, lending.ErrBookUnavailable)
	assert.Equal(t, 1, callCount)
}

func Test_RetryOnStoreUnavailable_GivesUp_AfterMaxAttempts(t *testing.T) {
	// arrange
	ctx := context.Background()
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		return errors.Join(lending.ErrStoreUnavailable, fmt.Errorf("still down"))
	}

	// act
	err := service.RetryOnStoreUnavailable(ctx, fn,
		service.WithMaxAttempts(4),
		service.WithBaseDelay(time.Millisecond),
		service.WithJitterFactor(0.1),
	)

	// assert
	assert.ErrorIs(t, err, lending.ErrStoreUnavailable)
	assert.Equal(t, 4, callCount)
}

func Test_RetryOnStoreUnavailable_RejectsInvalidOptions(t *testing.T) {
	// arrange
	ctx := context.Background()
	fn := func(_ context.Context) error { return nil }

	// act + assert
	err := service.RetryOnStoreUnavailable(ctx, fn, service.WithMaxAttempts(0))
	assert.ErrorIs(t, err, service.ErrInvalidMaxAttempts)

	err = service.RetryOnStoreUnavailable(ctx, fn, service.WithBaseDelay(-time.Second))
	assert.ErrorIs(t, err, service.ErrNegativeBaseDelay)

	err = service.RetryOnStoreUnavailable(ctx, fn, service.WithJitterFactor(1.5))
	assert.ErrorIs(t, err, service.ErrInvalidJitterFactor)
}

func Test_RetryOnStoreUnavailable_Stops_WhenContextCancelled(t *testing.T) {
	// arrange
	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		cancel()
		return errors.Join(lending.ErrStoreUnavailable, fmt.Errorf("down"))
	}

	// act
	err := service.RetryOnStoreUnavailable(ctx, fn, service.WithBaseDelay(50*time.Millisecond))

	// assert
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, callCount)
}
