// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Run(func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}, 5, time.Millisecond)

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRunReturnsLastError(t *testing.T) {
	failure := errors.New("always")
	calls := 0
	err := Run(func() error {
		calls++
		return failure
	}, 3, time.Millisecond)

	assert.ErrorIs(t, err, failure)
	assert.Equal(t, 3, calls)
}

func TestRunWithExpBackoffHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cancelled, err := RunWithExpBackoff(ctx, func() error {
		return errors.New("fail")
	}, 10, time.Millisecond, 2.0)

	assert.True(t, cancelled)
	assert.Error(t, err)
}
