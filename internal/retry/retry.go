// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package retry runs fallible operations multiple times.
package retry

import (
	"context"
	"time"
)

// Run calls function up to attempts times, sleeping for sleep between
// attempts, until it succeeds. The last failure's error is returned.
func Run(function func() error, attempts int, sleep time.Duration) (err error) {
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(sleep)
		}

		err = function()
		if err == nil {
			return nil
		}
	}
	return err
}

// RunWithExpBackoff calls function up to attempts times, multiplying the
// sleep duration by expFactor after every failed attempt. Returns whether
// the context was cancelled before the function succeeded.
func RunWithExpBackoff(ctx context.Context, function func() error, attempts int, sleep time.Duration,
	expFactor float64,
) (cancelled bool, err error) {
	delay := sleep
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return true, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * expFactor)
		}

		err = function()
		if err == nil {
			return false, nil
		}
	}
	return false, err
}
