package util

import (
	"context"
	"time"
)

const maxBackoff = 30 * time.Second

// Retry runs fn up to max+1 times with doubling backoff. It is used for
// startup-time operations like dialing the node; the submission poll
// loop has its own fixed-interval schedule and never calls this.
func Retry(ctx context.Context, max int, backoff time.Duration, fn func() error) error {
	var err error
	for attempt := 0; attempt <= max; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = fn()
		if err == nil {
			return nil
		}
		if attempt == max {
			break
		}
		wait := backoff * time.Duration(1<<attempt)
		if wait > maxBackoff {
			wait = maxBackoff
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}
