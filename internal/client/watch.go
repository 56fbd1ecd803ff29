package client

import (
	"context"
	"errors"
	"time"

	"github.com/desertthunder/drivecopy/internal/server"
	"github.com/desertthunder/drivecopy/internal/shared"
)

// Watch polls the job until it reaches a terminal state and calls fn with every snapshot.
//
// Polls run every poll interval. After a failed poll the next one waits the backoff interval
// and the regular cadence resumes after the next success. A job the server does not know is
// terminal: Watch returns an error wrapping [shared.ErrJobNotFound]. Cancelling ctx stops the loop.
func (c *Client) Watch(ctx context.Context, id string, fn func(*server.JobView)) (*server.JobView, error) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		view, err := c.Get(ctx, id)
		switch {
		case errors.Is(err, shared.ErrJobNotFound):
			return nil, err
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("poll failed, backing off", "job", id, "backoff", c.backoff, "err", err)
			timer.Reset(c.backoff)
			continue
		}

		if fn != nil {
			fn(view)
		}
		if view.Status.Terminal() {
			return view, nil
		}
		timer.Reset(c.interval)
	}
}
