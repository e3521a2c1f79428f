package readiness

import (
	"context"
	"fmt"
	"time"
)

// DelayCheck treats the process as ready after a fixed settle time. Used for
// processes with no probeable surface, like the Wine-hosted terminal.
type DelayCheck struct {
	Delay time.Duration
}

func (d *DelayCheck) Describe() string {
	return fmt.Sprintf("settle delay %s", d.Delay)
}

func (d *DelayCheck) Wait(ctx context.Context) error {
	timer := time.NewTimer(d.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
