package readiness

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/quantfold/deskd/internal/logring"
)

// LogCheck waits until a line matching Pattern appears in the process's
// capture ring. Lines written before the check attached are also considered,
// so a fast process cannot race past its own readiness banner.
type LogCheck struct {
	Ring    *logring.Buffer
	Pattern *regexp.Regexp
	Timeout time.Duration
}

func (l *LogCheck) Describe() string {
	return fmt.Sprintf("log line matching %q", l.Pattern.String())
}

func (l *LogCheck) Wait(ctx context.Context) error {
	snapshot, ch, cancel := l.Ring.Subscribe()
	defer cancel()
	for _, ln := range snapshot {
		if l.Pattern.MatchString(ln.Text) {
			return nil
		}
	}
	timer := time.NewTimer(l.Timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("%w: %s", ErrTimeout, l.Describe())
		case ln, ok := <-ch:
			if !ok {
				// capture closed: the process exited before matching
				return fmt.Errorf("%w: %s", ErrTimeout, l.Describe())
			}
			if l.Pattern.MatchString(ln.Text) {
				return nil
			}
		}
	}
}
