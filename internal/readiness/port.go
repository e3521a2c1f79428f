package readiness

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// PortCheck polls a TCP address until a connection succeeds. It only proves
// something is listening; the supervisor never speaks the protocol behind
// the port.
type PortCheck struct {
	Host     string
	Port     int
	Interval time.Duration
	Timeout  time.Duration
}

func (p *PortCheck) Describe() string {
	return fmt.Sprintf("port %s open", net.JoinHostPort(p.Host, strconv.Itoa(p.Port)))
}

func (p *PortCheck) Wait(ctx context.Context) error {
	addr := net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	deadline := time.Now().Add(p.Timeout)
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		d := net.Dialer{Timeout: p.Interval}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrTimeout, p.Describe())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
