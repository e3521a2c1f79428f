// Package readiness decides when a started process is usable by its
// dependents. A spec declares exactly one check: a TCP port probe, a pattern
// match on the captured output, or a fixed settle delay.
package readiness

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/quantfold/deskd/internal/logring"
)

// Check blocks until the process is considered ready, the check times out,
// or ctx is canceled. Implementations must be safe to run in their own
// goroutine.
type Check interface {
	Wait(ctx context.Context) error
	Describe() string
}

// Check type names accepted in config.
const (
	TypePort  = "port"
	TypeLog   = "log"
	TypeDelay = "delay"
)

// Defaults applied when the config leaves probe tuning unset.
const (
	DefaultInterval = 200 * time.Millisecond
	DefaultTimeout  = 30 * time.Second
)

// ErrTimeout is returned by checks that give up; the supervisor maps it to
// the per-process readiness failure path.
var ErrTimeout = fmt.Errorf("readiness check timed out")

// Config is the declarative readiness block of a process spec.
type Config struct {
	Type     string        `json:"type" mapstructure:"type"`
	Host     string        `json:"host" mapstructure:"host"`         // port probe target, default 127.0.0.1
	Port     int           `json:"port" mapstructure:"port"`         // port probe target port
	Pattern  string        `json:"pattern" mapstructure:"pattern"`   // log match regexp
	Delay    time.Duration `json:"delay" mapstructure:"delay"`       // settle delay
	Interval time.Duration `json:"interval" mapstructure:"interval"` // port probe poll interval
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`   // port/log overall timeout
}

// Validate checks the block declares exactly one well-formed check type.
func (c Config) Validate() error {
	switch c.Type {
	case TypePort:
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("readiness port probe requires port in 1..65535, got %d", c.Port)
		}
	case TypeLog:
		if c.Pattern == "" {
			return fmt.Errorf("readiness log match requires pattern")
		}
		if _, err := regexp.Compile(c.Pattern); err != nil {
			return fmt.Errorf("readiness pattern: %w", err)
		}
	case TypeDelay:
		if c.Delay <= 0 {
			return fmt.Errorf("readiness delay requires positive delay")
		}
	case "":
		return fmt.Errorf("readiness requires type (port, log, or delay)")
	default:
		return fmt.Errorf("unknown readiness type %q", c.Type)
	}
	return nil
}

// EffectiveTimeout returns the configured timeout or the default. Delay
// checks have no separate timeout; the delay itself bounds them.
func (c Config) EffectiveTimeout() time.Duration {
	if c.Type == TypeDelay {
		return c.Delay
	}
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// Build constructs the Check for this config. The capture ring is required
// for log matching and ignored otherwise.
func (c Config) Build(ring *logring.Buffer) (Check, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Type {
	case TypePort:
		host := c.Host
		if host == "" {
			host = "127.0.0.1"
		}
		interval := c.Interval
		if interval <= 0 {
			interval = DefaultInterval
		}
		return &PortCheck{Host: host, Port: c.Port, Interval: interval, Timeout: c.EffectiveTimeout()}, nil
	case TypeLog:
		re := regexp.MustCompile(c.Pattern)
		return &LogCheck{Ring: ring, Pattern: re, Timeout: c.EffectiveTimeout()}, nil
	default:
		return &DelayCheck{Delay: c.Delay}, nil
	}
}
