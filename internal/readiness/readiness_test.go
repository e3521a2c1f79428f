package readiness

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/deskd/internal/logring"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		expectErr bool
	}{
		{name: "port ok", cfg: Config{Type: TypePort, Port: 5900}},
		{name: "port zero", cfg: Config{Type: TypePort}, expectErr: true},
		{name: "port out of range", cfg: Config{Type: TypePort, Port: 70000}, expectErr: true},
		{name: "log ok", cfg: Config{Type: TypeLog, Pattern: "ready"}},
		{name: "log missing pattern", cfg: Config{Type: TypeLog}, expectErr: true},
		{name: "log bad regexp", cfg: Config{Type: TypeLog, Pattern: "("}, expectErr: true},
		{name: "delay ok", cfg: Config{Type: TypeDelay, Delay: time.Second}},
		{name: "delay zero", cfg: Config{Type: TypeDelay}, expectErr: true},
		{name: "missing type", cfg: Config{}, expectErr: true},
		{name: "unknown type", cfg: Config{Type: "http"}, expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_EffectiveTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, Config{Type: TypePort, Port: 1}.EffectiveTimeout())
	assert.Equal(t, 5*time.Second, Config{Type: TypePort, Port: 1, Timeout: 5 * time.Second}.EffectiveTimeout())
	// a delay check is bounded by the delay itself
	assert.Equal(t, 3*time.Second, Config{Type: TypeDelay, Delay: 3 * time.Second}.EffectiveTimeout())
}

func TestBuild(t *testing.T) {
	ring := logring.New(10)

	c, err := Config{Type: TypePort, Port: 5900}.Build(ring)
	require.NoError(t, err)
	require.IsType(t, &PortCheck{}, c)
	pc := c.(*PortCheck)
	assert.Equal(t, "127.0.0.1", pc.Host)
	assert.Equal(t, DefaultInterval, pc.Interval)

	c, err = Config{Type: TypeLog, Pattern: "listening"}.Build(ring)
	require.NoError(t, err)
	require.IsType(t, &LogCheck{}, c)

	c, err = Config{Type: TypeDelay, Delay: time.Millisecond}.Build(nil)
	require.NoError(t, err)
	require.IsType(t, &DelayCheck{}, c)

	_, err = Config{}.Build(ring)
	assert.Error(t, err)
}

func TestPortCheck_Succeeds(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	c := &PortCheck{Host: "127.0.0.1", Port: port, Interval: 10 * time.Millisecond, Timeout: 2 * time.Second}
	require.NoError(t, c.Wait(context.Background()))
}

func TestPortCheck_SucceedsOnceListenerAppears(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	go func() {
		time.Sleep(50 * time.Millisecond)
		l2, lerr := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if lerr == nil {
			time.Sleep(500 * time.Millisecond)
			_ = l2.Close()
		}
	}()

	c := &PortCheck{Host: "127.0.0.1", Port: port, Interval: 10 * time.Millisecond, Timeout: 2 * time.Second}
	assert.NoError(t, c.Wait(context.Background()))
}

func TestPortCheck_TimesOut(t *testing.T) {
	// grab a port and close it so nothing is listening
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	c := &PortCheck{Host: "127.0.0.1", Port: port, Interval: 10 * time.Millisecond, Timeout: 50 * time.Millisecond}
	err = c.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout), "expected ErrTimeout, got %v", err)
}

func TestPortCheck_CanceledContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	c := &PortCheck{Host: "127.0.0.1", Port: port, Interval: 10 * time.Millisecond, Timeout: 10 * time.Second}
	err = c.Wait(ctx)
	assert.True(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)
}
