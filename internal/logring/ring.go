// Package logring keeps each process's recent output in a bounded in-memory
// ring so readiness checks can match on log lines and operators can tail a
// process without touching the rotated files on disk.
package logring

import (
	"strings"
	"sync"
	"time"
)

// DefaultCapacity is the per-process line budget when the config leaves it unset.
const DefaultCapacity = 1000

// Line is one captured output line.
type Line struct {
	Text string
	At   time.Time
}

// Buffer is a bounded append-only line ring. Oldest lines are dropped once
// capacity is reached. It implements io.Writer so it can sit directly on a
// process's stdout/stderr; partial writes are accumulated until a newline.
type Buffer struct {
	mu      sync.Mutex
	lines   []Line
	start   int
	count   int
	partial strings.Builder
	subs    map[int]chan Line
	nextSub int
	closed  bool
}

// New creates a Buffer holding up to capacity lines.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		lines: make([]Line, capacity),
		subs:  make(map[int]chan Line),
	}
}

// Write splits p into lines and appends them to the ring. It never fails;
// a capture buffer must not be able to break the supervised process.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range string(p) {
		if c == '\n' {
			b.appendLocked(b.partial.String())
			b.partial.Reset()
			continue
		}
		b.partial.WriteRune(c)
	}
	return len(p), nil
}

func (b *Buffer) appendLocked(text string) {
	ln := Line{Text: text, At: time.Now()}
	idx := (b.start + b.count) % len(b.lines)
	if b.count == len(b.lines) {
		b.start = (b.start + 1) % len(b.lines)
		b.lines[idx] = ln
	} else {
		b.lines[idx] = ln
		b.count++
	}
	for _, ch := range b.subs {
		select {
		case ch <- ln:
		default: // slow subscriber; drop rather than block capture
		}
	}
}

// Flush appends any buffered partial line. Called when the process exits so
// a final unterminated line is not lost.
func (b *Buffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.partial.Len() > 0 {
		b.appendLocked(b.partial.String())
		b.partial.Reset()
	}
}

// Tail returns up to n most recent lines, oldest first. n <= 0 returns all
// retained lines.
func (b *Buffer) Tail(n int) []Line {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > b.count {
		n = b.count
	}
	out := make([]Line, 0, n)
	for i := b.count - n; i < b.count; i++ {
		out = append(out, b.lines[(b.start+i)%len(b.lines)])
	}
	return out
}

// Len returns the number of retained lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Subscribe returns a channel receiving lines appended after the call, plus
// a snapshot of the lines already retained, and a cancel func. The channel
// is buffered; lines are dropped for subscribers that fall behind.
func (b *Buffer) Subscribe() ([]Line, <-chan Line, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	snapshot := make([]Line, 0, b.count)
	for i := 0; i < b.count; i++ {
		snapshot = append(snapshot, b.lines[(b.start+i)%len(b.lines)])
	}
	if b.closed {
		ch := make(chan Line)
		close(ch)
		return snapshot, ch, func() {}
	}
	id := b.nextSub
	b.nextSub++
	ch := make(chan Line, 64)
	b.subs[id] = ch
	cancel := func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
	return snapshot, ch, cancel
}

// Close flushes the partial line and closes all subscriber channels.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if b.partial.Len() > 0 {
		b.appendLocked(b.partial.String())
		b.partial.Reset()
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
