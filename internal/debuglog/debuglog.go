// Package debuglog keeps a short in-memory trail of masking decisions for the
// debug endpoint.
//
// PRIVACY: entries are built from an event name and a source identifier only.
// There is no free-form message parameter, so notification content cannot end up here.
package debuglog

import (
	"fmt"
	"sync"
	"time"
)

// DefaultCapacity is the number of entries kept before the oldest is dropped.
const DefaultCapacity = 50

// Log is a fixed-size ring buffer. Safe for concurrent use.
// Lifetime is the process lifetime.
type Log struct {
	mu      sync.Mutex
	entries []string
	next    int
	full    bool
	now     func() time.Time
}

// New returns a log holding at most capacity entries.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		entries: make([]string, capacity),
		now:     time.Now,
	}
}

// Add records "[HH:MM:SS] <event>: <source>".
func (l *Log) Add(event, source string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = fmt.Sprintf("[%s] %s: %s", l.now().Format("15:04:05"), event, source)
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
}

// Entries returns all entries, oldest first.
func (l *Log) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.full {
		out := make([]string, l.next)
		copy(out, l.entries[:l.next])
		return out
	}
	out := make([]string, 0, len(l.entries))
	out = append(out, l.entries[l.next:]...)
	out = append(out, l.entries[:l.next]...)
	return out
}

// Clear removes all entries.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.entries {
		l.entries[i] = ""
	}
	l.next = 0
	l.full = false
}
