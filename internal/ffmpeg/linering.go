// SPDX-License-Identifier: MIT

package ffmpeg

import (
	"strings"
	"sync"
)

// LineRing is a thread-safe ring buffer holding the last N lines of
// encoder stderr, so long-running failures keep their most recent (and
// most diagnostic) output without unbounded growth.
type LineRing struct {
	mu    sync.RWMutex
	lines []string
	head  int
	size  int
	count int
}

// NewLineRing creates a LineRing with the given capacity.
func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 64
	}
	return &LineRing{
		lines: make([]string, capacity),
		size:  capacity,
	}
}

// Append records one line, evicting the oldest when full.
func (r *LineRing) Append(line string) {
	if line == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.head] = line
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// String joins the retained lines in chronological order.
func (r *LineRing) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, r.count)
	start := (r.head - r.count + r.size) % r.size
	for i := 0; i < r.count; i++ {
		out = append(out, r.lines[(start+i)%r.size])
	}
	return strings.Join(out, "\n")
}
