package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Compile-time assertion that Terminal implements Notifier.
var _ Notifier = (*Terminal)(nil)

// Terminal writes notifications as text lines to an [io.Writer], typically
// os.Stdout. Multi-line messages are indented under the title.
type Terminal struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTerminal returns a Terminal writing to w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

// Notify implements [Notifier].
func (t *Terminal) Notify(_ context.Context, n Notification) error {
	var b strings.Builder
	prefix := "*"
	if n.Level == LevelError {
		prefix = "!"
	}
	fmt.Fprintf(&b, "%s %s", prefix, n.Title)
	if n.Message != "" {
		if strings.Contains(n.Message, "\n") {
			b.WriteString(":\n")
			for line := range strings.SplitSeq(n.Message, "\n") {
				b.WriteString("    ")
				b.WriteString(line)
				b.WriteByte('\n')
			}
		} else {
			b.WriteString(": ")
			b.WriteString(n.Message)
			b.WriteByte('\n')
		}
	} else {
		b.WriteByte('\n')
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		return fmt.Errorf("notify: terminal write: %w", err)
	}
	return nil
}
