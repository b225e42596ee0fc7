package notify

import (
	"context"
	"log/slog"

	"github.com/atotto/clipboard"
)

// clipboardNotifier copies copyable notifications to the system clipboard
// before forwarding them.
type clipboardNotifier struct {
	next  Notifier
	write func(string) error
}

// WithClipboard wraps next so that notifications marked Copyable also land on
// the system clipboard. Clipboard failures are logged and never block the
// notification.
func WithClipboard(next Notifier) Notifier {
	return &clipboardNotifier{next: next, write: clipboard.WriteAll}
}

func (c *clipboardNotifier) Notify(ctx context.Context, n Notification) error {
	if n.Copyable && n.Message != "" {
		if err := c.write(n.Message); err != nil {
			slog.Warn("notify: copy to clipboard failed", "err", err)
		}
	}
	return c.next.Notify(ctx, n)
}
