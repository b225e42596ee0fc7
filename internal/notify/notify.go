// Package notify delivers one-shot user-facing notifications.
//
// Every action of the recorder (toggle, send, playback) ends in exactly one
// [Notification]. Backends are a plain terminal writer and desktop
// notifications; [WithClipboard] decorates any backend so that server
// responses are also copied to the system clipboard.
package notify

import "context"

// Level is the severity of a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is one message for the user.
type Notification struct {
	Level   Level
	Title   string
	Message string

	// Copyable marks messages worth putting on the clipboard (server
	// responses). Only honoured by [WithClipboard].
	Copyable bool
}

// Notifier shows notifications to the user. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Info builds an informational notification.
func Info(title, message string) Notification {
	return Notification{Level: LevelInfo, Title: title, Message: message}
}

// Error builds an error notification.
func Error(title, message string) Notification {
	return Notification{Level: LevelError, Title: title, Message: message}
}
