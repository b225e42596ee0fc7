package notify

import (
	"context"
	"fmt"

	"github.com/gen2brain/beeep"
)

// Compile-time assertion that Desktop implements Notifier.
var _ Notifier = (*Desktop)(nil)

// Desktop shows notifications through the operating system's notification
// centre. Errors are raised as alerts, which also play the system sound.
type Desktop struct {
	// AppName prefixes the title. Defaults to "nap".
	AppName string

	// Icon is an optional path to an icon file.
	Icon string

	notify func(title, message, icon string) error
	alert  func(title, message, icon string) error
}

// NewDesktop returns a Desktop notifier.
func NewDesktop(appName, icon string) *Desktop {
	if appName == "" {
		appName = "nap"
	}
	return &Desktop{
		AppName: appName,
		Icon:    icon,
		notify:  func(t, m, i string) error { return beeep.Notify(t, m, i) },
		alert:   func(t, m, i string) error { return beeep.Alert(t, m, i) },
	}
}

// Notify implements [Notifier].
func (d *Desktop) Notify(_ context.Context, n Notification) error {
	title := d.AppName
	if n.Title != "" {
		title = d.AppName + ": " + n.Title
	}
	show := d.notify
	if n.Level == LevelError {
		show = d.alert
	}
	if err := show(title, n.Message, d.Icon); err != nil {
		return fmt.Errorf("notify: desktop: %w", err)
	}
	return nil
}
