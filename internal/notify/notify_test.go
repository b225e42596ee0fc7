package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestTerminal_Notify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		n    Notification
		want string
	}{
		{"info", Info("Recording started", ""), "* Recording started\n"},
		{"error", Error("Upload failed", "connection refused"), "! Upload failed: connection refused\n"},
		{"multiline", Info("Server Response", "confidence: 0.9\nlabel: yes"),
			"* Server Response:\n    confidence: 0.9\n    label: yes\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			if err := NewTerminal(&buf).Notify(context.Background(), tt.n); err != nil {
				t.Fatalf("Notify: %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestDesktop_ErrorsUseAlert(t *testing.T) {
	t.Parallel()

	var notified, alerted []string
	d := NewDesktop("", "")
	d.notify = func(title, _, _ string) error { notified = append(notified, title); return nil }
	d.alert = func(title, _, _ string) error { alerted = append(alerted, title); return nil }

	ctx := context.Background()
	_ = d.Notify(ctx, Info("Recording started", ""))
	_ = d.Notify(ctx, Error("Upload failed", "boom"))

	if len(notified) != 1 || notified[0] != "nap: Recording started" {
		t.Errorf("notified = %v", notified)
	}
	if len(alerted) != 1 || alerted[0] != "nap: Upload failed" {
		t.Errorf("alerted = %v", alerted)
	}
}

func TestDesktop_WrapsBackendError(t *testing.T) {
	t.Parallel()

	backendErr := errors.New("dbus unavailable")
	d := NewDesktop("nap", "")
	d.notify = func(_, _, _ string) error { return backendErr }

	if err := d.Notify(context.Background(), Info("x", "")); !errors.Is(err, backendErr) {
		t.Errorf("err = %v, want wrapped backend error", err)
	}
}

type recorder struct{ got []Notification }

func (r *recorder) Notify(_ context.Context, n Notification) error {
	r.got = append(r.got, n)
	return nil
}

func TestWithClipboard_CopiesOnlyCopyable(t *testing.T) {
	t.Parallel()

	next := &recorder{}
	var copied []string
	c := &clipboardNotifier{next: next, write: func(s string) error {
		copied = append(copied, s)
		return nil
	}}

	ctx := context.Background()
	_ = c.Notify(ctx, Info("Recording started", ""))
	resp := Info("Server Response", "label: yes")
	resp.Copyable = true
	_ = c.Notify(ctx, resp)

	if len(copied) != 1 || copied[0] != "label: yes" {
		t.Errorf("copied = %v, want [label: yes]", copied)
	}
	if len(next.got) != 2 {
		t.Errorf("forwarded %d notifications, want 2", len(next.got))
	}
}

func TestWithClipboard_FailureStillNotifies(t *testing.T) {
	t.Parallel()

	next := &recorder{}
	c := &clipboardNotifier{next: next, write: func(string) error { return errors.New("no xclip") }}
	n := Info("Server Response", "label: yes")
	n.Copyable = true
	if err := c.Notify(context.Background(), n); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(next.got) != 1 {
		t.Errorf("forwarded %d notifications, want 1", len(next.got))
	}
}
