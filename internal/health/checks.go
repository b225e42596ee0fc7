package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Endpoint returns a checker that succeeds when a TCP connection to the host
// of the URL returned by endpoint can be opened. The URL is resolved on every
// check so hot-reloaded endpoints are probed.
func Endpoint(name string, endpoint func() string) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			u, err := url.Parse(endpoint())
			if err != nil {
				return fmt.Errorf("parse endpoint: %w", err)
			}
			if u.Host == "" {
				return errors.New("endpoint has no host")
			}
			host := u.Host
			if u.Port() == "" {
				port := "80"
				if u.Scheme == "https" {
					port = "443"
				}
				host = net.JoinHostPort(u.Hostname(), port)
			}
			var d net.Dialer
			conn, err := d.DialContext(ctx, "tcp", host)
			if err != nil {
				return err
			}
			return conn.Close()
		},
	}
}

// NotNil returns a checker that fails with msg when v reports false. It is
// used for wiring checks such as "a capture source is configured".
func NotNil(name string, ok func() bool, msg string) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if !ok() {
				return errors.New(msg)
			}
			return nil
		},
	}
}
