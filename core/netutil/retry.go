package netutil

import (
	"errors"
	"net"
	"net/url"
)

// ShouldRetry reports whether an outbound HTTP failure looks transient.
// Dial failures and timeouts are retried; everything else is surfaced to the
// caller.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		if urlErr.Err != nil {
			err = urlErr.Err
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && (netErr.Timeout() || netErr.Temporary())
}
