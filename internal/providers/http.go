package providers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

const defaultRequestTimeout = 15 * time.Second

// NewHTTPClient returns the client handed to a provider SDK. Each request,
// body read included, is bounded by timeout; base's transport is reused when
// given.
func NewHTTPClient(timeout time.Duration, base *http.Client) *http.Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	client := &http.Client{Timeout: timeout}
	if base != nil {
		client.Transport = base.Transport
		client.Jar = base.Jar
		client.CheckRedirect = base.CheckRedirect
	}
	return client
}

// TimedOut reports whether err is an exceeded deadline or a network timeout.
func TimedOut(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
