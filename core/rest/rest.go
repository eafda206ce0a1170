package rest

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

var (
	// ErrUnavailable marks transient remote failures: connectivity errors,
	// timeouts and 5xx responses. Callers may retry a run later.
	ErrUnavailable = errors.New("remote service unavailable")
	// ErrUnauthorized marks credential rejection by the remote service.
	// It is fatal for the affected tenant's current run.
	ErrUnauthorized = errors.New("remote credentials rejected")
)

// HTTPError carries the status code of a failed remote call.
type HTTPError struct {
	Code int
}

func (e HTTPError) Error() string {
	return fmt.Sprintf("remote returned status %d %s", e.Code, http.StatusText(e.Code))
}

// Unwrap maps the status code onto the remote error taxonomy so that
// callers can branch with errors.Is.
func (e HTTPError) Unwrap() error {
	switch {
	case e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden:
		return ErrUnauthorized
	case e.Code >= 500:
		return ErrUnavailable
	default:
		return nil
	}
}

// WrapTransport classifies a transport-level error (dial failure, timeout)
// as ErrUnavailable while preserving the original message.
func WrapTransport(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: request timed out: %s", ErrUnavailable, netErr)
	}
	return fmt.Errorf("%w: %s", ErrUnavailable, err)
}

// NewClient returns an outbound HTTP client with connection and header
// timeouts so that no remote call can block indefinitely.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
