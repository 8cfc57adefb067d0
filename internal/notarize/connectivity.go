package notarize

import (
	"context"
	"net/http"
	"time"
)

// Connectivity tells whether remote providers are reachable.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// AlwaysOnline skips the check.
type AlwaysOnline struct{}

// Online implements Connectivity.
func (AlwaysOnline) Online(context.Context) bool { return true }

// HTTPConnectivity issues a HEAD request to a known URL.
type HTTPConnectivity struct {
	url    string
	client *http.Client
}

// NewHTTPConnectivity checks url with the given timeout.
func NewHTTPConnectivity(url string, timeout time.Duration) *HTTPConnectivity {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPConnectivity{url: url, client: &http.Client{Timeout: timeout}}
}

// Online implements Connectivity. Any HTTP response counts as online.
func (c *HTTPConnectivity) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.url, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
