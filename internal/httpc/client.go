// Package httpc builds the HTTP clients used for outbound API calls.
// Every client has dial, TLS and overall timeouts so a stalled endpoint
// cannot hang a run.
package httpc

import (
	"net"
	"net/http"
	"time"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultKeepAlive      = 30 * time.Second
)

// Client is shared by callers that have no special needs.
var Client = New(DefaultTimeout)

// New returns a client whose requests give up after timeout.
// A zero timeout means no overall limit; dial and TLS limits still apply.
func New(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
}
