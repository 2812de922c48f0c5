package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sreq-inc/solo/internal/errdef"
)

// maxRedirects matches the limit net/http applies when CheckRedirect is nil.
const maxRedirects = 10

func (c *Client) buildHTTPClient(opts Options) (*http.Client, error) {
	transport, err := newTransport(opts)
	if err != nil {
		return nil, err
	}
	client := &http.Client{
		Transport:     transport,
		Jar:           c.jar,
		CheckRedirect: redirectPolicy(opts.FollowRedirects),
	}
	if opts.Timeout > 0 {
		client.Timeout = opts.Timeout
	}
	return client, nil
}

func newTransport(opts Options) (*http.Transport, error) {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // opt-in for local servers
		},
	}

	if raw := strings.TrimSpace(opts.ProxyURL); raw != "" {
		proxy, err := url.Parse(raw)
		if err != nil || proxy.Host == "" {
			if err == nil {
				err = errdef.New(errdef.CodeHTTP, "missing host")
			}
			return nil, errdef.Wrap(errdef.CodeHTTP, err, "parse proxy url %q", raw)
		}
		t.Proxy = http.ProxyURL(proxy)
	}
	return t, nil
}

// redirectPolicy stops at the first redirect unless follow is set, in which
// case the returned response is the last one after at most maxRedirects hops.
func redirectPolicy(follow bool) func(*http.Request, []*http.Request) error {
	if !follow {
		return func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return errdef.New(errdef.CodeHTTP, "stopped after %d redirects", maxRedirects)
		}
		return nil
	}
}
