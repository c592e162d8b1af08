// Package httpclient builds the HTTP clients used to talk to Jenkins targets.
package httpclient

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

const DefaultTimeout = 30 * time.Second

var (
	ignoreProxy bool
	timeout     = DefaultTimeout
	settingsMu  sync.RWMutex
)

// SetIgnoreProxy disables HTTP_PROXY handling for every client created afterwards.
func SetIgnoreProxy(ignore bool) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	ignoreProxy = ignore
}

// SetTimeout sets the per-request timeout of clients created afterwards.
func SetTimeout(d time.Duration) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	if d <= 0 {
		d = DefaultTimeout
	}
	timeout = d
}

// Timeout returns the configured per-request timeout.
func Timeout() time.Duration {
	_, d := currentSettings()
	return d
}

func currentSettings() (bool, time.Duration) {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return ignoreProxy, timeout
}

// NewTransport returns a pooled transport that skips TLS verification, since
// Jenkins instances in internal networks mostly run with self-signed certificates.
func NewTransport() *http.Transport {
	noProxy, _ := currentSettings()

	transport := cleanhttp.DefaultPooledTransport()
	// #nosec G402 - targets are commonly served with self-signed certificates
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	if noProxy {
		transport.Proxy = nil
		return transport
	}

	if proxy := os.Getenv("HTTP_PROXY"); proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			log.Warn().Err(err).Str("proxy", proxy).Msg("Invalid HTTP_PROXY, ignoring it")
			transport.Proxy = nil
		} else {
			log.Trace().Str("proxy", proxyURL.String()).Msg("Using proxy")
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return transport
}

// NewStandardClient returns a plain client without retries. Use it for
// requests that must be sent at most once.
func NewStandardClient() *http.Client {
	_, d := currentSettings()
	return &http.Client{
		Transport: NewTransport(),
		Timeout:   d,
	}
}

// GetGroovyleekHTTPClient returns a retrying client for idempotent requests.
// Cookies are attached to cookieURL, headers are added to every request.
func GetGroovyleekHTTPClient(cookieURL string, cookies []*http.Cookie, headers map[string]string) *retryablehttp.Client {
	_, d := currentSettings()

	client := retryablehttp.NewClient()
	client.Logger = leveledLogger{}
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient = &http.Client{
		Transport: &headerTransport{base: NewTransport(), headers: headers},
		Timeout:   d,
	}

	if cookieURL != "" && len(cookies) > 0 {
		jar, err := cookiejar.New(nil)
		if err != nil {
			log.Error().Err(err).Msg("Failed creating cookie jar")
			return client
		}
		u, err := url.Parse(cookieURL)
		if err != nil {
			log.Error().Err(err).Str("url", cookieURL).Msg("Invalid cookie URL")
			return client
		}
		jar.SetCookies(u, cookies)
		client.HTTPClient.Jar = jar
	}

	return client
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		clone.Header.Set(k, v)
	}
	return t.base.RoundTrip(clone)
}

// leveledLogger routes retryablehttp logging through zerolog.
type leveledLogger struct{}

func (leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(fields(keysAndValues)).Msg(msg)
}

func (leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Trace().Fields(fields(keysAndValues)).Msg(msg)
}

func (leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	log.Trace().Fields(fields(keysAndValues)).Msg(msg)
}

func (leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(fields(keysAndValues)).Msg(msg)
}

func fields(keysAndValues []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return out
}
