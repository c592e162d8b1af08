package scriptconsole

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"

	"github.com/CompassSecurity/groovyleek/pkg/format"
	"github.com/CompassSecurity/groovyleek/pkg/httpclient"
	"github.com/CompassSecurity/groovyleek/pkg/jenkins/targets"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"resty.dev/v3"
)

var ErrUnexpectedStatus = errors.New("unexpected HTTP status")

// Requester sends one encoded payload to a script console and returns the page.
type Requester interface {
	Post(ctx context.Context, target targets.Target, body string) (string, error)
}

// Crumb is a Jenkins CSRF token and the header it must be sent in.
type Crumb struct {
	Field string
	Value string
}

// Client posts payloads with resty. Requests are never retried since every
// POST runs the command again. Crumb lookups are plain GETs and go through
// a retrying client sharing the same cookie jar, because Jenkins binds
// crumbs to the session.
type Client struct {
	rest       *resty.Client
	crumbs     *retryablehttp.Client
	fetchCrumb bool
}

// NewClient creates a script console client. When fetchCrumb is set, a crumb
// is requested from the crumb issuer before every POST.
func NewClient(fetchCrumb bool) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	hc := httpclient.NewStandardClient()
	hc.Jar = jar

	crumbs := httpclient.GetGroovyleekHTTPClient("", nil, nil)
	crumbs.HTTPClient.Jar = jar

	return &Client{
		rest:       resty.NewWithClient(hc),
		crumbs:     crumbs,
		fetchCrumb: fetchCrumb,
	}, nil
}

// Close releases the underlying resty client.
func (c *Client) Close() error {
	return c.rest.Close()
}

// Post sends body to the target's script console. Any completed exchange
// returns the page, whatever the status: Jenkins renders failed process
// launches as 500 error pages that still carry the result block.
func (c *Client) Post(ctx context.Context, target targets.Target, body string) (string, error) {
	req := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", FormContentType).
		SetBody(body)

	if c.fetchCrumb {
		crumb, err := c.Crumb(ctx, target)
		if err != nil {
			log.Debug().Err(err).Str("target", target.String()).Msg("No crumb available, posting without one")
		} else {
			req.SetHeader(crumb.Field, crumb.Value)
		}
	}

	res, err := req.Post(target.ScriptURL())
	if err != nil {
		return "", fmt.Errorf("posting to script console: %w", err)
	}

	text := res.String()
	log.Debug().
		Str("target", target.String()).
		Int("http", res.StatusCode()).
		Str("size", format.HumanSize(len(text))).
		Msg("Script console responded")

	return text, nil
}

// Crumb fetches a CSRF crumb from the target's crumb issuer.
func (c *Client) Crumb(ctx context.Context, target targets.Target) (Crumb, error) {
	return FetchCrumb(ctx, c.crumbs, target)
}

// FetchCrumb requests <root>/crumbIssuer/api/json and returns the crumb.
func FetchCrumb(ctx context.Context, client *retryablehttp.Client, target targets.Target) (Crumb, error) {
	crumbURL := target.RootURL() + "/crumbIssuer/api/json"

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, crumbURL, nil)
	if err != nil {
		return Crumb{}, err
	}

	res, err := client.Do(req)
	if err != nil {
		return Crumb{}, fmt.Errorf("requesting crumb: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return Crumb{}, fmt.Errorf("%w: crumb issuer returned HTTP %d", ErrUnexpectedStatus, res.StatusCode)
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return Crumb{}, fmt.Errorf("reading crumb: %w", err)
	}

	parsed := gjson.ParseBytes(data)
	crumb := Crumb{
		Field: parsed.Get("crumbRequestField").String(),
		Value: parsed.Get("crumb").String(),
	}
	if crumb.Field == "" || crumb.Value == "" {
		return Crumb{}, errors.New("crumb issuer response without crumb")
	}

	log.Trace().Str("field", crumb.Field).Str("target", target.String()).Msg("Fetched crumb")
	return crumb, nil
}
