// Package probe checks whether script consoles are reachable without login.
package probe

import (
	"context"
	"net/http"
	"sync"

	"github.com/CompassSecurity/groovyleek/pkg/httpclient"
	"github.com/CompassSecurity/groovyleek/pkg/jenkins/targets"
	"github.com/PuerkitoBio/goquery"
	"github.com/headzoo/surf"
	"github.com/rs/zerolog/log"
	"github.com/wandb/parallel"
)

type Status int

const (
	StatusUnreachable Status = iota
	StatusNotFound
	StatusLoginRequired
	StatusExposed
)

func (s Status) String() string {
	switch s {
	case StatusExposed:
		return "exposed"
	case StatusLoginRequired:
		return "login required"
	case StatusNotFound:
		return "not found"
	default:
		return "unreachable"
	}
}

// Result is the probe outcome for one target.
type Result struct {
	Target  targets.Target
	Status  Status
	Version string
	HTTP    int
	Err     error
}

// Probe opens the script console page and inspects the returned form.
// Targets are not contacted once ctx is done.
func Probe(ctx context.Context, target targets.Target) Result {
	result := Result{Target: target}
	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	bow := surf.NewBrowser()
	bow.SetTransport(httpclient.NewTransport())
	bow.SetTimeout(httpclient.Timeout())

	if err := bow.Open(target.ScriptURL()); err != nil {
		result.Err = err
		return result
	}

	result.HTTP = bow.StatusCode()
	result.Version = bow.ResponseHeaders().Get("X-Jenkins")
	result.Status = Classify(result.HTTP, bow.Dom())
	return result
}

// Classify decides the probe status from the page returned for the console URL.
func Classify(status int, dom *goquery.Selection) Status {
	if dom != nil && dom.Find(`textarea[name="script"]`).Length() > 0 {
		return StatusExposed
	}
	if status == http.StatusForbidden || status == http.StatusUnauthorized {
		return StatusLoginRequired
	}
	if dom != nil && dom.Find(`input[name="j_username"]`).Length() > 0 {
		return StatusLoginRequired
	}
	return StatusNotFound
}

// RunProbe probes all targets with at most threads concurrent requests.
func RunProbe(ctx context.Context, all []targets.Target, threads int) []Result {
	if threads < 1 {
		threads = 1
	}

	var (
		mu      sync.Mutex
		results []Result
	)

	group := parallel.Limited(ctx, threads)
	for _, target := range all {
		group.Go(func(ctx context.Context) {
			if ctx.Err() != nil {
				return
			}
			res := Probe(ctx, target)
			logResult(res)

			mu.Lock()
			defer mu.Unlock()
			results = append(results, res)
		})
	}
	group.Wait()

	return results
}

func logResult(res Result) {
	switch res.Status {
	case StatusExposed:
		log.Warn().Str("url", res.Target.ScriptURL()).Str("version", res.Version).Msg("Script console is exposed without authentication")
	case StatusLoginRequired:
		log.Info().Str("url", res.Target.ScriptURL()).Str("version", res.Version).Int("http", res.HTTP).Msg("Script console requires login")
	case StatusNotFound:
		log.Info().Str("url", res.Target.ScriptURL()).Int("http", res.HTTP).Msg("No script console found")
	default:
		log.Error().Err(res.Err).Str("url", res.Target.ScriptURL()).Msg("Target unreachable")
	}
}
