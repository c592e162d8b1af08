// Package nist queries the NIST NVD API for CVEs affecting a CPE.
package nist

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	resultsPerPage = 100
	BaseURLEnv     = "GROOVYLEEK_NIST_BASE_URL"
)

var DefaultBaseURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"

// Vulnerability is a condensed NVD CVE entry.
type Vulnerability struct {
	ID          string
	Description string
	Severity    string
	Score       float64
}

// JenkinsCPE returns the CPE name of a Jenkins release. Three component
// versions (2.89.1) are LTS releases, everything else is a weekly release.
func JenkinsCPE(version string) string {
	version = strings.TrimSpace(version)
	update := "*"
	if strings.Count(version, ".") == 2 {
		update = "lts"
	}
	return fmt.Sprintf("cpe:2.3:a:jenkins:jenkins:%s:*:*:*:%s:*:*:*", version, update)
}

func baseURL() string {
	if envURL := os.Getenv(BaseURLEnv); envURL != "" {
		log.Debug().Str("url", envURL).Msg("Overriding NIST base URL from environment variable")
		return envURL
	}
	return DefaultBaseURL
}

// FetchVulns retrieves every CVE listed for cpeName, following the NVD pagination.
// A failing follow-up page ends the walk with partial results.
func FetchVulns(ctx context.Context, client *retryablehttp.Client, cpeName string) ([]Vulnerability, error) {
	base := baseURL()

	page, err := fetchPage(ctx, client, base, cpeName, 0)
	if err != nil {
		return nil, err
	}

	total := int(page.Get("totalResults").Int())
	vulns := parseVulns(page)

	for start := resultsPerPage; start < total; start += resultsPerPage {
		log.Debug().Int("totalResults", total).Int("startIndex", start).Msg("Fetching next NVD page")
		next, err := fetchPage(ctx, client, base, cpeName, start)
		if err != nil {
			log.Warn().Err(err).Int("startIndex", start).Msg("failed to fetch page, continuing with partial results")
			break
		}
		vulns = append(vulns, parseVulns(next)...)
	}

	return vulns, nil
}

func fetchPage(ctx context.Context, client *retryablehttp.Client, base, cpeName string, start int) (gjson.Result, error) {
	query := url.Values{}
	query.Set("cpeName", cpeName)
	query.Set("resultsPerPage", fmt.Sprint(resultsPerPage))
	query.Set("startIndex", fmt.Sprint(start))
	pageURL := base + "?" + query.Encode()

	log.Trace().Str("url", pageURL).Msg("Fetching vulnerabilities")
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return gjson.Result{}, err
	}

	res, err := client.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		log.Error().Int("http", res.StatusCode).Str("url", pageURL).Msg("failed fetching vulnerabilities")
		return gjson.Result{}, fmt.Errorf("HTTP %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("invalid NVD response from %s", pageURL)
	}

	return gjson.ParseBytes(body), nil
}

func parseVulns(page gjson.Result) []Vulnerability {
	var vulns []Vulnerability
	page.Get("vulnerabilities").ForEach(func(_, value gjson.Result) bool {
		cve := value.Get("cve")
		v := Vulnerability{
			ID:          cve.Get("id").String(),
			Description: englishDescription(cve),
		}
		for _, metric := range []string{"cvssMetricV31", "cvssMetricV30"} {
			data := cve.Get("metrics." + metric + ".0.cvssData")
			if data.Exists() {
				v.Severity = data.Get("baseSeverity").String()
				v.Score = data.Get("baseScore").Float()
				break
			}
		}
		if v.Severity == "" {
			v2 := cve.Get("metrics.cvssMetricV2.0")
			v.Severity = v2.Get("baseSeverity").String()
			v.Score = v2.Get("cvssData.baseScore").Float()
		}
		vulns = append(vulns, v)
		return true
	})
	return vulns
}

func englishDescription(cve gjson.Result) string {
	desc := cve.Get(`descriptions.#(lang=="en").value`)
	if desc.Exists() {
		return desc.String()
	}
	return cve.Get("descriptions.0.value").String()
}
