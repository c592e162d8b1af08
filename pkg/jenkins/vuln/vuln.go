package vuln

import (
	"context"

	"github.com/CompassSecurity/groovyleek/pkg/httpclient"
	"github.com/CompassSecurity/groovyleek/pkg/jenkins/targets"
	"github.com/CompassSecurity/groovyleek/pkg/jenkins/util"
	"github.com/CompassSecurity/groovyleek/pkg/nist"
	"github.com/rs/zerolog/log"
)

// Finding is the version and known CVEs of one Jenkins instance.
type Finding struct {
	Target  targets.Target
	Version util.JenkinsVersion
	Vulns   []nist.Vulnerability
}

// CheckTarget determines the Jenkins version of target and looks up its CVEs.
func CheckTarget(ctx context.Context, target targets.Target) (Finding, error) {
	finding := Finding{Target: target}

	version, err := util.DetermineVersion(ctx, target.RootURL())
	if err != nil {
		return finding, err
	}
	finding.Version = version
	log.Info().Str("url", target.RootURL()).Str("version", version.Version).Bool("anonymousRead", version.Anonymous).Msg("Jenkins")

	cpeName := nist.JenkinsCPE(version.Version)
	log.Debug().Str("cpe", cpeName).Msg("Fetching CVEs for this version")

	vulns, err := nist.FetchVulns(ctx, httpclient.GetGroovyleekHTTPClient("", nil, nil), cpeName)
	if err != nil {
		return finding, err
	}
	finding.Vulns = vulns
	return finding, nil
}

// RunCheckVulns checks every target sequentially. The NVD API rate limits
// anonymous clients, so lookups are not parallelized.
func RunCheckVulns(ctx context.Context, all []targets.Target) []Finding {
	var findings []Finding
	for _, target := range all {
		if ctx.Err() != nil {
			break
		}

		finding, err := CheckTarget(ctx, target)
		if err != nil {
			log.Error().Err(err).Str("url", target.RootURL()).Msg("Unable to check target for vulnerabilities")
			continue
		}

		for _, v := range finding.Vulns {
			log.Warn().Str("cve", v.ID).Str("severity", v.Severity).Float64("score", v.Score).Str("description", v.Description).Msg("Vulnerable")
		}
		findings = append(findings, finding)
	}

	log.Info().Int("targets", len(all)).Int("checked", len(findings)).Msg("Finished vuln scan")
	return findings
}
