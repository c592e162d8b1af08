package util

import (
	"context"
	"errors"
	"net/http"

	"github.com/CompassSecurity/groovyleek/pkg/httpclient"
	"github.com/bndr/gojenkins"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

const VersionHeader = "X-Jenkins"

var ErrVersionUnknown = errors.New("jenkins version could not be determined")

// JenkinsVersion is the version a Jenkins instance announced and how it was learned.
type JenkinsVersion struct {
	Version   string
	Anonymous bool
}

// DetermineVersion asks the Jenkins API for the server version. Instances that
// deny anonymous read still send the version header, which is used as fallback.
func DetermineVersion(ctx context.Context, rootURL string) (JenkinsVersion, error) {
	jenkins := gojenkins.CreateJenkins(httpclient.NewStandardClient(), rootURL)
	if _, err := jenkins.Init(ctx); err == nil && jenkins.Version != "" {
		return JenkinsVersion{Version: jenkins.Version, Anonymous: true}, nil
	} else if err != nil {
		log.Debug().Err(err).Str("url", rootURL).Msg("Jenkins API not readable anonymously, falling back to header")
	}

	version, err := versionFromHeader(ctx, httpclient.GetGroovyleekHTTPClient("", nil, nil), rootURL)
	if err != nil {
		return JenkinsVersion{}, err
	}
	return JenkinsVersion{Version: version}, nil
}

func versionFromHeader(ctx context.Context, client *retryablehttp.Client, rootURL string) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rootURL+"/login", nil)
	if err != nil {
		return "", err
	}

	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = res.Body.Close() }()

	version := res.Header.Get(VersionHeader)
	if version == "" {
		return "", ErrVersionUnknown
	}
	return version, nil
}
