package flags

import (
	"time"

	"github.com/CompassSecurity/groovyleek/pkg/config"
	"github.com/CompassSecurity/groovyleek/pkg/httpclient"
	"github.com/CompassSecurity/groovyleek/pkg/jenkins/targets"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// CommonOptions are the concurrency and network settings shared by all Jenkins commands.
type CommonOptions struct {
	Threads int
	Timeout time.Duration
}

// AddCommonFlags adds the thread and timeout flags.
func AddCommonFlags(cmd *cobra.Command, opts *CommonOptions) {
	cmd.Flags().IntVarP(&opts.Threads, "threads", "", 4, "Number of targets processed concurrently")
	cmd.Flags().DurationVarP(&opts.Timeout, "timeout", "", httpclient.DefaultTimeout,
		"HTTP timeout per request (e.g., 10s, 1m)")
}

// ApplyConfigToCommonOptions applies config file values to common options if they weren't set via CLI flags.
// This respects the priority: CLI flags > config file > defaults.
func ApplyConfigToCommonOptions(cmd *cobra.Command, opts *CommonOptions) error {
	if !cmd.Flags().Changed("threads") {
		opts.Threads = config.GetIntValue(cmd, "threads", func(c *config.Config) int {
			return c.Common.Threads
		})
	}

	if !cmd.Flags().Changed("timeout") {
		if raw := config.GetString("common.timeout"); raw != "" {
			timeout, err := time.ParseDuration(raw)
			if err != nil {
				log.Warn().Str("timeout", raw).Msg("Invalid common.timeout in configuration, using default")
			} else {
				opts.Timeout = timeout
			}
		}
	}

	if err := config.ValidateThreadCount(opts.Threads); err != nil {
		return err
	}
	httpclient.SetTimeout(opts.Timeout)
	return nil
}

// CommonFlagMappings maps the flags added by AddCommonFlags to config keys.
var CommonFlagMappings = map[string]string{
	"threads": "common.threads",
	"timeout": "common.timeout",
}

// TargetFlagMappings maps the target selection flags of the jenkins command group to config keys.
var TargetFlagMappings = map[string]string{
	"jenkins":    "jenkins.url",
	"targets":    "jenkins.targets",
	"target-uri": "jenkins.target_uri",
	"port":       "jenkins.port",
}

// ResolveTargets collects the targets selected by --jenkins and --targets,
// or their configuration equivalents.
func ResolveTargets() ([]targets.Target, error) {
	if err := config.RequireOneOf("jenkins.url", "jenkins.targets"); err != nil {
		return nil, err
	}

	jenkinsURL := config.GetString("jenkins.url")
	if jenkinsURL != "" {
		if err := config.ValidateURL(jenkinsURL, "Jenkins URL"); err != nil {
			return nil, err
		}
	}

	return targets.Collect(jenkinsURL, config.GetString("jenkins.targets"), targets.Defaults{
		Port:      config.GetInt("jenkins.port"),
		ScriptURI: config.GetString("jenkins.target_uri"),
	})
}
