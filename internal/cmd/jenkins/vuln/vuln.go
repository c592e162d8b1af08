package vuln

import (
	"context"
	"os"
	"os/signal"

	"github.com/CompassSecurity/groovyleek/internal/cmd/flags"
	"github.com/CompassSecurity/groovyleek/pkg/config"
	pkgvuln "github.com/CompassSecurity/groovyleek/pkg/jenkins/vuln"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewVulnCmd() *cobra.Command {
	vulnCmd := &cobra.Command{
		Use:     "vuln",
		Short:   "Check if the installed Jenkins version is vulnerable",
		Long:    "Determine the Jenkins version of every target and look it up in the NIST vulnerability database.",
		Example: `groovyleek jk vuln --jenkins https://ci.example.com`,
		Run:     CheckVulns,
	}

	return vulnCmd
}

func CheckVulns(cmd *cobra.Command, args []string) {
	if err := config.AutoBindFlags(cmd, flags.TargetFlagMappings); err != nil {
		log.Fatal().Err(err).Msg("Failed to bind command flags to configuration keys")
	}

	all, err := flags.ResolveTargets()
	if err != nil {
		log.Fatal().Err(err).Msg("Unable to determine targets")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pkgvuln.RunCheckVulns(ctx, all)
}
