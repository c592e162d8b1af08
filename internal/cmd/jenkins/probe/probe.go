package probe

import (
	"context"
	"os"
	"os/signal"

	"github.com/CompassSecurity/groovyleek/internal/cmd/flags"
	"github.com/CompassSecurity/groovyleek/pkg/config"
	pkgprobe "github.com/CompassSecurity/groovyleek/pkg/jenkins/probe"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var options = flags.CommonOptions{}

func NewProbeCmd() *cobra.Command {
	probeCmd := &cobra.Command{
		Use:   "probe",
		Short: "Check which script consoles are reachable without login",
		Long:  "Open the script console page of every target and report whether it is exposed, protected by a login or missing. No script is executed.",
		Example: `groovyleek jk probe --targets hosts.txt --port 8080
groovyleek jk probe --jenkins https://ci.example.com/script`,
		Run: Probe,
	}
	flags.AddCommonFlags(probeCmd, &options)

	return probeCmd
}

func Probe(cmd *cobra.Command, args []string) {
	if err := config.AutoBindFlags(cmd, flags.TargetFlagMappings); err != nil {
		log.Fatal().Err(err).Msg("Failed to bind command flags to configuration keys")
	}

	if err := flags.ApplyConfigToCommonOptions(cmd, &options); err != nil {
		log.Fatal().Err(err).Msg("Invalid common options")
	}

	all, err := flags.ResolveTargets()
	if err != nil {
		log.Fatal().Err(err).Msg("Unable to determine targets")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results := pkgprobe.RunProbe(ctx, all, options.Threads)

	exposed := 0
	for _, res := range results {
		if res.Status == pkgprobe.StatusExposed {
			exposed++
		}
	}
	log.Info().Int("targets", len(all)).Int("exposed", exposed).Msg("Done")
}
