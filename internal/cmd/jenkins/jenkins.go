package jenkins

import (
	"github.com/CompassSecurity/groovyleek/internal/cmd/jenkins/exec"
	"github.com/CompassSecurity/groovyleek/internal/cmd/jenkins/probe"
	"github.com/CompassSecurity/groovyleek/internal/cmd/jenkins/vuln"
	"github.com/CompassSecurity/groovyleek/pkg/jenkins/targets"
	"github.com/spf13/cobra"
)

var (
	jenkinsURL  string
	targetsFile string
	targetURI   string
	port        int
)

func NewJenkinsRootCmd() *cobra.Command {
	jkCmd := &cobra.Command{
		Use:     "jenkins [command]",
		Aliases: []string{"jk"},
		Short:   "Jenkins script console commands",
		Long: `Commands to find and exploit Jenkins script consoles that are reachable without authentication.

Targets are given either as a single URL with --jenkins or as a file with --targets.
The targets file contains one entry per line: a URL, host:port, a bare host or a Shodan JSON banner.
Bare hosts use --port and --target-uri.

### Proxy Support

Set a proxy using the HTTP_PROXY environment variable, e.g. for Burp Suite:
<code>HTTP_PROXY=http://127.0.0.1:8080 groovyleek jk exec --jenkins http://10.0.0.5:8080</code>
`,
		GroupID: "Jenkins",
	}

	jkCmd.AddCommand(exec.NewExecCmd())
	jkCmd.AddCommand(probe.NewProbeCmd())
	jkCmd.AddCommand(vuln.NewVulnCmd())

	jkCmd.PersistentFlags().StringVarP(&jenkinsURL, "jenkins", "j", "", "Jenkins base or script console URL")
	jkCmd.PersistentFlags().StringVarP(&targetsFile, "targets", "f", "", "File with one target per line (URL, host[:port] or Shodan JSON)")
	jkCmd.PersistentFlags().StringVarP(&targetURI, "target-uri", "u", targets.DefaultScriptURI, "Script console path for targets without a path")
	jkCmd.PersistentFlags().IntVarP(&port, "port", "p", targets.DefaultPort, "Port for targets without a port")

	return jkCmd
}
