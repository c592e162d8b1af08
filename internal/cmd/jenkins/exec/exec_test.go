package exec

import (
	"testing"

	"github.com/CompassSecurity/groovyleek/pkg/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExecCmd(t *testing.T) {
	cmd := NewExecCmd()
	require.NotNil(t, cmd)
	assert.Equal(t, "exec", cmd.Use)
	assert.NotEmpty(t, cmd.Example)

	tests := []struct {
		name      string
		shorthand string
		def       string
	}{
		{"command", "c", "whoami"},
		{"shell", "s", "auto"},
		{"kill-timeout", "", "1000"},
		{"crumb", "", "true"},
		{"report", "r", ""},
		{"threads", "", "4"},
		{"timeout", "", "30s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := cmd.Flags().Lookup(tt.name)
			require.NotNil(t, flag)
			assert.Equal(t, tt.shorthand, flag.Shorthand)
			assert.Equal(t, tt.def, flag.DefValue)
		})
	}
}

func TestBindFlags(t *testing.T) {
	t.Setenv("GROOVYLEEK_NO_CONFIG", "1")
	config.ResetViper()
	defer config.ResetViper()
	require.NoError(t, config.InitializeViper(""))

	root := &cobra.Command{Use: "groovyleek"}
	root.PersistentFlags().Bool("json", false, "")
	group := &cobra.Command{Use: "jenkins"}
	group.PersistentFlags().String("jenkins", "", "")
	group.PersistentFlags().String("target-uri", "/jenkins/script", "")
	execCmd := NewExecCmd()
	root.AddCommand(group)
	group.AddCommand(execCmd)

	require.NoError(t, bindFlags(execCmd))
	require.NoError(t, execCmd.Flags().Set("kill-timeout", "2500"))
	require.NoError(t, execCmd.Flags().Set("threads", "8"))
	require.NoError(t, execCmd.Flags().Set("crumb", "false"))
	require.NoError(t, group.PersistentFlags().Set("jenkins", "http://ci.local:8080"))
	require.NoError(t, root.PersistentFlags().Set("json", "true"))

	assert.Equal(t, 2500, config.GetInt("jenkins.kill_timeout"))
	assert.Equal(t, 8, config.GetInt("common.threads"))
	assert.False(t, config.GetBool("jenkins.crumb"))
	assert.Equal(t, "http://ci.local:8080", config.GetString("jenkins.url"))
	assert.Equal(t, "/jenkins/script", config.GetString("jenkins.target_uri"))
	assert.Equal(t, "whoami", config.GetString("jenkins.command"))
	assert.False(t, config.GetViper().IsSet("jenkins.json"))
	assert.False(t, config.GetViper().IsSet("jenkins.threads"))
}
