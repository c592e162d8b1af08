package config

import (
	"testing"

	"github.com/spf13/cobra"
)

// resetViper resets the global viper instance for tests.
func resetViper(t *testing.T) {
	t.Helper()
	t.Setenv("GROOVYLEEK_NO_CONFIG", "1")
	ResetViper()
	if err := InitializeViper(""); err != nil {
		t.Fatalf("failed to init viper: %v", err)
	}
}

func TestBindCommandFlags_LocalFlags(t *testing.T) {
	resetViper(t)

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("kill-timeout", "1000", "")

	if err := BindCommandFlags(cmd, "jenkins.exec", nil); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	if err := cmd.Flags().Set("kill-timeout", "2500"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	if got := GetViper().GetString("jenkins.exec.kill_timeout"); got != "2500" {
		t.Fatalf("expected 2500, got %q", got)
	}
}

func TestBindCommandFlags_Overrides(t *testing.T) {
	resetViper(t)

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("jenkins", "", "")

	if err := BindCommandFlags(cmd, "jenkins.exec", map[string]string{"jenkins": "jenkins.url"}); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	if err := cmd.Flags().Set("jenkins", "http://ci.local:8080"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	if got := GetString("jenkins.url"); got != "http://ci.local:8080" {
		t.Fatalf("expected override, got %q", got)
	}
}

func TestBindCommandFlags_InheritedFlags(t *testing.T) {
	resetViper(t)

	root := &cobra.Command{Use: "root"}
	group := &cobra.Command{Use: "jenkins"}
	group.PersistentFlags().String("target-uri", "", "")

	child := &cobra.Command{Use: "child"}
	root.AddCommand(group)
	group.AddCommand(child)

	if err := BindCommandFlags(child, "jenkins.probe", map[string]string{"target-uri": "jenkins.target_uri"}); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	if err := group.PersistentFlags().Set("target-uri", "/script"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	if got := GetString("jenkins.target_uri"); got != "/script" {
		t.Fatalf("expected inherited flag to bind, got %q", got)
	}
}

func TestBindCommandFlags_SkipsRootFlags(t *testing.T) {
	resetViper(t)

	root := &cobra.Command{Use: "root"}
	root.PersistentFlags().String("log-level", "", "")

	child := &cobra.Command{Use: "child"}
	root.AddCommand(child)

	if err := BindCommandFlags(child, "jenkins", nil); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	if err := root.PersistentFlags().Set("log-level", "debug"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	if GetViper().IsSet("jenkins.log_level") {
		t.Fatal("root flag must not be bound below the command prefix")
	}
}

func TestAutoBindFlags_IgnoresUnknownFlags(t *testing.T) {
	resetViper(t)

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("command", "whoami", "")

	err := AutoBindFlags(cmd, map[string]string{
		"command":      "jenkins.command",
		"not-a-flag":   "jenkins.nothing",
		"another-miss": "common.nothing",
	})
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	if got := GetString("jenkins.command"); got != "whoami" {
		t.Fatalf("expected default from config layer, got %q", got)
	}
}
