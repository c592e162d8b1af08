package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config represents the complete configuration structure for groovyleek.
type Config struct {
	Jenkins JenkinsConfig `mapstructure:"jenkins"`
	Common  CommonConfig  `mapstructure:"common"`
}

// JenkinsConfig contains the target and exploitation settings
type JenkinsConfig struct {
	URL         string `mapstructure:"url"`
	Targets     string `mapstructure:"targets"`
	TargetURI   string `mapstructure:"target_uri"`
	Port        int    `mapstructure:"port"`
	Command     string `mapstructure:"command"`
	Shell       string `mapstructure:"shell"`
	KillTimeout int    `mapstructure:"kill_timeout"`
	Crumb       bool   `mapstructure:"crumb"`
	Report      string `mapstructure:"report"`
}

// CommonConfig contains common configuration settings
type CommonConfig struct {
	Threads int    `mapstructure:"threads"`
	Timeout string `mapstructure:"timeout"`
}

const (
	envPrefix   = "GROOVYLEEK"
	noConfigEnv = "GROOVYLEEK_NO_CONFIG"
)

var (
	globalViper  *viper.Viper
	globalConfig *Config
)

// InitializeViper initializes the global Viper instance with config file and defaults.
// This should be called once during application initialization.
func InitializeViper(configFile string) error {
	v := viper.New()

	setDefaults(v)

	if os.Getenv(noConfigEnv) != "" && configFile == "" {
		log.Debug().Msg("Config file loading disabled via " + noConfigEnv)
	} else {
		if configFile != "" {
			v.SetConfigFile(configFile)
			log.Debug().Str("path", configFile).Msg("Using specified config file")
		} else {
			v.SetConfigName("groovyleek")
			v.SetConfigType("yaml")

			home, err := os.UserHomeDir()
			if err == nil {
				v.AddConfigPath(filepath.Join(home, ".config", "groovyleek"))
				v.AddConfigPath(home)
			}
			v.AddConfigPath(".")

			log.Debug().Msg("Searching for config file in standard locations")
		}

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				log.Debug().Msg("No config file found, using defaults and command-line flags")
			} else {
				return fmt.Errorf("error reading config file: %w", err)
			}
		} else {
			log.Info().Str("file", v.ConfigFileUsed()).Msg("Loaded config file")
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	globalViper = v
	return nil
}

// LoadConfig initializes Viper and unmarshals the result for the flag helpers.
func LoadConfig(configFile string) (*Config, error) {
	if err := InitializeViper(configFile); err != nil {
		return nil, err
	}
	cfg, err := UnmarshalConfig()
	if err != nil {
		return nil, err
	}
	globalConfig = cfg
	return cfg, nil
}

// ResetViper drops the global configuration state. Used by tests.
func ResetViper() {
	globalViper = nil
	globalConfig = nil
}

// GetViper returns the global Viper instance
func GetViper() *viper.Viper {
	if globalViper == nil {
		if err := InitializeViper(""); err != nil {
			log.Fatal().Err(err).Msg("Failed to auto-initialize Viper configuration")
		}
	}
	return globalViper
}

// BindFlags binds command flags to Viper configuration keys.
// This enables automatic priority handling: CLI flags > config file > defaults.
func BindFlags(cmd *cobra.Command, flagMappings map[string]string) error {
	v := GetViper()
	for flagName, viperKey := range flagMappings {
		flag := lookupFlag(cmd, flagName)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(viperKey, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s to key %s: %w", flagName, viperKey, err)
		}
	}
	return nil
}

// AutoBindFlags binds the given flags, ignoring mappings for flags the command does not define.
func AutoBindFlags(cmd *cobra.Command, flagMappings map[string]string) error {
	return BindFlags(cmd, flagMappings)
}

// BindCommandFlags binds every local and inherited flag of cmd below keyPrefix.
// Flag names are converted to snake case (my-flag -> prefix.my_flag) unless
// overrides maps the flag to an explicit key. Global flags of the root
// command are not bound.
func BindCommandFlags(cmd *cobra.Command, keyPrefix string, overrides map[string]string) error {
	v := GetViper()
	var bindErr error

	bind := func(flag *pflag.Flag) {
		if bindErr != nil || flag.Name == "help" {
			return
		}
		if root := cmd.Root(); root != cmd && root.PersistentFlags().Lookup(flag.Name) != nil {
			return
		}
		key, ok := overrides[flag.Name]
		if !ok {
			key = keyPrefix + "." + strings.ReplaceAll(flag.Name, "-", "_")
		}
		if err := v.BindPFlag(key, flag); err != nil {
			bindErr = fmt.Errorf("failed to bind flag %s to key %s: %w", flag.Name, key, err)
		}
	}

	cmd.Flags().VisitAll(bind)
	cmd.InheritedFlags().VisitAll(bind)
	return bindErr
}

func lookupFlag(cmd *cobra.Command, name string) *pflag.Flag {
	if flag := cmd.Flags().Lookup(name); flag != nil {
		return flag
	}
	return cmd.InheritedFlags().Lookup(name)
}

// RequireConfigKeys returns an error listing every key that resolves to an empty value.
func RequireConfigKeys(keys ...string) error {
	var missing []string
	for _, key := range keys {
		if strings.TrimSpace(GetViper().GetString(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RequireOneOf returns an error if none of the keys is set.
func RequireOneOf(keys ...string) error {
	for _, key := range keys {
		if strings.TrimSpace(GetViper().GetString(key)) != "" {
			return nil
		}
	}
	return fmt.Errorf("one of the following must be configured: %s", strings.Join(keys, ", "))
}

// ValidateURL checks that raw is an absolute http(s) URL.
func ValidateURL(raw string, name string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must contain a host", name)
	}
	return nil
}

// ValidateThreadCount ensures the number of worker goroutines is usable.
func ValidateThreadCount(threads int) error {
	if threads < 1 {
		return fmt.Errorf("thread count must be at least 1, got %d", threads)
	}
	if threads > 1000 {
		return fmt.Errorf("thread count must not exceed 1000, got %d", threads)
	}
	return nil
}

// GetString retrieves a string value using Viper's native priority handling
func GetString(key string) string {
	return GetViper().GetString(key)
}

// GetBool retrieves a bool value using Viper's native priority handling
func GetBool(key string) bool {
	return GetViper().GetBool(key)
}

// GetInt retrieves an int value using Viper's native priority handling
func GetInt(key string) int {
	return GetViper().GetInt(key)
}

// UnmarshalConfig unmarshals the configuration into a Config struct
func UnmarshalConfig() (*Config, error) {
	config := &Config{}
	if err := GetViper().Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return config, nil
}

// setDefaults sets default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("common.threads", 4)
	v.SetDefault("common.timeout", "30s")

	v.SetDefault("jenkins.target_uri", "/jenkins/script")
	v.SetDefault("jenkins.port", 80)
	v.SetDefault("jenkins.command", "whoami")
	v.SetDefault("jenkins.shell", "auto")
	v.SetDefault("jenkins.kill_timeout", 1000)
	v.SetDefault("jenkins.crumb", true)
}
