package config

import (
	"github.com/spf13/cobra"
)

// GetStringValue resolves a string with priority: CLI flag > loaded config
// (environment, file, built-in default) > flag default.
func GetStringValue(cmd *cobra.Command, flagName string, configGetter func(*Config) string) string {
	if cmd.Flags().Changed(flagName) {
		val, _ := cmd.Flags().GetString(flagName)
		return val
	}

	if globalConfig != nil {
		if configValue := configGetter(globalConfig); configValue != "" {
			return configValue
		}
	}

	val, _ := cmd.Flags().GetString(flagName)
	return val
}

// GetBoolValue resolves a bool with priority: CLI flag > loaded config > flag default.
// The loaded config already carries the built-in defaults, so an explicit false
// in the file or environment wins over a true flag default.
func GetBoolValue(cmd *cobra.Command, flagName string, configGetter func(*Config) bool) bool {
	if cmd.Flags().Changed(flagName) {
		val, _ := cmd.Flags().GetBool(flagName)
		return val
	}

	if globalConfig != nil {
		return configGetter(globalConfig)
	}

	val, _ := cmd.Flags().GetBool(flagName)
	return val
}

// GetIntValue resolves an int with priority: CLI flag > config file > flag default.
func GetIntValue(cmd *cobra.Command, flagName string, configGetter func(*Config) int) int {
	if cmd.Flags().Changed(flagName) {
		val, _ := cmd.Flags().GetInt(flagName)
		return val
	}

	if globalConfig != nil {
		if configValue := configGetter(globalConfig); configValue != 0 {
			return configValue
		}
	}

	val, _ := cmd.Flags().GetInt(flagName)
	return val
}
