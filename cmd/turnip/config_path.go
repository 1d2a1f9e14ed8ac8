package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/turnip-sync/turnip/internal/config"
	"github.com/turnip-sync/turnip/internal/utils"
)

var home, _ = os.UserHomeDir()

// legacyConfigPaths are where older releases kept cred.json
var legacyConfigPaths = []string{
	filepath.Join(home, ".config", "turnip", "cred.json"),
	filepath.Join(home, "turnip", "config", "cred.json"),
}

// resolveConfigPath determines which credential file to use, honoring (in order):
// 1) An explicitly set --config flag
// 2) TURNIP_CONFIG_PATH environment variable
// 3) An existing file at the default or a legacy location
// 4) The default path
func resolveConfigPath(cmd *cobra.Command) string {
	if cfgFlag := cmd.Flag("config"); cfgFlag != nil && cfgFlag.Changed {
		return cfgFlag.Value.String()
	}

	if envPath := os.Getenv(envPrefix + "_CONFIG_PATH"); envPath != "" {
		return envPath
	}

	candidates := append([]string{config.DefaultConfigPath}, legacyConfigPaths...)
	for _, candidate := range candidates {
		if utils.FileExists(candidate) {
			return candidate
		}
	}

	return config.DefaultConfigPath
}
