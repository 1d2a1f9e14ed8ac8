package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"github.com/turnip-sync/turnip/internal/config"
)

func runConfigPath(t *testing.T, args ...string) string {
	t.Helper()
	cmd := &cobra.Command{Use: "turnip"}
	cmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "Credential file")
	cmd.AddCommand(newConfigPathCmd())

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"config-path"}, args...))

	require.NoError(t, cmd.Execute())
	return strings.TrimSpace(out.String())
}

func TestConfigPathCommand_Flag(t *testing.T) {
	t.Setenv("TURNIP_CONFIG_PATH", "/from/env.json")
	path := filepath.Join(t.TempDir(), "cred.json")
	require.Equal(t, path, runConfigPath(t, "--config", path))
}

func TestConfigPathCommand_Env(t *testing.T) {
	t.Setenv("TURNIP_CONFIG_PATH", "/from/env.json")
	require.Equal(t, "/from/env.json", runConfigPath(t))
}
