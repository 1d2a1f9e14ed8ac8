package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "cred.json"))
	require.ErrorIs(t, err, ErrConfigMissing)
	assert.Contains(t, err.Error(), "turnip setup")
}

func TestLoad_TypedFieldsAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cred.json")
	writeFile(t, path, `{"github_token": "ghp_abc", "username": "octo", "extra": 42}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ghp_abc", cfg.Token)
	assert.Equal(t, "octo", cfg.Username)
	assert.Equal(t, DefaultAPIURL, cfg.APIURL)
	assert.Equal(t, DefaultArchiveURL, cfg.ArchiveURL)
	assert.Equal(t, DefaultDataDir, cfg.DataDir)
	assert.Equal(t, path, cfg.Path)
}

func TestLoad_LegacyRecordIsNeverEvaluated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cred.json")
	writeFile(t, path, `{"GITHUB_TOKEN": "'ghp_legacy'", "USERNAME": "\"octo\"", "data_dir": "__import__('os')"}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ghp_legacy", cfg.Token)
	assert.Equal(t, "octo", cfg.Username)
	assert.Equal(t, "__import__('os')", cfg.DataDir)
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cred.json")
	writeFile(t, path, `{"github_token": `)

	_, err := Load(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConfigMissing)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{Token: " tok ", Username: "octo", DataDir: t.TempDir()}
		cfg.ApplyDefaults()
		return cfg
	}

	t.Run("ok", func(t *testing.T) {
		cfg := base()
		cfg.APIURL = "https://ghe.example.com/api/v3/"
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "tok", cfg.Token)
		assert.Equal(t, "https://ghe.example.com/api/v3", cfg.APIURL)
		assert.True(t, filepath.IsAbs(cfg.DataDir))
	})

	t.Run("no token", func(t *testing.T) {
		cfg := base()
		cfg.Token = "  "
		assert.ErrorIs(t, cfg.Validate(), ErrNoToken)
	})

	t.Run("no username", func(t *testing.T) {
		cfg := base()
		cfg.Username = ""
		assert.ErrorIs(t, cfg.Validate(), ErrNoUsername)
	})

	t.Run("bad api url", func(t *testing.T) {
		cfg := base()
		cfg.APIURL = "ftp://api.example.com"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api url")
	})

	t.Run("bad archive url", func(t *testing.T) {
		cfg := base()
		cfg.ArchiveURL = "https://"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "archive url")
	})
}

func TestSaveAndLoad_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cred.json")
	cfg := &Config{Token: "ghp_x", Username: "octo", Branch: "dev", Path: path}
	cfg.ApplyDefaults()

	require.NoError(t, cfg.Save())

	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSplitRepo(t *testing.T) {
	cfg := &Config{Username: "octo"}

	cases := []struct {
		in, owner, repo string
		wantErr         bool
	}{
		{in: "notes", owner: "octo", repo: "notes"},
		{in: "acme/site", owner: "acme", repo: "site"},
		{in: " /acme/site/ ", owner: "acme", repo: "site"},
		{in: "", wantErr: true},
		{in: "a/b/c", wantErr: true},
		{in: "/", wantErr: true},
	}
	for _, c := range cases {
		c := c
		t.Run(c.in, func(t *testing.T) {
			owner, repo, err := cfg.SplitRepo(c.in)
			if c.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.owner, owner)
			assert.Equal(t, c.repo, repo)
		})
	}
}
