package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/goccy/go-json"
	"github.com/turnip-sync/turnip/internal/utils"
)

const appDir = "turnip"

var (
	DefaultConfigPath = filepath.Join(xdg.ConfigHome, appDir, "cred.json")
	DefaultDataDir    = filepath.Join(xdg.DataHome, appDir, "sync")
	DefaultLogPath    = filepath.Join(xdg.StateHome, appDir, "turnip.log")
	DefaultAPIURL     = "https://api.github.com"
	DefaultArchiveURL = "https://github.com"
)

var (
	ErrConfigMissing = errors.New("credentials not found")
	ErrNoToken       = errors.New("config: github_token missing")
	ErrNoUsername    = errors.New("config: username missing")
)

// Config is the credential record plus the settings that can override it.
// It is built once at startup and handed to the remote client and the session.
type Config struct {
	Token      string `json:"github_token"`
	Username   string `json:"username"`
	APIURL     string `json:"api_url,omitempty"`
	ArchiveURL string `json:"archive_url,omitempty"`
	DataDir    string `json:"data_dir,omitempty"`
	Branch     string `json:"branch,omitempty"`
	Path       string `json:"-"`
}

// Load reads the credential record at path. A missing file is reported as ErrConfigMissing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w at %s, run `turnip setup` first", ErrConfigMissing, path)
	} else if err != nil {
		return nil, fmt.Errorf("config read %q: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config parse %q: %w", path, err)
	}

	cfg.Token = unquote(cfg.Token)
	cfg.Username = unquote(cfg.Username)
	cfg.Path = path
	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills every optional field that was left empty
func (c *Config) ApplyDefaults() {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.ArchiveURL == "" {
		c.ArchiveURL = DefaultArchiveURL
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.Path == "" {
		c.Path = DefaultConfigPath
	}
}

func (c *Config) Validate() error {
	c.Token = strings.TrimSpace(c.Token)
	c.Username = strings.TrimSpace(c.Username)

	if c.Token == "" {
		return ErrNoToken
	}
	if c.Username == "" {
		return ErrNoUsername
	}
	if err := validateURL(c.APIURL); err != nil {
		return fmt.Errorf("config: invalid api url: %w", err)
	}
	if err := validateURL(c.ArchiveURL); err != nil {
		return fmt.Errorf("config: invalid archive url: %w", err)
	}

	dataDir, err := utils.ResolvePath(c.DataDir)
	if err != nil {
		return fmt.Errorf("config: invalid data dir: %w", err)
	}
	c.DataDir = dataDir

	c.APIURL = strings.TrimRight(c.APIURL, "/")
	c.ArchiveURL = strings.TrimRight(c.ArchiveURL, "/")
	return nil
}

// Save writes the credential record with owner-only permissions
func (c *Config) Save() error {
	if err := utils.EnsureParent(c.Path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.Path, data, 0o600)
}

// SplitRepo turns `repo` or `owner/repo` into its parts, using the configured username as default owner
func (c *Config) SplitRepo(arg string) (owner, repo string, err error) {
	arg = strings.Trim(strings.TrimSpace(arg), "/")
	owner, repo, found := strings.Cut(arg, "/")
	if !found {
		owner, repo = c.Username, arg
	}
	if owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repository %q, expected `repo` or `owner/repo`", arg)
	}
	return owner, repo, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// unquote strips one layer of matching quotes left over from records that
// stored values as quoted literals. The text is never interpreted.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
