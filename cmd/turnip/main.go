package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/turnip-sync/turnip/internal/config"
	"github.com/turnip-sync/turnip/internal/github"
	"github.com/turnip-sync/turnip/internal/reconcile"
	"github.com/turnip-sync/turnip/internal/session"
	"github.com/turnip-sync/turnip/internal/utils"
	"github.com/turnip-sync/turnip/internal/version"
	"github.com/turnip-sync/turnip/internal/workspace"
)

const envPrefix = "TURNIP"

// stderr logging is quiet unless --verbose is given
var stderrLevel = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:           "turnip [owner/]repo",
	Short:         "Edit a GitHub repository as a local folder and push it back",
	Version:       version.Detailed(),
	Args:          cobra.MaximumNArgs(1),
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			stderrLevel.Set(slog.LevelDebug)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		cmd.SilenceUsage = true
		session.PrintBanner(cmd.OutOrStdout())

		repoArg := ""
		if len(args) > 0 {
			repoArg = args[0]
		} else {
			fmt.Fprint(cmd.OutOrStdout(), cyan.Render("Repository: ")+gray.Render(cfg.Username+"/"))
			if repoArg, err = readLine(cmd.InOrStdin()); err != nil {
				return fmt.Errorf("read repository name: %w", err)
			}
		}

		owner, repo, err := cfg.SplitRepo(repoArg)
		if err != nil {
			return err
		}

		return runSession(cmd.Context(), cfg, owner, repo, resolveWorkers(cmd))
	},
}

func init() {
	addRootFlags(rootCmd)
}

func addRootFlags(cmd *cobra.Command) {
	cmd.Flags().SortFlags = false
	cmd.Flags().StringP("branch", "b", "", "Branch to check out (default: the repository's default branch)")
	cmd.Flags().StringP("datadir", "d", "", "Directory that holds the working copies")
	cmd.Flags().IntP("workers", "w", reconcile.DefaultWorkers, "Number of files pushed at once")
	cmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "Credential file")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")
}

func main() {
	logFile, err := openLogFile(config.DefaultLogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	stderrLevel.Set(slog.LevelWarn)
	stderrHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      stderrLevel,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	logInterceptor := utils.NewLogInterceptor(logFile)
	defer logInterceptor.Close()
	fileHandler := slog.NewTextHandler(logInterceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// time is added by the log interceptor
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})
	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stderrHandler, fileHandler)))

	// SIGINT is handled by the session prompt, not by cancelling everything
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", red.Bold(true).Render("ERROR:"), err)
		logInterceptor.Close()
		logFile.Close()
		os.Exit(1)
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := utils.EnsureParent(path); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

// loadConfig reads the credential file and layers TURNIP_* environment
// variables and command line flags over it
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	if f := cmd.Flags().Lookup("datadir"); f != nil {
		v.BindPFlag("data_dir", f)
	}
	if f := cmd.Flags().Lookup("branch"); f != nil {
		v.BindPFlag("branch", f)
	}

	path := resolveConfigPath(cmd)
	cfg, err := config.Load(path)
	switch {
	case errors.Is(err, config.ErrConfigMissing) && v.GetString("github_token") != "":
		// running entirely from the environment
		cfg = &config.Config{Path: path}
		cfg.ApplyDefaults()
	case err != nil:
		return nil, err
	}

	for key, field := range map[string]*string{
		"github_token": &cfg.Token,
		"username":     &cfg.Username,
		"api_url":      &cfg.APIURL,
		"archive_url":  &cfg.ArchiveURL,
		"data_dir":     &cfg.DataDir,
		"branch":       &cfg.Branch,
	} {
		if value := v.GetString(key); value != "" {
			*field = value
		}
	}

	slog.Debug("config loaded", "path", cfg.Path, "username", cfg.Username, "token", utils.MaskSecret(cfg.Token),
		"data_dir", cfg.DataDir, "api_url", cfg.APIURL, "branch", cfg.Branch)
	return cfg, nil
}

// resolveWorkers prefers --workers, then TURNIP_WORKERS
func resolveWorkers(cmd *cobra.Command) int {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.BindPFlag("workers", cmd.Flags().Lookup("workers"))
	return max(v.GetInt("workers"), 1)
}

func runSession(ctx context.Context, cfg *config.Config, owner, repo string, workers int) error {
	client := github.New(cfg, owner, repo)

	ws, err := workspace.New(cfg.DataDir, repo)
	if err != nil {
		return err
	}

	interrupts := make(chan os.Signal, 1)
	s := session.New(client, ws,
		session.WithWorkers(workers),
		session.WithInterrupts(interrupts),
	)

	// until the prompt is up, ctrl-c aborts the download
	startCtx, stopStart := signal.NotifyContext(ctx, os.Interrupt)
	err = s.Start(startCtx)
	stopStart()
	if err != nil {
		return err
	}

	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	return s.Run(ctx)
}

// readLine reads up to the next newline one byte at a time, so nothing past
// the line is taken from the terminal
func readLine(r io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				break
			}
			sb.WriteByte(buf[0])
		}
		if errors.Is(err, io.EOF) {
			if sb.Len() == 0 {
				return "", io.ErrUnexpectedEOF
			}
			break
		} else if err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
