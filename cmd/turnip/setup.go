package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/turnip-sync/turnip/internal/config"
	"github.com/turnip-sync/turnip/internal/utils"
)

func init() {
	rootCmd.AddCommand(newSetupCmd())
}

func newSetupCmd() *cobra.Command {
	var (
		token    string
		username string
		apiURL   string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Save the GitHub username and token turnip uses",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := resolveConfigPath(cmd)
			out := cmd.OutOrStdout()

			if existing, err := config.Load(configPath); err == nil && existing.Validate() == nil && !force {
				fmt.Fprintln(out, green.Render("**Already set up**"))
				printConfig(cmd, existing)
				fmt.Fprintln(out, gray.Render("Run `turnip setup --force` to replace it"))
				return nil
			}

			v := viper.New()
			v.SetEnvPrefix(envPrefix)
			v.AutomaticEnv()
			v.BindPFlag("github_token", cmd.Flags().Lookup("token"))
			v.BindPFlag("username", cmd.Flags().Lookup("username"))
			token, username = v.GetString("github_token"), v.GetString("username")

			if token == "" || username == "" {
				if !isatty.IsTerminal(os.Stdin.Fd()) {
					return errors.New("--token and --username are required when stdin is not a terminal")
				}
				result, err := RunSetupTUI(SetupTUIOpts{
					Username:   username,
					Token:      token,
					ConfigPath: configPath,
				})
				if err != nil {
					return err
				}
				username, token = result.Username, result.Token
			}

			cfg := &config.Config{
				Token:    token,
				Username: username,
				APIURL:   apiURL,
				Path:     configPath,
			}
			cfg.ApplyDefaults()
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("save credentials: %w", err)
			}

			fmt.Fprintln(out, green.Render("Credentials saved"))
			printConfig(cmd, cfg)
			return nil
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&token, "token", "t", "", "GitHub personal access token")
	cmd.Flags().StringVarP(&username, "username", "u", "", "GitHub username, the default repository owner")
	cmd.Flags().StringVar(&apiURL, "api-url", config.DefaultAPIURL, "GitHub API base url")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Replace existing credentials")
	return cmd
}

func printConfig(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s%s\n", gray.Render("USERNAME  "), cyan.Render(cfg.Username))
	fmt.Fprintf(out, "%s%s\n", gray.Render("TOKEN     "), cyan.Render(utils.MaskSecret(cfg.Token)))
	fmt.Fprintf(out, "%s%s\n", gray.Render("API       "), cyan.Render(cfg.APIURL))
	fmt.Fprintf(out, "%s%s\n", gray.Render("DATA      "), cyan.Render(cfg.DataDir))
	fmt.Fprintf(out, "%s%s\n", gray.Render("CONFIG    "), cyan.Render(cfg.Path))
}
