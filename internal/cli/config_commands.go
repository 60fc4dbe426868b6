package cli

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gridconnect/gridconnect/internal/config"
	"github.com/gridconnect/gridconnect/internal/constants"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage gridconnect configuration",
		Long: `Configuration management commands for gridconnect.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())
	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for gridconnect.

The configuration is saved to ~/.config/gridconnect/config.ini and the token
to ~/.config/gridconnect/token, both readable by the owner only.

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := cfgFile
			if configPath == "" {
				configPath = config.DefaultConfigPath()
			}

			if !force {
				if _, err := os.Stat(configPath); err == nil {
					fmt.Printf("Configuration already exists at: %s\n", configPath)
					fmt.Println("Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg, tok, err := promptConfig(bufio.NewReader(os.Stdin), os.Stdout, readSecret)
			if err != nil {
				return err
			}

			tokenPath := config.DefaultTokenPath()
			if err := config.WriteTokenFile(tokenPath, tok); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}
			GetLogger().Info().Str("path", tokenPath).Msg("Token saved")

			if err := config.Save(cfg, configPath); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			fmt.Printf("\nConfiguration saved to %s\n", configPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	return cmd
}

// readSecret reads a line without echo when stdin is a terminal.
func readSecret() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		return strings.TrimSpace(line), err
	}
	b, err := term.ReadPassword(fd)
	fmt.Println()
	return strings.TrimSpace(string(b)), err
}

// promptConfig asks for every setting and returns the config and the token, which
// is stored separately.
func promptConfig(in *bufio.Reader, out io.Writer, secret func() (string, error)) (*config.Config, string, error) {
	cfg := config.New()

	ask := func(label, def string) string {
		if def != "" {
			fmt.Fprintf(out, "%s [%s]: ", label, def)
		} else {
			fmt.Fprintf(out, "%s: ", label)
		}
		line, _ := in.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
		return def
	}
	askInt := func(label string, def, min, max int) int {
		v, err := strconv.Atoi(ask(label, strconv.Itoa(def)))
		if err != nil || v < min || v > max {
			fmt.Fprintf(out, "  Using %d\n", def)
			return def
		}
		return v
	}

	fmt.Fprintln(out, "gridconnect Configuration Setup")
	fmt.Fprintln(out, "===============================")
	fmt.Fprintln(out)

	var tok string
	for tok == "" {
		fmt.Fprint(out, "API token (required): ")
		t, err := secret()
		if err != nil && t == "" {
			return nil, "", fmt.Errorf("failed to read token: %w", err)
		}
		if tok = t; tok == "" {
			fmt.Fprintln(out, "  Error: token is required")
		}
	}

	cfg.APIBaseURL = ask("API base URL", constants.DefaultAPIBaseURL)
	cfg.WorkspaceID = ask("Workspace ID", "")
	cfg.ModelID = ask("Model ID", "")

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Transfer Settings (press Enter for defaults)")
	fmt.Fprintln(out, "--------------------------------------------")
	cfg.ChunkSizeMB = askInt("Chunk size in MB", cfg.ChunkSizeMB, constants.MinChunkSizeMB, constants.MaxChunkSizeMB)
	cfg.Concurrency = askInt("Chunk uploads in flight", cfg.Concurrency, 1, constants.MaxConcurrency)

	fmt.Fprintln(out)
	if p := strings.ToLower(ask("Configure proxy? (y/n)", "n")); p == "y" || p == "yes" {
		fmt.Fprintln(out, "Proxy modes: no-proxy, system, basic, ntlm")
		cfg.ProxyMode = ask("Proxy mode", "system")
		if cfg.ProxyMode != "no-proxy" {
			cfg.ProxyHost = ask("Proxy host", "")
			cfg.ProxyPort = askInt("Proxy port", 8080, 1, 65535)
			if cfg.ProxyMode == "basic" || cfg.ProxyMode == "ntlm" {
				cfg.ProxyUser = ask("Proxy user", "")
			}
		}
	}

	fmt.Fprintln(out)
	cfg.DatabaseDSN = ask("PostgreSQL DSN for db commands (optional)", "")

	// The token lives in its own file, not in config.ini.
	cfg.Token = tok
	err := cfg.Validate()
	cfg.Token = ""
	if err != nil {
		return nil, "", err
	}
	return cfg, tok, nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (~/.config/gridconnect/config.ini)
  2. Token file (~/.config/gridconnect/token or --token-file)
  3. Environment variables (GRIDCONNECT_TOKEN, GRIDCONNECT_API_URL, HTTPS_PROXY)
  4. Command-line flags

Priority: flags > environment > token file > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			printConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

// printConfig writes cfg with secrets masked.
func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Current Configuration")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Service:")
	fmt.Fprintf(w, "  API Base URL: %s\n", cfg.APIBaseURL)
	if cfg.Token != "" {
		fmt.Fprintf(w, "  Token:        <set (%d chars)>\n", len(cfg.Token))
	} else {
		fmt.Fprintln(w, "  Token:        <not set>")
	}
	fmt.Fprintf(w, "  Workspace:    %s\n", orUnset(cfg.WorkspaceID))
	fmt.Fprintf(w, "  Model:        %s\n", orUnset(cfg.ModelID))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Transfer:")
	fmt.Fprintf(w, "  Chunk Size:  %d MB\n", cfg.ChunkSizeMB)
	fmt.Fprintf(w, "  Concurrency: %d\n", cfg.Concurrency)
	fmt.Fprintln(w)

	p := cfg.RetryPolicy()
	fmt.Fprintln(w, "Retry:")
	fmt.Fprintf(w, "  Max Retries: %d\n", p.MaxRetries)
	fmt.Fprintf(w, "  Base:        %s\n", p.Base)
	fmt.Fprintf(w, "  Multiplier:  %g\n", p.Multiplier)
	fmt.Fprintf(w, "  Cap:         %s\n", p.Cap)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Proxy:")
	fmt.Fprintf(w, "  Mode: %s\n", cfg.ProxyMode)
	if cfg.ProxyHost != "" {
		fmt.Fprintf(w, "  Host: %s\n", cfg.ProxyHost)
		fmt.Fprintf(w, "  Port: %d\n", cfg.ProxyPort)
	}
	if cfg.NoProxy != "" {
		fmt.Fprintf(w, "  No Proxy: %s\n", cfg.NoProxy)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Database:")
	fmt.Fprintf(w, "  DSN: %s\n", orUnset(redactDSN(cfg.DatabaseDSN)))
}

func orUnset(s string) string {
	if s == "" {
		return "<not set>"
	}
	return s
}

// redactDSN hides the password of a URL-form DSN. Key/value DSNs are hidden entirely.
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "<set>"
	}
	return u.Redacted()
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			path := cfgFile
			if path == "" {
				path = config.DefaultConfigPath()
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
		},
	}
}
