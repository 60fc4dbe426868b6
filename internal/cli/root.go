// Package cli provides the command-line interface for gridconnect.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gridconnect/gridconnect/internal/logging"
	"github.com/gridconnect/gridconnect/internal/task"
	"github.com/gridconnect/gridconnect/internal/version"
)

var (
	// Global flags
	cfgFile     string
	token       string
	tokenFile   string // Path to file containing the API token
	apiBaseURL  string
	workspaceID string
	modelID     string
	chunkSizeMB int
	concurrency int
	verbose     bool
	debug       bool
	noProgress  bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc

	// tracker holds the one remote task this process may be running.
	tracker = task.NewTracker()
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gridconnect",
		Short: "Move tabular data to and from the planning platform and run its jobs",
		Long: `gridconnect ` + version.Version + ` - Built: ` + version.BuildTime + `

Uploads and downloads delimited files in row-aligned chunks, runs import,
export, action and process jobs and reports their results, and moves rows
between platform files and a PostgreSQL database.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultCLILogger()
			if verbose || debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "API token (overrides all other sources)")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", "", "Path to file containing the API token")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api-url", "", "API base URL (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&workspaceID, "workspace", "w", "", "Workspace ID")
	rootCmd.PersistentFlags().StringVarP(&modelID, "model", "m", "", "Model ID")
	rootCmd.PersistentFlags().IntVar(&chunkSizeMB, "chunk-size", 0, "Chunk size in MB (1-50)")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "Chunk uploads in flight")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "Disable progress bars")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"
	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// The first signal cancels the running remote task before the root context goes,
	// so the cancellation request itself is not aborted.
	go func() {
		for sig := range sigChan {
			if sig == nil {
				continue
			}
			fmt.Fprintf(os.Stderr, "\n\nReceived signal %v, cancelling operations...\n", sig)
			if h, ok := tracker.Running(); ok {
				fmt.Fprintf(os.Stderr, "   Cancelling %s, please wait.\n\n", h)
			}
			if err := tracker.CancelRunning(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to cancel running task: %v\n", err)
			}
			cancelFunc()
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.ExecuteContext(rootContext)

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newDBCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gridconnect %s (built %s)\n", version.Version, version.BuildTime)
		},
	}
}
