// Command lumen is a terminal e-reader that explains selected passages and
// carries the explanation into a conversation.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/csheth/lumen/internal/config"
	"github.com/csheth/lumen/internal/logging"
)

var (
	configPath  string
	endpoint    string
	dbPath      string
	verbose     bool
	noAltScreen bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "lumen [path-or-url]",
	Short: "Read EPUB and PDF books with on-demand explanations",
	Long: `lumen opens an EPUB or PDF in the terminal. Select a word or passage with
the mouse (or v in the keyboard cursor) and lumen offers a plain-language
explanation, an ELI5 version, or a follow-up conversation anchored to it.

Without arguments the most recently opened book is reopened.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if endpoint != "" {
			loaded.Backend.Endpoint = endpoint
		}
		if dbPath != "" {
			loaded.Storage.Database = dbPath
		}
		cfg = loaded

		logger, err = logging.New(logging.Options{
			File:    cfg.Log.File,
			Level:   cfg.Log.Level,
			Verbose: verbose,
			Stderr:  cmd.Name() == serveCmd.Name(),
		})
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runRead,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default ~/.config/lumen/config.toml)")
	flags.StringVar(&endpoint, "endpoint", "", "simplification endpoint URL")
	flags.StringVar(&dbPath, "db", "", "library database path")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	flags.BoolVar(&noAltScreen, "no-alt-screen", false, "disable the alternate screen buffer")

	rootCmd.AddCommand(readCmd, serveCmd, recentCmd, threadsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lumen:", err)
		os.Exit(1)
	}
}
