package cli

import (
	"github.com/spf13/cobra"

	"github.com/neboloop/focusrelay/internal/config"
	"github.com/neboloop/focusrelay/internal/defaults"
	"github.com/neboloop/focusrelay/internal/logging"
)

// Shared CLI flags (used across multiple command files)
var (
	cfgFile   string
	logLevel  string
	logFormat string
	quiet     bool
)

// ServerConfig holds the loaded configuration (set by main, then overlaid
// with --config and the log flags)
var ServerConfig *config.Config

// SetupRootCmd configures the root command with all subcommands and flags
func SetupRootCmd(c *config.Config) *cobra.Command {
	ServerConfig = c

	rootCmd := &cobra.Command{
		Use:   "focusrelay",
		Short: "Relay text from a local service into the focused browser field",
		Long: `focusrelay moves snippets of text from a local websocket service into
whatever editable field has focus in the active browser tab.

Run 'focusrelay serve' for the text service and 'focusrelay relay' to attach
to Chrome. Focusing a text field asks the service for its latest text.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML file overlaid on the embedded defaults (default: platform data directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: pretty, text, json")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all log output")

	// Add commands
	rootCmd.AddCommand(RelayCmd())
	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(PushCmd())
	rootCmd.AddCommand(DoctorCmd())

	return rootCmd
}

// loadConfig applies the user config (--config, or config.yaml in the data
// directory) and the log flags, then installs the logger.
func loadConfig() error {
	path := cfgFile
	if path == "" {
		if p, ok := defaults.UserConfigPath(); ok {
			path = p
		}
	}
	if path != "" {
		c, err := config.LoadFile(*ServerConfig, path)
		if err != nil {
			return err
		}
		*ServerConfig = c
	}
	if logLevel != "" {
		ServerConfig.Log.Level = logLevel
	}
	if logFormat != "" {
		ServerConfig.Log.Format = logFormat
	}

	logging.Setup(logging.Options{
		Level:  ServerConfig.Log.Level,
		Format: ServerConfig.Log.Format,
	})
	logging.SetQuiet(quiet)
	return nil
}
