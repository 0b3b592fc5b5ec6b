package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/localgw/internal/config"
)

var (
	cfgFile string
	verbose bool
)

// version is set at build time with -ldflags "-X".
var version = "0.1.0-dev"

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "localgw",
	Short: "Run serverless HTTP functions locally",
	Long: `localgw emulates a function-as-a-service HTTP gateway on your machine:

  - Routes every HTTP trigger in serverless.yml to its handler
  - Rebuilds handlers with your bundler and rebinds them without restarting
  - Emulates proxy and raw (lambda) integration, path and query parameters
  - Injects CORS headers for triggers that declare them

Start the gateway:
  localgw serve

Compute per-function package filters:
  localgw package`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./localgw.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version())
		},
	})
}

// loadConfig reads localgw.yaml, falling back to defaults when there is none.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: cfgFile})
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// setupLogging configures zerolog from flags and the logging section of the
// config. Config errors surface later, when the command loads it.
func setupLogging() {
	level := zerolog.InfoLevel
	format := config.DefaultLogFormat

	if cfg, err := loadConfig(); err == nil {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level)); err == nil {
			level = parsed
		}
		format = cfg.Logging.Format
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}

	// Pretty console output for development
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// AddCommand adds a command to the root command.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// Version returns the version string.
func Version() string {
	return fmt.Sprintf("localgw version %s", version)
}
