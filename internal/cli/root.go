// internal/cli/root.go
package sweepwatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwiater/sweepwatch/internal/appconfig"
	"github.com/mwiater/sweepwatch/internal/benchmark"
	"github.com/mwiater/sweepwatch/internal/cadence"
	"github.com/mwiater/sweepwatch/internal/logging"
)

var (
	cfgFile       string
	currentConfig *appconfig.Config
)

// boolKeys are the boolean settings shared between flags and the config file.
var boolKeys = []string{"debug", "jsonMode", "plain"}

var rootCmd = &cobra.Command{
	Use:           "sweepwatch",
	Short:         "sweepwatch: live terminal monitor for concurrency-sweep load tests",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1) Load config (file or defaults)
		if err := ensureConfigLoaded(cmd.Flags().Changed("config")); err != nil {
			return err
		}

		// 2) If user did NOT set a flag, copy the config value into the flag so
		//    both pflags and viper reflect the same, final value.
		for _, name := range boolKeys {
			if f := cmd.Flags().Lookup(name); f != nil && !f.Changed {
				_ = cmd.Flags().Set(name, strconv.FormatBool(viper.GetBool(name)))
			}
		}

		// 3) Materialize the fully merged configuration into currentConfig
		//    (flags > config > defaults).
		var cfg appconfig.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		cfg.ConfigPath = viper.ConfigFileUsed()
		currentConfig = &cfg

		// 4) The full-screen watch owns stdout, so it logs to the file only.
		//    Debug runs of one-shot commands mirror the log on the console.
		console := cfg.Debug && !cfg.JSONMode && cmd.Name() != watchCmd.Name()
		if err := initLogging(cfg.LogFilePath(), console); err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		logging.SetDebug(cfg.Debug)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Close()
	},
}

func initLogging(path string, console bool) error {
	if console {
		return logging.InitWithConsole(path)
	}
	return logging.Init(path)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (e.g., config/config.json)")

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().String("baseURL", "", "load-test service base URL")
	rootCmd.PersistentFlags().String("apiKey", "", "API key sent on mutating calls")
	rootCmd.PersistentFlags().Int("timeout", 0, "HTTP request timeout in seconds")
	rootCmd.PersistentFlags().String("logFile", "", "log file path")
	rootCmd.PersistentFlags().String("archivePath", "", "SQLite archive of finished runs (empty disables)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging and payload dumps")
	rootCmd.PersistentFlags().Bool("jsonMode", false, "enable JSON output mode")
	rootCmd.PersistentFlags().Bool("plain", false, "line-oriented output instead of the full-screen view")

	// Bind flags to Viper keys (flags override config)
	for _, name := range []string{"baseURL", "apiKey", "timeout", "logFile", "archivePath", "debug", "jsonMode", "plain"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

// ensureConfigLoaded reads the config file and sets safe defaults. A missing
// file at the default location means running on defaults; a missing file
// named with --config is an error.
func ensureConfigLoaded(explicit bool) error {
	viper.SetDefault("baseURL", appconfig.DefaultBaseURL)
	viper.SetDefault("debug", false)
	viper.SetDefault("jsonMode", false)
	viper.SetDefault("plain", false)

	path, err := appconfig.ResolvePath(cfgFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return err
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

// getConfig returns the loaded application configuration for other packages.
func getConfig() *appconfig.Config {
	if currentConfig == nil {
		return &appconfig.Config{}
	}
	return currentConfig
}

// newClient builds the API client from the merged configuration.
func newClient(cfg *appconfig.Config) *benchmark.Client {
	return benchmark.NewClient(cfg.ServiceURL(),
		benchmark.WithAPIKey(cfg.APIKey),
		benchmark.WithTimeout(cfg.RequestTimeout()),
	)
}

// pollingPolicy converts the configured intervals into a cadence policy.
func pollingPolicy(cfg *appconfig.Config) cadence.Policy {
	return cadence.Policy{
		StatusInterval:        cfg.StatusPollInterval(),
		SnapshotInterval:      cfg.ResultPollInterval(),
		FinalSnapshotAttempts: cfg.FinalSnapshotRetries(),
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// Helper accessors (reflect merged Viper state)
func DebugEnabled() bool    { return viper.GetBool("debug") }
func JSONModeEnabled() bool { return viper.GetBool("jsonMode") }
