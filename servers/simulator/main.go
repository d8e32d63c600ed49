// main.go
package main

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mwiater/sweepwatch/internal/logging"
	"github.com/mwiater/sweepwatch/internal/simulator"
)

var defaultConfigPath = filepath.Join("servers", "simulator", "simulator.yml")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, logPath string
	cmd := &cobra.Command{
		Use:          "simulator",
		Short:        "In-memory load-test service for sweepwatch",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, &cfg)

			if err := logging.InitWithConsole(logPath); err != nil {
				return err
			}
			defer logging.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Printf("simulator config: host=%s port=%d base_path=%s level=%dms tick=%dms fail_at_level=%d",
				cfg.Host, cfg.Port, cfg.BasePath, cfg.LevelDurationMillis, cfg.TickMillis, cfg.FailAtLevel)
			return simulator.New(cfg).Serve(ctx)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", defaultConfigPath, "simulator YAML config")
	f.StringVar(&logPath, "log", "", "also write the log to this file")
	f.Int("port", 0, "override the configured port")
	f.String("api-key", "", "override the configured API key")
	f.Int("fail-at-level", 0, "fail runs halfway through this concurrency level")
	return cmd
}

// applyFlags copies the overrides the user actually set onto cfg.
func applyFlags(cmd *cobra.Command, cfg *simulator.Config) {
	f := cmd.Flags()
	if f.Changed("port") {
		cfg.Port, _ = f.GetInt("port")
	}
	if f.Changed("api-key") {
		cfg.APIKey, _ = f.GetString("api-key")
	}
	if f.Changed("fail-at-level") {
		cfg.FailAtLevel, _ = f.GetInt("fail-at-level")
	}
}

// loadConfig reads the YAML config, falling back to defaults when the file
// at the default path does not exist.
func loadConfig(path string) (simulator.Config, error) {
	cfg, err := simulator.LoadConfig(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && path == defaultConfigPath {
		return simulator.DefaultConfig(), nil
	}
	return simulator.Config{}, err
}
