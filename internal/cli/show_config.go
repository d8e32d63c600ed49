// internal/cli/show_config.go
package sweepwatch

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwiater/sweepwatch/internal/appconfig"
)

var showConfigCheck bool

// showConfigCmd implements 'show config', which prints the merged settings.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long: `Show the effective settings after the config file, flags and defaults are merged.
With --check the config file is validated on its own, without flag overrides.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		if showConfigCheck {
			cfg, err := appconfig.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Config file %s is valid (base URL %s)\n", cfg.ConfigPath, cfg.ServiceURL())
			return nil
		}
		appconfig.ShowConfig(w, viper.ConfigFileUsed(), *getConfig())
		return nil
	},
}

func init() {
	showConfigCmd.Flags().BoolVar(&showConfigCheck, "check", false, "validate the config file without flag overrides")
	showCmd.AddCommand(showConfigCmd)
}
