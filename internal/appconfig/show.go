package appconfig

import (
	"fmt"
	"io"
)

// ShowConfig prints the effective configuration.
func ShowConfig(out io.Writer, file string, cfg Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	apiKey := "(not set)"
	if cfg.APIKey != "" {
		apiKey = "(set)"
	}
	archive := "(disabled)"
	if cfg.ArchiveEnabled() {
		archive = cfg.ArchivePath
	}

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Base URL:           %s\n", cfg.ServiceURL())
	fmt.Fprintf(out, "  API Key:            %s\n", apiKey)
	fmt.Fprintf(out, "  Status Poll:        %s\n", cfg.StatusPollInterval())
	fmt.Fprintf(out, "  Result Poll:        %s\n", cfg.ResultPollInterval())
	fmt.Fprintf(out, "  Final Snapshots:    %d\n", cfg.FinalSnapshotRetries())
	fmt.Fprintf(out, "  Reconnect Backoff:  %s .. %s\n", cfg.ReconnectInitial(), cfg.ReconnectMax())
	fmt.Fprintf(out, "  Request Timeout:    %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  Debug:              %v\n", cfg.Debug)
	fmt.Fprintf(out, "  JSON Mode:          %v\n", cfg.JSONMode)
	fmt.Fprintf(out, "  Plain:              %v\n", cfg.Plain)
	fmt.Fprintf(out, "  Log File:           %s\n", cfg.LogFilePath())
	fmt.Fprintf(out, "  Archive:            %s\n", archive)
}
