package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/symfarm/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		// Compile to surface template and regex errors up front.
		if _, err := cfg.Compile(); err != nil {
			return err
		}

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# config file: %s\n%s", configFileInUse(), out)
		return nil
	},
}

func configFileInUse() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath() + " (defaults apply if absent)"
}
