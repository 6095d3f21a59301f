// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tomtom215/ibusplatform/internal/config"
)

// newRootCmd builds the command tree. Running the root command without a
// subcommand starts the platform.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "headunit",
		Short: "Run the BMW IBus head unit platform",
		Long: `headunit bridges a BMW IBus to a Bluetooth phone: steering wheel and
radio buttons control the phone's media player, and the phone's track
metadata is shown on the car's display.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return useConfigPath(configPath)
		},
	}
	root.SetVersionTemplate(`{{printf "headunit version %s\n" .Version}}`)
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		fmt.Sprintf("config file (default: $%s or %v)", config.ConfigPathEnvVar, config.DefaultConfigPaths))

	run := newRunCmd()
	root.RunE = run.RunE
	root.AddCommand(run, newValidateCmd(), newVersionCmd())
	return root
}

// useConfigPath points the loader at an explicit config file. Unlike the
// default search paths, an explicit file must exist.
func useConfigPath(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	return os.Setenv(config.ConfigPathEnvVar, path)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of headunit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "headunit version %s\n", version)
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithKoanf()
			if err != nil {
				return err
			}
			device, err := initialDevice(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration OK: device %s, serial %s, debug api %v\n",
				device, cfg.Serial.Port, cfg.Debug.Enabled)
			return nil
		},
	}
}
