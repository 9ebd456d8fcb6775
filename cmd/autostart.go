package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"focustimer/internal/platform"
)

func newAutostartCmd() *cobra.Command {
	autostart := &cobra.Command{Use: "autostart", Short: "Manage launching at login"}

	enable := &cobra.Command{
		Use:   "enable",
		Short: "Launch the tray app at login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			if err := platform.NewAutostart(appName).Enable(execPath); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "autostart enabled")
			return nil
		},
	}

	disable := &cobra.Command{
		Use:   "disable",
		Short: "Stop launching at login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := platform.NewAutostart(appName).Disable(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "autostart disabled")
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Report whether autostart is enabled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enabled, err := platform.NewAutostart(appName).Enabled()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "autostart enabled: %t\n", enabled)
			return nil
		},
	}

	autostart.AddCommand(enable, disable, status)
	return autostart
}
