package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"focustimer/internal/control"
	"focustimer/internal/core/model"
	"focustimer/internal/platform"
)

func newRemoteCmds() []*cobra.Command {
	simple := func(action control.Action, short string) *cobra.Command {
		return &cobra.Command{
			Use:   string(action),
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return sendIntent(cmd, control.Intent{Action: action})
			},
		}
	}

	return []*cobra.Command{
		newToggleCmd(),
		newStartCmd(),
		simple(control.ActionPause, "Pause the running session"),
		simple(control.ActionResume, "Resume the paused session"),
		newStopCmd(),
		simple(control.ActionCancel, "Discard the active session"),
		simple(control.ActionRetime, "Move the session start to the configured custom start"),
		simple(control.ActionStatus, "Show the current session"),
		newOpenCmd(),
	}
}

func newToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "toggle [on|off]",
		Short:     "Drive the timer toward running (on) or paused (off)",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			intent := control.Intent{Action: control.ActionToggle}
			if len(args) == 0 {
				status, err := newClient().Status(cmd.Context())
				if err != nil {
					return err
				}
				intent.Running = status.Phase != model.PhaseRunning
			} else {
				switch strings.ToLower(args[0]) {
				case "on", "true", "1":
					intent.Running = true
				case "off", "false", "0":
					intent.Running = false
				default:
					return fmt.Errorf("toggle: expected on or off, got %q", args[0])
				}
			}
			return sendIntent(cmd, intent)
		},
	}
}

func newStartCmd() *cobra.Command {
	intent := control.Intent{Action: control.ActionStart}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a focus session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sendIntent(cmd, intent)
		},
	}
	cmd.Flags().StringVar(&intent.Title, "title", "", "session title (default from settings)")
	cmd.Flags().StringSliceVar(&intent.Tags, "tags", nil, "session tags")
	cmd.Flags().StringVar(&intent.LinkedTask, "task", "", "linked task reference")
	cmd.Flags().DurationVar(&intent.Planned, "planned", 0, "planned length, e.g. 25m (default from settings)")
	return cmd
}

func newStopCmd() *cobra.Command {
	intent := control.Intent{Action: control.ActionStop}
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Finish the active session and save it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sendIntent(cmd, intent)
		},
	}
	cmd.Flags().StringVar(&intent.Notes, "notes", "", "notes stored with the session")
	return cmd
}

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <focustimer://url>",
		Short: "Handle a focustimer:// URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent, err := control.ParseIntent(args[0])
			if err != nil {
				return err
			}
			return sendIntent(cmd, intent)
		},
	}
}

func newClient() *control.Client {
	return control.NewClient(platform.InstanceAddress(appName))
}

func sendIntent(cmd *cobra.Command, intent control.Intent) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	status, err := newClient().Do(ctx, intent)
	if err != nil {
		if status.Session != nil {
			printStatus(cmd.OutOrStdout(), intent.Action, status)
		}
		return err
	}
	printStatus(cmd.OutOrStdout(), intent.Action, status)
	return nil
}

func printStatus(out io.Writer, action control.Action, status control.Status) {
	if action != control.ActionStatus && !status.Applied {
		_, _ = fmt.Fprintf(out, "%s ignored (%s)\n", action, status.Phase)
		return
	}
	if session := status.Session; session != nil {
		_, _ = fmt.Fprintf(out, "saved %q %s (%s)\n", session.Title,
			time.Duration(session.DurationSeconds)*time.Second, session.ID)
	}

	switch {
	case status.SessionID == "":
		_, _ = fmt.Fprintf(out, "%s\n", status.Phase)
	case status.CountdownSeconds > 0:
		_, _ = fmt.Fprintf(out, "%s %q starts in %s\n", status.Phase, status.Title,
			time.Duration(status.CountdownSeconds)*time.Second)
	default:
		line := fmt.Sprintf("%s %q %s", status.Phase, status.Title, status.Elapsed)
		if status.RemainingSeconds != nil {
			line += fmt.Sprintf(" (%s left)", time.Duration(*status.RemainingSeconds)*time.Second)
		}
		_, _ = fmt.Fprintln(out, line)
	}
}
