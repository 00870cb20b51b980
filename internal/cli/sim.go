package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/g960059/ehrsim/internal/api"
	"github.com/g960059/ehrsim/internal/appclient"
)

func newSimCmd(rt *env) *cobra.Command {
	simCmd := &cobra.Command{
		Use:     "sim",
		Aliases: []string{"session"},
		Short:   "Run and steer simulation sessions",
	}

	var scenarioID, userID int64
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a session for a scenario and user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := rt.api().StartSession(cmd.Context(), scenarioID, userID)
			return rt.printSession(cmd, st, err)
		},
	}
	startCmd.Flags().Int64Var(&scenarioID, "scenario", 0, "scenario id")
	startCmd.Flags().Int64Var(&userID, "user", 0, "user id")

	var reason string
	endCmd := &cobra.Command{
		Use:   "end <session-id>",
		Short: "End a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "session id")
			if err != nil {
				return err
			}
			st, err := rt.api().EndSession(cmd.Context(), id, reason)
			return rt.printSession(cmd, st, err)
		},
	}
	endCmd.Flags().StringVar(&reason, "reason", "", "user_end, target_met or timeout (default user_end)")

	var interval time.Duration
	watchCmd := &cobra.Command{
		Use:   "watch <session-id>",
		Short: "Follow a session until it ends",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "session id")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return rt.api().WatchSession(cmd.Context(), id, appclient.WatchOptions{PollInterval: interval}, func(st api.SessionState) error {
				if rt.jsonOut {
					return writeJSON(out, st)
				}
				writeSessionLine(out, st)
				return nil
			})
		},
	}
	watchCmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval")

	simCmd.AddCommand(
		startCmd,
		endCmd,
		watchCmd,
		&cobra.Command{
			Use:   "state <session-id>",
			Short: "Show a session snapshot",
			Args:  cobra.ExactArgs(1),
			RunE: rt.sessionAction(func(cmd *cobra.Command, id int64) (api.SessionState, error) {
				return rt.api().GetSession(cmd.Context(), id)
			}),
		},
		&cobra.Command{
			Use:   "pause <session-id>",
			Short: "Pause a running session",
			Args:  cobra.ExactArgs(1),
			RunE: rt.sessionAction(func(cmd *cobra.Command, id int64) (api.SessionState, error) {
				return rt.api().PauseSession(cmd.Context(), id)
			}),
		},
		&cobra.Command{
			Use:   "resume <session-id>",
			Short: "Resume a paused session",
			Args:  cobra.ExactArgs(1),
			RunE: rt.sessionAction(func(cmd *cobra.Command, id int64) (api.SessionState, error) {
				return rt.api().ResumeSession(cmd.Context(), id)
			}),
		},
		&cobra.Command{
			Use:   "adjust <session-id> <medication-id> <dose>",
			Short: "Set a new dose; it takes effect on the next tick",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0], "session id")
				if err != nil {
					return err
				}
				dose, err := strconv.ParseFloat(args[2], 64)
				if err != nil {
					return fmt.Errorf("invalid dose %q", args[2])
				}
				st, err := rt.api().AdjustMedication(cmd.Context(), id, args[1], dose)
				return rt.printSession(cmd, st, err)
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List live sessions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				list, err := rt.api().ListSessions(cmd.Context())
				if err != nil {
					return err
				}
				if rt.jsonOut {
					return writeJSON(cmd.OutOrStdout(), list)
				}
				for _, st := range list {
					writeSessionLine(cmd.OutOrStdout(), st)
				}
				return nil
			},
		},
	)
	return simCmd
}

func (r *env) sessionAction(fn func(*cobra.Command, int64) (api.SessionState, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "session id")
		if err != nil {
			return err
		}
		st, err := fn(cmd, id)
		return r.printSession(cmd, st, err)
	}
}

func (r *env) printSession(cmd *cobra.Command, st api.SessionState, err error) error {
	if err != nil {
		return err
	}
	if r.jsonOut {
		return writeJSON(cmd.OutOrStdout(), st)
	}
	writeSession(cmd.OutOrStdout(), st)
	return nil
}
