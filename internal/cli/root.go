package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/g960059/ehrsim/internal/appclient"
	"github.com/g960059/ehrsim/internal/config"
)

// Options wires the command tree. A nil Client is built from the socket
// flag on first use.
type Options struct {
	Client     *appclient.Client
	SocketPath string
	Version    string
}

type env struct {
	opts       Options
	socketPath string
	jsonOut    bool
	client     *appclient.Client
}

func (r *env) api() *appclient.Client {
	if r.client == nil {
		if r.opts.Client != nil {
			r.client = r.opts.Client
		} else {
			r.client = appclient.New(r.socketPath)
		}
	}
	return r.client
}

func NewRootCmd(opts Options) *cobra.Command {
	rt := &env{opts: opts}
	socketDefault := opts.SocketPath
	if socketDefault == "" {
		socketDefault = config.DefaultConfig().SocketPath
	}

	rootCmd := &cobra.Command{
		Use:           "ehrsim",
		Short:         "Clinical training simulator client",
		Long:          "ehrsim talks to a running ehrsimd to manage trainees, scenarios, live simulation sessions and session notes.",
		Version:       opts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&rt.socketPath, "socket", socketDefault, "ehrsimd unix socket path")
	rootCmd.PersistentFlags().BoolVar(&rt.jsonOut, "json", false, "print raw JSON")

	rootCmd.AddCommand(
		newUserCmd(rt),
		newScenarioCmd(rt),
		newSimCmd(rt),
		newNoteCmd(rt),
		newHealthCmd(rt),
	)
	return rootCmd
}

// Run executes the command tree and maps failures to exit status 1.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer, opts Options) int {
	cmd := NewRootCmd(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func newHealthCmd(rt *env) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that ehrsimd is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := rt.api().Health(cmd.Context())
			if err != nil {
				return err
			}
			if rt.jsonOut {
				return writeJSON(cmd.OutOrStdout(), h)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d live sessions, tick %dms, db schema v%d\n",
				h.Status, h.LiveSessions, h.TickIntervalMs, h.DBSchema)
			return err
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}
