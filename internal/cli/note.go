package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/g960059/ehrsim/internal/api"
)

func newNoteCmd(rt *env) *cobra.Command {
	noteCmd := &cobra.Command{
		Use:     "note",
		Aliases: []string{"notes"},
		Short:   "Write and read session notes",
	}

	var req api.AddNoteRequest
	addCmd := &cobra.Command{
		Use:   "add <session-id>",
		Short: "Add a note to a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "session id")
			if err != nil {
				return err
			}
			n, err := rt.api().AddNote(cmd.Context(), id, req)
			if err != nil {
				return err
			}
			if rt.jsonOut {
				return writeJSON(cmd.OutOrStdout(), n)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "added note %d to session %d\n", n.ID, n.SessionID)
			return err
		},
	}
	addCmd.Flags().Int64Var(&req.UserID, "user", 0, "author user id")
	addCmd.Flags().StringVar(&req.Content, "content", "", "note text")
	addCmd.Flags().BoolVar(&req.AttachVitals, "attach-vitals", false, "store the session's current vitals with the note")

	var deleteUser int64
	deleteCmd := &cobra.Command{
		Use:   "delete <note-id>",
		Short: "Delete one of your notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "note id")
			if err != nil {
				return err
			}
			if err := rt.api().DeleteNote(cmd.Context(), id, deleteUser); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted note %d\n", id)
			return err
		},
	}
	deleteCmd.Flags().Int64Var(&deleteUser, "user", 0, "author user id")

	noteCmd.AddCommand(
		addCmd,
		deleteCmd,
		&cobra.Command{
			Use:   "list <session-id>",
			Short: "List a session's notes oldest first",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0], "session id")
				if err != nil {
					return err
				}
				notes, err := rt.api().GetNotes(cmd.Context(), id)
				if err != nil {
					return err
				}
				if rt.jsonOut {
					return writeJSON(cmd.OutOrStdout(), notes)
				}
				for _, n := range notes {
					writeNote(cmd.OutOrStdout(), n)
				}
				return nil
			},
		},
	)
	return noteCmd
}
