package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/RaghavMittal2005/speech2speech/conversation"
)

func newThreadsCmd(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Inspect persisted conversation threads",
	}
	cmd.AddCommand(newThreadsListCmd(env), newThreadsShowCmd(env), newThreadsDeleteCmd(env))
	return cmd
}

func newThreadsListCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "List threads",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := env.open(cmd.Context(), env.cfg, env.logger)
			if err != nil {
				return err
			}
			defer ts.Close()
			if ts.lister == nil {
				return errors.New("checkpoint store does not support listing")
			}

			threads, err := ts.lister.List(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "THREAD\tMESSAGES\tUPDATED")
			for _, th := range threads {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", th.ThreadID, th.MessageCount, humanize.Time(th.UpdatedAt))
			}
			return tw.Flush()
		},
	}
}

func newThreadsShowCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "show <thread>",
		Short: "Print the history of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := env.open(cmd.Context(), env.cfg, env.logger)
			if err != nil {
				return err
			}
			defer ts.Close()

			state, err := ts.store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if state == nil {
				return fmt.Errorf("thread %q not found", args[0])
			}
			printHistory(cmd.OutOrStdout(), state)
			return nil
		},
	}
}

func newThreadsDeleteCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <thread>",
		Short:   "Delete a thread",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := env.open(cmd.Context(), env.cfg, env.logger)
			if err != nil {
				return err
			}
			defer ts.Close()
			if ts.lister == nil {
				return errors.New("checkpoint store does not support deletion")
			}
			return ts.lister.Delete(cmd.Context(), args[0])
		},
	}
}

func printHistory(w io.Writer, state *conversation.State) {
	for _, m := range state.Messages {
		switch m.Role {
		case conversation.RoleTool:
			if m.Result != nil {
				fmt.Fprintf(w, "tool[%s]: %s\n", m.ToolCallID, m.Result.Payload())
			}
		default:
			if m.Content != "" {
				fmt.Fprintf(w, "%s: %s\n", m.Role, m.Content)
			}
			for _, c := range m.ToolCalls {
				fmt.Fprintf(w, "  call[%s] %s %s\n", c.ID, c.Name, string(c.Arguments))
			}
		}
	}
}
