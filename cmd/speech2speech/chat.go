package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RaghavMittal2005/speech2speech/graph"
)

func newChatCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		Example: `  # Start a new conversation
  speech2speech chat

  # Resume an existing thread
  speech2speech chat --thread 3f2a...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := env.build(cmd.Context(), env.cfg, env.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			thread := threadID(env.opts.ThreadID)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "thread %s (type exit to quit)\n", thread)
			return chatLoop(cmd.Context(), a.exec, thread, cmd.InOrStdin(), out)
		},
	}
}

// chatLoop reads one message per line until EOF or an exit word. Turn
// errors are reported and the loop continues.
func chatLoop(ctx context.Context, exec *graph.Executor, thread string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit", "q":
			return nil
		}

		printer := startTurnPrinter(out, exec.Events())
		state, err := exec.Run(ctx, thread, line)
		printer.finish(state)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}
