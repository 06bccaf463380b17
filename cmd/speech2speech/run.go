package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newRunCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "run [message...]",
		Short: "Run a single turn and exit",
		Example: `  # Ask once
  speech2speech run "write hello.py that prints hello and run it"

  # Read the message from stdin
  echo "list files in chat_gpt" | speech2speech run -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.Join(args, " ")
			if len(args) == 0 || input == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read message from stdin: %w", err)
				}
				input = string(data)
			}
			input = strings.TrimSpace(input)
			if input == "" {
				return fmt.Errorf("message is required")
			}

			a, err := env.build(cmd.Context(), env.cfg, env.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			thread := threadID(env.opts.ThreadID)
			printer := startTurnPrinter(cmd.OutOrStdout(), a.exec.Events())
			state, err := a.exec.Run(cmd.Context(), thread, input)
			printer.finish(state)
			if err != nil {
				return err
			}
			if env.opts.ThreadID == "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "thread %s\n", thread)
			}
			return nil
		},
	}
}
