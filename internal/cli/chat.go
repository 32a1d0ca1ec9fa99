package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qisumi/qisumi-tui/internal/cache"
	"github.com/qisumi/qisumi-tui/internal/model"
)

func chatCmd(e *env) *cobra.Command {
	var taskID uint64
	cmd := &cobra.Command{
		Use:   "chat MESSAGE",
		Short: "Talk to the assistant",
		Long: `Send a message to the global assistant, or with --task to the chat of
one task, and print the reply.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.session(cmd)
			if err != nil {
				return err
			}
			sessionID, err := s.ChatSession(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			reply, err := s.Dispatch.SendMessage(cmd.Context(), sessionID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			printMessage(cmd.OutOrStdout(), reply.AssistantMessage)
			if reply.ChangedTasks() {
				fmt.Fprintf(cmd.OutOrStdout(), "(%d task changes applied)\n", len(reply.TaskPatches))
			}
			return nil
		},
	}
	cmd.PersistentFlags().Uint64Var(&taskID, "task", 0, "Chat of this task instead of the global assistant")

	cmd.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Print the transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.session(cmd)
			if err != nil {
				return err
			}
			sessionID, err := s.ChatSession(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			if _, err := s.Tracker.Fetch(cmd.Context(), cache.SessionMessages(sessionID)); err != nil {
				return err
			}
			msgs := s.Messages(sessionID)
			if len(msgs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No messages")
			}
			for _, m := range msgs {
				printMessage(cmd.OutOrStdout(), m)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Clear the transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.session(cmd)
			if err != nil {
				return err
			}
			sessionID, err := s.ChatSession(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			return s.Dispatch.ClearMessages(cmd.Context(), sessionID)
		},
	})
	return cmd
}

func printMessage(w io.Writer, m model.Message) {
	fmt.Fprintf(w, "%s: %s\n", m.Author(), m.Content)
}
