package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qisumi/qisumi-tui/internal/auth"
	"github.com/qisumi/qisumi-tui/internal/logger"
	"github.com/qisumi/qisumi-tui/internal/tui"
)

func tuiCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive UI (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, e)
		},
	}
}

// runTUI opens the UI on the stored login, or on the login form when
// there is none
func runTUI(cmd *cobra.Command, e *env) error {
	if e.logStderr {
		return errors.New("--log-stderr cannot be used with the interactive UI")
	}
	s, err := e.app.Resume(cmd.Context())
	if err != nil && !errors.Is(err, auth.ErrNoCredential) {
		return err
	}
	logger.Main.Info("tui start", "signed_in", s != nil)
	if err := tui.Run(cmd.Context(), e.app, s); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
