// Package cli is the qisumi command line. Without a subcommand it opens
// the terminal UI.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/qisumi/qisumi-tui/internal/app"
	"github.com/qisumi/qisumi-tui/internal/auth"
	"github.com/qisumi/qisumi-tui/internal/config"
	"github.com/qisumi/qisumi-tui/internal/logger"
	"github.com/qisumi/qisumi-tui/internal/notify"
)

// env carries what every command needs once the root has run
type env struct {
	// flags
	configFile string
	apiURL     string
	verbose    bool
	logStderr  bool

	paths  config.Paths
	cfg    *config.Config
	app    *app.App
	closer io.Closer
}

// Execute runs the root command
func Execute(version string) error {
	root, e := newRootCmd(version)
	defer e.close()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func newRootCmd(version string) (*cobra.Command, *env) {
	e := &env{}
	root := &cobra.Command{
		Use:   "qisumi",
		Short: "qisumi - tasks, steps and an assistant in your terminal",
		Long: `qisumi is a terminal client for the qisumi task backend.

Run it without arguments to open the interactive UI, or use the
subcommands to script against your tasks.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, e)
		},
	}

	root.PersistentFlags().StringVar(&e.configFile, "config", "", "Global config file (default ~/.qisumi/config.yaml)")
	root.PersistentFlags().StringVar(&e.apiURL, "api", "", "Backend API base URL")
	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&e.logStderr, "log-stderr", false, "Log to stderr instead of the log file")

	root.AddCommand(
		tuiCmd(e),
		loginCmd(e),
		logoutCmd(e),
		tasksCmd(e),
		taskCmd(e),
		stepCmd(e),
		chatCmd(e),
		settingsCmd(e),
		estimateCmd(),
		configCmd(e),
	)
	return root, e
}

// setup loads configuration and logging. Commands that never talk to the
// backend skip the App.
func (e *env) setup(cmd *cobra.Command) error {
	e.paths = config.DefaultPaths()
	if e.configFile != "" {
		e.paths.Global = e.configFile
	}
	cfg, err := config.LoadFrom(e.paths)
	if err != nil {
		return err
	}
	if e.apiURL != "" {
		cfg.APIBaseURL = e.apiURL
	}
	e.cfg = cfg

	opts := logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile}
	if e.verbose {
		opts.Level = "debug"
	}
	opts.Stderr = e.logStderr
	closer, err := logger.Init(opts)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	e.closer = closer
	logger.Main.Debug("command start", "cmd", cmd.CommandPath(), "api", cfg.APIBaseURL)

	e.app = app.New(cfg)
	return nil
}

// session resumes the stored login and prints every toast to stderr
func (e *env) session(cmd *cobra.Command) (*app.Session, error) {
	e.app.Toasts.OnNotify(func(t notify.Toast) {
		mark := "✓"
		if t.Level == notify.Error {
			mark = "✗"
		}
		fmt.Fprintln(cmd.ErrOrStderr(), mark, t.Message)
	})
	s, err := e.app.Resume(cmd.Context())
	if errors.Is(err, auth.ErrNoCredential) {
		return nil, errors.New("not logged in; run `qisumi login` first")
	}
	return s, err
}

func (e *env) close() {
	if e.app != nil {
		if err := e.app.Close(); err != nil {
			logger.Main.Warn("close app", "error", err)
		}
	}
	if e.closer != nil {
		e.closer.Close()
	}
}
