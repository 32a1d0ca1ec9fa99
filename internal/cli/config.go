package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/qisumi/qisumi-tui/internal/config"
)

func configCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage qisumi configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show merged configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(e.cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "# Merged configuration (defaults + global + project + environment)")
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file paths",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			for _, p := range []struct{ name, path string }{
				{"Global:", e.paths.Global},
				{"Project:", e.paths.Project},
				{"Env file:", e.paths.EnvFile},
				{"Credentials:", e.cfg.CredentialsPath},
				{"Cache:", e.cfg.CachePath},
				{"Log:", e.cfg.LogFile},
			} {
				state := "missing"
				if _, err := os.Stat(p.path); err == nil {
					state = "exists"
				}
				fmt.Fprintf(w, "  %-13s %s (%s)\n", p.name, p.path, state)
			}
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default global configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(e.paths.Global); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", e.paths.Global)
			}
			cfg := config.Default(e.paths.Dir)
			cfg.APIBaseURL = e.cfg.APIBaseURL
			if err := config.Save(cfg, e.paths.Global); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", e.paths.Global)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
