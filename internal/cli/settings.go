package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qisumi/qisumi-tui/internal/cache"
	"github.com/qisumi/qisumi-tui/internal/model"
)

func settingsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the assistant's model settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the model settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.session(cmd)
			if err != nil {
				return err
			}
			if _, err := s.Tracker.Fetch(cmd.Context(), cache.LLMSettings); err != nil {
				return err
			}
			v, _ := s.Cache.Value(cache.LLMSettings)
			settings, _ := v.(model.LLMSettings)
			printSettings(cmd, settings)
			return nil
		},
	})

	var next model.LLMSettings
	set := &cobra.Command{
		Use:   "set",
		Short: "Change the model settings",
		Long: `Change the model settings. Flags not given keep their current value;
the API key is required the first time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.session(cmd)
			if err != nil {
				return err
			}
			if _, err := s.Tracker.Fetch(cmd.Context(), cache.LLMSettings); err != nil {
				return err
			}
			v, _ := s.Cache.Value(cache.LLMSettings)
			cur, _ := v.(model.LLMSettings)

			flags := cmd.Flags()
			merged := cur
			merged.APIKey = ""
			if flags.Changed("base-url") {
				merged.BaseURL = next.BaseURL
			}
			if flags.Changed("api-key") {
				merged.APIKey = next.APIKey
			}
			if flags.Changed("model") {
				merged.Model = next.Model
			}
			if flags.Changed("thinking") {
				merged.ThinkingType = next.ThinkingType
				merged.EnableThinking = next.ThinkingType != "" && next.ThinkingType != "disabled"
			}
			if flags.Changed("effort") {
				merged.ReasoningEffort = next.ReasoningEffort
			}
			if flags.Changed("name") {
				merged.AssistantName = next.AssistantName
			}

			saved, err := s.Dispatch.SaveLLMSettings(cmd.Context(), merged)
			if err != nil {
				return err
			}
			printSettings(cmd, *saved)
			return nil
		},
	}
	set.Flags().StringVar(&next.BaseURL, "base-url", "", "Model API base URL")
	set.Flags().StringVar(&next.APIKey, "api-key", "", "Model API key")
	set.Flags().StringVar(&next.Model, "model", "", "Model name")
	set.Flags().StringVar(&next.ThinkingType, "thinking", "", "Thinking mode, e.g. enabled or disabled")
	set.Flags().StringVar(&next.ReasoningEffort, "effort", "", "Reasoning effort")
	set.Flags().StringVar(&next.AssistantName, "name", "", "Assistant display name")
	cmd.AddCommand(set)
	return cmd
}

func printSettings(cmd *cobra.Command, s model.LLMSettings) {
	w := cmd.OutOrStdout()
	key := "not set"
	if s.HasAPIKey {
		key = "set"
	}
	fmt.Fprintf(w, "  %-12s %s\n", "Base URL:", valueOrDefault(s.BaseURL, "(default)"))
	fmt.Fprintf(w, "  %-12s %s\n", "Model:", valueOrDefault(s.Model, "(default)"))
	fmt.Fprintf(w, "  %-12s %s\n", "API key:", key)
	fmt.Fprintf(w, "  %-12s %s\n", "Thinking:", valueOrDefault(s.ThinkingType, "off"))
	fmt.Fprintf(w, "  %-12s %s\n", "Effort:", valueOrDefault(s.ReasoningEffort, "(default)"))
	fmt.Fprintf(w, "  %-12s %s\n", "Assistant:", valueOrDefault(s.AssistantName, "小奇"))
}

func valueOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
