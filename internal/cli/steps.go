package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qisumi/qisumi-tui/internal/duration"
	"github.com/qisumi/qisumi-tui/internal/fields"
	"github.com/qisumi/qisumi-tui/internal/model"
)

func stepCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Add, edit and delete task steps",
	}
	cmd.AddCommand(stepAddCmd(e), stepSetCmd(e), stepRmCmd(e))
	return cmd
}

func stepAddCmd(e *env) *cobra.Command {
	var (
		detail   string
		estimate float64
		unit     string
	)
	cmd := &cobra.Command{
		Use:   "add TASK TITLE",
		Short: "Append a step to a task",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0])
			if err != nil {
				return err
			}
			step := model.NewStep{Title: strings.Join(args[1:], " "), Detail: detail}
			if cmd.Flags().Changed("estimate") {
				minutes, err := estimateMinutes(estimate, unit)
				if err != nil {
					return err
				}
				step.EstimateMinutes = &minutes
			}
			s, err := e.session(cmd)
			if err != nil {
				return err
			}
			added, err := s.Dispatch.AddStep(cmd.Context(), taskID, step)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "#%d %d. %s\n", added.ID, added.OrderIndex, added.Title)
			return nil
		},
	}
	cmd.Flags().StringVarP(&detail, "detail", "d", "", "Step detail")
	cmd.Flags().Float64Var(&estimate, "estimate", 0, "Estimate value in --unit")
	cmd.Flags().StringVar(&unit, "unit", string(duration.Minutes), "minutes, hours or days")
	return cmd
}

func stepSetCmd(e *env) *cobra.Command {
	var (
		title    string
		detail   string
		status   string
		reason   string
		estimate float64
		unit     string
		start    string
		end      string
	)
	cmd := &cobra.Command{
		Use:   "set TASK STEP",
		Short: "Edit step fields",
		Long: `Edit one or more fields of a step. The estimate is given as a value in
a unit (a working day is 8 hours); --start and --end set the planned window
together, use "" to clear either end.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0])
			if err != nil {
				return err
			}
			stepID, err := parseID(args[1])
			if err != nil {
				return err
			}
			s, err := e.session(cmd)
			if err != nil {
				return err
			}
			if _, err := loadDetail(cmd, s, taskID); err != nil {
				return err
			}

			flags := cmd.Flags()
			type setter func(model.TaskStep) error
			var setters []setter
			if flags.Changed("title") {
				setters = append(setters, func(st model.TaskStep) error { return setField(cmd, s, fields.StepTitle, st, title) })
			}
			if flags.Changed("detail") {
				setters = append(setters, func(st model.TaskStep) error { return setField(cmd, s, fields.StepDetail, st, detail) })
			}
			if flags.Changed("status") {
				setters = append(setters, func(st model.TaskStep) error {
					return setField(cmd, s, fields.StepStatus, st, model.StepStatus(status))
				})
			}
			if flags.Changed("reason") {
				setters = append(setters, func(st model.TaskStep) error {
					return setField(cmd, s, fields.StepBlockingReason, st, reason)
				})
			}
			if flags.Changed("estimate") {
				u, err := duration.ParseUnit(unit)
				if err != nil {
					return err
				}
				setters = append(setters, func(st model.TaskStep) error {
					return setField(cmd, s, fields.StepEstimate, st, duration.Draft{Value: estimate, Unit: u})
				})
			}
			if flags.Changed("start") || flags.Changed("end") {
				setters = append(setters, func(st model.TaskStep) error {
					w := fields.StepPlan.Get(st)
					if flags.Changed("start") {
						w.Start = start
					}
					if flags.Changed("end") {
						w.End = end
					}
					return setField(cmd, s, fields.StepPlan, st, w)
				})
			}
			if len(setters) == 0 {
				return fmt.Errorf("nothing to set; pass at least one field flag")
			}

			for _, set := range setters {
				st, ok := s.Cache.Step(stepID)
				if !ok || st.TaskID != taskID {
					return fmt.Errorf("step %d not found in task %d", stepID, taskID)
				}
				if err := set(st); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&detail, "detail", "", "New detail")
	cmd.Flags().StringVar(&status, "status", "", "locked, todo, in_progress, done or blocked")
	cmd.Flags().StringVar(&reason, "reason", "", "Blocking reason")
	cmd.Flags().Float64Var(&estimate, "estimate", 0, "Estimate value in --unit")
	cmd.Flags().StringVar(&unit, "unit", string(duration.Minutes), "minutes, hours or days")
	cmd.Flags().StringVar(&start, "start", "", "Planned start ("+fields.PlanLayout+")")
	cmd.Flags().StringVar(&end, "end", "", "Planned end ("+fields.PlanLayout+")")
	return cmd
}

func stepRmCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "rm TASK STEP",
		Short: "Delete a step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0])
			if err != nil {
				return err
			}
			stepID, err := parseID(args[1])
			if err != nil {
				return err
			}
			s, err := e.session(cmd)
			if err != nil {
				return err
			}
			return s.Dispatch.DeleteStep(cmd.Context(), taskID, stepID)
		},
	}
}

func estimateMinutes(value float64, unit string) (int, error) {
	u, err := duration.ParseUnit(unit)
	if err != nil {
		return 0, err
	}
	if err := duration.Validate(value, u); err != nil {
		return 0, err
	}
	return duration.ToMinutes(value, u), nil
}

func estimateCmd() *cobra.Command {
	var (
		toMinutes bool
		unit      string
	)
	cmd := &cobra.Command{
		Use:   "estimate VALUE",
		Short: "Convert between stored minutes and display units",
		Long: `Show how a stored estimate in minutes is displayed, or with --to-minutes
convert a value in --unit back to stored minutes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v float64
			if _, err := fmt.Sscan(args[0], &v); err != nil {
				return fmt.Errorf("invalid number %q", args[0])
			}
			if toMinutes {
				m, err := estimateMinutes(v, unit)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), m)
				return nil
			}
			m := int(v)
			if float64(m) != v || m < 0 {
				return fmt.Errorf("stored estimates are whole non-negative minutes, got %q", args[0])
			}
			d := duration.Of(m)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%g %s\n", d.Label, d.Value, d.Unit)
			return nil
		},
	}
	cmd.Flags().BoolVar(&toMinutes, "to-minutes", false, "Convert VALUE in --unit to minutes")
	cmd.Flags().StringVar(&unit, "unit", string(duration.Minutes), "minutes, hours or days")
	return cmd
}
