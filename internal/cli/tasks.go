package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/qisumi/qisumi-tui/internal/app"
	"github.com/qisumi/qisumi-tui/internal/cache"
	"github.com/qisumi/qisumi-tui/internal/duration"
	"github.com/qisumi/qisumi-tui/internal/edit"
	"github.com/qisumi/qisumi-tui/internal/fields"
	"github.com/qisumi/qisumi-tui/internal/model"
	"github.com/qisumi/qisumi-tui/internal/reconcile"
)

func tasksCmd(e *env) *cobra.Command {
	var (
		sortMode  string
		completed bool
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List open tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := e.cfg.Sort()
			if sortMode != "" {
				m, err := reconcile.ParseSortMode(sortMode)
				if err != nil {
					return err
				}
				mode = m
			}
			s, err := e.session(cmd)
			if err != nil {
				return err
			}
			key := cache.Tasks
			if completed {
				key = cache.CompletedTasks
			}
			if _, err := s.Tracker.Fetch(cmd.Context(), key); err != nil {
				return err
			}
			view := reconcile.TaskList(s.Cache, key, mode)
			if asJSON {
				tasks := make([]model.Task, 0, len(view.Cards))
				for _, c := range view.Cards {
					tasks = append(tasks, c.Task)
				}
				return writeJSON(cmd.OutOrStdout(), tasks)
			}
			printList(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.Flags().StringVarP(&sortMode, "sort", "s", "", "Sort mode: focusToday, updatedAt, createdAt or dueAt")
	cmd.Flags().BoolVar(&completed, "completed", false, "List completed tasks instead")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func taskCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Show, create, edit and delete tasks",
	}
	cmd.AddCommand(taskShowCmd(e), taskNewCmd(e), taskSetCmd(e), taskRmCmd(e))
	return cmd
}

func taskShowCmd(e *env) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show a task with its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := e.session(cmd)
			if err != nil {
				return err
			}
			view, err := loadDetail(cmd, s, id)
			if err != nil {
				return err
			}
			if asJSON {
				task := view.Task
				task.Steps = view.Steps
				return writeJSON(cmd.OutOrStdout(), task)
			}
			printDetail(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func taskNewCmd(e *env) *cobra.Command {
	var (
		fromText    bool
		description string
		priority    string
		focus       bool
		due         string
	)
	cmd := &cobra.Command{
		Use:   "new TITLE",
		Short: "Create a task",
		Long: `Create a task. With --from-text the argument is free text the assistant
turns into a task with steps.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			s, err := e.session(cmd)
			if err != nil {
				return err
			}
			if fromText {
				detail, err := s.Dispatch.CreateTaskFromText(cmd.Context(), text)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "#%d %s (%d steps)\n", detail.Task.ID, detail.Task.Title, len(detail.Task.Steps))
				return nil
			}

			t := model.NewTask{Title: text, Description: description, IsFocusToday: focus}
			if priority != "" {
				t.Priority = model.Priority(priority)
				if !t.Priority.Valid() {
					return fmt.Errorf("unknown priority %q", priority)
				}
			}
			if due != "" {
				d, err := time.ParseInLocation(fields.DateLayout, due, time.Local)
				if err != nil {
					return fmt.Errorf("due date must look like %s", fields.DateLayout)
				}
				t.DueAt = &d
			}
			created, err := s.Dispatch.CreateTask(cmd.Context(), t)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "#%d %s\n", created.ID, created.Title)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromText, "from-text", false, "Let the assistant build the task from free text")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Task description")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "low, medium or high")
	cmd.Flags().BoolVar(&focus, "focus", false, "Mark as focus for today")
	cmd.Flags().StringVar(&due, "due", "", "Due date ("+fields.DateLayout+")")
	return cmd
}

func taskSetCmd(e *env) *cobra.Command {
	var (
		title       string
		description string
		status      string
		priority    string
		focus       bool
		due         string
	)
	cmd := &cobra.Command{
		Use:   "set ID",
		Short: "Edit task fields",
		Long: `Edit one or more fields of a task. Each field is sent on its own;
an empty --due clears the due date.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := e.session(cmd)
			if err != nil {
				return err
			}
			if _, err := loadDetail(cmd, s, id); err != nil {
				return err
			}

			flags := cmd.Flags()
			type setter func(model.Task) error
			var setters []setter
			if flags.Changed("title") {
				setters = append(setters, func(t model.Task) error { return setField(cmd, s, fields.TaskTitle, t, title) })
			}
			if flags.Changed("description") {
				setters = append(setters, func(t model.Task) error { return setField(cmd, s, fields.TaskDescription, t, description) })
			}
			if flags.Changed("status") {
				setters = append(setters, func(t model.Task) error {
					return setField(cmd, s, fields.TaskStatus, t, model.TaskStatus(status))
				})
			}
			if flags.Changed("priority") {
				setters = append(setters, func(t model.Task) error {
					return setField(cmd, s, fields.TaskPriority, t, model.Priority(priority))
				})
			}
			if flags.Changed("focus") {
				setters = append(setters, func(t model.Task) error { return setField(cmd, s, fields.TaskFocus, t, focus) })
			}
			if flags.Changed("due") {
				setters = append(setters, func(t model.Task) error { return setField(cmd, s, fields.TaskDueAt, t, due) })
			}
			if len(setters) == 0 {
				return fmt.Errorf("nothing to set; pass at least one field flag")
			}

			for _, set := range setters {
				t, ok := s.Cache.Task(id)
				if !ok {
					return fmt.Errorf("task %d not found", id)
				}
				if err := set(t); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&status, "status", "", "todo, in_progress, done or cancelled")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium or high")
	cmd.Flags().BoolVar(&focus, "focus", false, "Focus for today")
	cmd.Flags().StringVar(&due, "due", "", "Due date ("+fields.DateLayout+"), empty clears")
	return cmd
}

func taskRmCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := e.session(cmd)
			if err != nil {
				return err
			}
			return s.Dispatch.DeleteTask(cmd.Context(), id)
		},
	}
}

// setField runs one edit of attr on e to v through the dispatcher
func setField[E model.Entity, T any](cmd *cobra.Command, s *app.Session, attr fields.Attr[E, T], e E, v T) error {
	ed := fields.NewEditor(attr, e)
	out, err := ed.Set(cmd.Context(), v, s.Dispatch.Submit)
	if err != nil {
		return err
	}
	if out == edit.Unchanged {
		fmt.Fprintf(cmd.OutOrStdout(), "%s unchanged\n", attr.Name)
	}
	return nil
}

func loadDetail(cmd *cobra.Command, s *app.Session, id uint64) (reconcile.DetailView, error) {
	_, err := s.Tracker.Fetch(cmd.Context(), cache.TaskDetail(id))
	view := reconcile.TaskDetail(s.Cache, id)
	if view.NotFound {
		return view, fmt.Errorf("task %d not found", id)
	}
	if err != nil {
		return view, err
	}
	return view, nil
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printList(w io.Writer, view reconcile.ListView) {
	if len(view.Cards) == 0 {
		fmt.Fprintln(w, "No tasks")
		return
	}
	fmt.Fprintf(w, "Sorted by %s\n", view.Mode.Label())
	for _, c := range view.Cards {
		t := c.Task
		focus := " "
		if t.IsFocusToday {
			focus = "★"
		}
		due := ""
		if t.DueAt != nil {
			due = "  due " + t.DueAt.In(time.Local).Format(fields.DateLayout)
		}
		fmt.Fprintf(w, "%s %s #%-5d %-40s %d/%d  %s%s\n",
			focus, t.Status.Icon(), t.ID, truncate(t.Title, 40), c.Done, c.Total, t.Priority.Label(), due)
	}
}

func printDetail(w io.Writer, v reconcile.DetailView) {
	t := v.Task
	fmt.Fprintf(w, "#%d %s\n", t.ID, t.Title)
	fmt.Fprintf(w, "  %-10s %s %s\n", "Status:", t.Status.Icon(), t.Status.Label())
	fmt.Fprintf(w, "  %-10s %s\n", "Priority:", t.Priority.Label())
	if t.IsFocusToday {
		fmt.Fprintf(w, "  %-10s %s\n", "Focus:", "★ today")
	}
	if due := fields.TaskDueAt.Get(t); due != "" {
		fmt.Fprintf(w, "  %-10s %s\n", "Due:", due)
	}
	fmt.Fprintf(w, "  %-10s %d/%d (%.0f%%)\n", "Progress:", v.Done, v.Total, v.Ratio()*100)
	fmt.Fprintf(w, "  %-10s %s\n", "Estimate:", duration.Of(v.EstimateMinutes()).Label)
	if t.Description != "" {
		fmt.Fprintf(w, "\n  %s\n", strings.ReplaceAll(t.Description, "\n", "\n  "))
	}
	if len(v.Steps) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSteps:")
	for _, st := range v.Steps {
		line := fmt.Sprintf("  %s %d. %s [#%d]", st.Status.Icon(), st.OrderIndex, st.Title, st.ID)
		if st.EstimateMinutes != nil && *st.EstimateMinutes > 0 {
			line += "  " + duration.ToDisplay(st.EstimateMinutes).Label
		}
		if st.Blocked() && st.BlockingReason != "" {
			line += "  ⊘ " + st.BlockingReason
		}
		fmt.Fprintln(w, line)
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
