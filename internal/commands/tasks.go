package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/daemon"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/models"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/optimistic"
)

var snoozeFor time.Duration

var TasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List and act on inbox tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List visible tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(c *daemon.Client) error {
			list, err := c.TaskList()
			if err != nil {
				return err
			}
			fmt.Print(renderTasks(list))
			return nil
		})
	},
}

func init() {
	TasksCmd.AddCommand(tasksListCmd)
	for _, action := range []optimistic.Action{
		optimistic.ActionComplete,
		optimistic.ActionDelete,
		optimistic.ActionIgnore,
		optimistic.ActionSnooze,
	} {
		TasksCmd.AddCommand(taskActionCmd(action))
	}
}

func taskActionCmd(action optimistic.Action) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(action) + " <task-id>",
		Short: strings.ToUpper(string(action[:1])) + string(action[1:]) + " a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var until time.Time
			if action == optimistic.ActionSnooze {
				if snoozeFor <= 0 {
					return fmt.Errorf("--for must be positive")
				}
				until = time.Now().Add(snoozeFor)
			}
			return withDaemon(func(c *daemon.Client) error {
				if err := c.TaskAction(string(action), args[0], until); err != nil {
					return fmt.Errorf("%s failed: %w", action, err)
				}
				fmt.Println(successStyle.Render(fmt.Sprintf("✅ %s: %s", action, args[0])))
				return nil
			})
		},
	}
	if action == optimistic.ActionSnooze {
		cmd.Flags().DurationVar(&snoozeFor, "for", 24*time.Hour, "How long to snooze")
	}
	return cmd
}

func renderTasks(list daemon.TaskListPayload) string {
	if len(list.Tasks) == 0 && len(list.PendingRemoval) == 0 {
		return dimStyle.Render("No tasks.") + "\n"
	}

	var b strings.Builder
	for _, t := range list.Tasks {
		b.WriteString(taskLine(t, false))
	}
	for _, t := range list.PendingRemoval {
		b.WriteString(taskLine(t, true))
	}
	return b.String()
}

func taskLine(t models.UserTask, pending bool) string {
	title := t.Title
	if title == "" {
		title = "(untitled)"
	}
	line := fmt.Sprintf("  • %s  %s", title, dimStyle.Render(t.ID))
	if t.Status == models.UserTaskSnoozed && t.SnoozedUntil != nil {
		line += dimStyle.Render("  snoozed until " + t.SnoozedUntil.Local().Format("Jan 2 15:04"))
	}
	if pending {
		line = dimStyle.Render(fmt.Sprintf("  ⋯ %s  %s  (waiting for server)", title, t.ID))
	}
	return line + "\n"
}
