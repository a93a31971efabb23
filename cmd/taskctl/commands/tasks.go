// Package commands holds the taskctl subcommands. They read the state
// store directly and never touch the HTTP API or the event bus.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/taskloop/taskloop/internal/config"
	"github.com/taskloop/taskloop/internal/models"
	"github.com/taskloop/taskloop/internal/store"
)

func openStore() (store.StateStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	st, err := store.Open(cfg.StoreBackend, cfg.RedisURL, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return st, nil
}

func closeStore(st store.StateStore) {
	if err := st.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close state store: %v\n", err)
	}
}

// NewTasksCmd creates the tasks command group
func NewTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect stored tasks",
	}
	cmd.AddCommand(newTasksListCmd())
	cmd.AddCommand(newTasksGetCmd())
	return cmd
}

func newTasksListCmd() *cobra.Command {
	var userID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore(st)

			items, err := st.Query(context.Background(), store.Query{
				Prefix: models.TaskKeyPrefix(userID),
			})
			if err != nil {
				return fmt.Errorf("failed to query tasks: %w", err)
			}

			if len(items) == 0 {
				fmt.Println("No tasks found")
				return nil
			}

			if asJSON {
				for _, item := range items {
					fmt.Println(string(item.Value))
				}
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tDUE\tTITLE")
			for _, item := range items {
				var task models.Task
				if err := json.Unmarshal(item.Value, &task); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: skipping unreadable entry %s: %v\n", item.Key, err)
					continue
				}
				due := "-"
				if task.DueAt != nil {
					due = task.DueAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", task.ID, task.Status, task.Priority, due, task.Title)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id to list tasks for")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON, one task per line")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newTasksGetCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "get <task-id>",
		Short: "Print one task as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore(st)

			var task models.Task
			key := models.TaskKeyPrefix(userID) + args[0]
			if err := st.Get(context.Background(), key, &task); err != nil {
				return fmt.Errorf("failed to load task %s: %w", args[0], err)
			}

			out, err := json.MarshalIndent(task, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id owning the task")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
