package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/taskloop/taskloop/internal/models"
	"github.com/taskloop/taskloop/internal/store"
)

// NewAuditCmd creates the audit command group
func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}
	cmd.AddCommand(newAuditListCmd())
	return cmd
}

func newAuditListCmd() *cobra.Command {
	var userID string
	var taskID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's audit entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore(st)

			items, err := st.Query(context.Background(), store.Query{
				Prefix: models.AuditKeyPrefix(userID),
			})
			if err != nil {
				return fmt.Errorf("failed to query audit entries: %w", err)
			}

			var entries []*models.AuditEntry
			for _, item := range items {
				var entry models.AuditEntry
				if err := json.Unmarshal(item.Value, &entry); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: skipping unreadable entry %s: %v\n", item.Key, err)
					continue
				}
				if taskID != "" && entry.TaskID.String() != taskID {
					continue
				}
				entries = append(entries, &entry)
			}
			sort.Slice(entries, func(i, j int) bool {
				return entries[i].Timestamp.After(entries[j].Timestamp)
			})

			if len(entries) == 0 {
				fmt.Println("No audit entries found")
				return nil
			}

			if asJSON {
				for _, entry := range entries {
					raw, err := json.Marshal(entry)
					if err != nil {
						return err
					}
					fmt.Println(string(raw))
				}
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIMESTAMP\tACTION\tSOURCE\tTASK")
			for _, entry := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					entry.Timestamp.Format("2006-01-02 15:04:05"),
					entry.Action,
					entry.Source,
					entry.TaskID,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id to list audit entries for")
	cmd.Flags().StringVar(&taskID, "task", "", "Narrow to one task id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON, one entry per line")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
