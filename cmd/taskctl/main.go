package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskloop/taskloop/cmd/taskctl/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "taskctl",
		Short: "Operations tool for the task lifecycle pipeline",
		Long:  "CLI tool for inspecting tasks and audit trails straight from the state store",
	}

	rootCmd.AddCommand(commands.NewTasksCmd())
	rootCmd.AddCommand(commands.NewAuditCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
