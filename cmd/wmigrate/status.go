package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			applied, err := a.engine.Applied(cmd.Context())
			if err != nil {
				return a.cli.Failure(err, "failed to read ledger")
			}
			files, err := a.engine.ScriptFiles()
			if err != nil {
				return a.cli.Failure(err, "failed to list scripts")
			}

			appliedSet := make(map[string]struct{}, len(applied))
			for _, name := range applied {
				appliedSet[name] = struct{}{}
			}

			appliedMark := color.New(color.FgGreen).SprintFunc()
			pendingMark := color.New(color.FgYellow).SprintFunc()

			for _, file := range files {
				name := strings.TrimSuffix(file, filepath.Ext(file))
				if _, ok := appliedSet[name]; ok {
					fmt.Printf("%s %s\n", appliedMark("applied"), file)
				} else {
					fmt.Printf("%s %s\n", pendingMark("pending"), file)
				}
			}

			// Ledger rows whose script no longer exists in the catalog.
			fileSet := make(map[string]struct{}, len(files))
			for _, file := range files {
				fileSet[strings.TrimSuffix(file, filepath.Ext(file))] = struct{}{}
			}
			for _, name := range applied {
				if _, ok := fileSet[name]; !ok {
					fmt.Printf("%s %s (no matching script)\n", appliedMark("applied"), name)
				}
			}
			return nil
		},
	}
}
