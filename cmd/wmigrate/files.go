package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/consensuslabs/warehouse-migrate/catalog"
)

func newFilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List the migration script files in catalog order",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Reads only the local scripts directory, no warehouse needed.
			cfg, _, cliLog, err := loadEnvAndConfig()
			if err != nil {
				return err
			}

			scripts, err := catalog.NewDir(cfg.Migrations.ScriptsDir).List()
			if err != nil {
				return cliLog.Failure(err, "failed to list scripts")
			}
			for _, script := range scripts {
				fmt.Println(script.FileName)
			}
			return nil
		},
	}
}
