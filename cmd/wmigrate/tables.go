package main

import (
	"github.com/spf13/cobra"
)

func newCreateTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-tables",
		Short: "Provision the ledger and lock tables (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.engine.CreateLedgerTable(cmd.Context()); err != nil {
				return a.cli.Failure(err, "failed to create ledger table")
			}
			if err := a.engine.CreateLockTable(cmd.Context()); err != nil {
				return a.cli.Failure(err, "failed to create lock table")
			}
			a.cli.Info("bookkeeping tables are ready")
			return nil
		},
	}
}
