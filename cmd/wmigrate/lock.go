package main

import (
	"github.com/spf13/cobra"
)

func newLockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lock",
		Short: "Manually acquire the migration lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.engine.Lock(cmd.Context()); err != nil {
				return a.cli.Failure(err, "failed to acquire migration lock")
			}
			a.cli.Info("migration lock acquired")
			return nil
		},
	}
}

func newUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Manually release the migration lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.engine.Unlock(cmd.Context()); err != nil {
				return a.cli.Failure(err, "failed to release migration lock")
			}
			a.cli.Info("migration lock released")
			return nil
		},
	}
}
