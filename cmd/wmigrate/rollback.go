package main

import (
	"github.com/spf13/cobra"
)

func newRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rollback",
		Aliases: []string{"down"},
		Short:   "Revert the most recent migration batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.engine.Rollback(cmd.Context())
			if err != nil {
				return a.cli.Failure(err, "rollback aborted")
			}

			if res.Failed() {
				a.cli.WithField("reverted", res.Executed).Warn("rollback finished with a partial failure")
				return res.Err
			}
			if len(res.Executed) == 0 {
				a.cli.Info("nothing to roll back")
				return nil
			}
			a.cli.WithFields(map[string]interface{}{
				"batch":    res.Batch,
				"reverted": res.Executed,
			}).Infof("reverted %d migration(s)", len(res.Executed))
			return nil
		},
	}
}
