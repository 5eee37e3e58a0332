package main

import (
	"github.com/spf13/cobra"
)

func newUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "up",
		Aliases: []string{"run"},
		Short:   "Apply all pending migrations as one batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.engine.Run(cmd.Context())
			if err != nil {
				return a.cli.Failure(err, "migration run aborted")
			}

			if res.Failed() {
				a.cli.WithField("executed", res.Executed).Warn("run finished with a partial failure")
				return res.Err
			}
			if len(res.Executed) == 0 {
				a.cli.Info("nothing to do, all migrations are applied")
				return nil
			}
			a.cli.WithFields(map[string]interface{}{
				"batch":    res.Batch,
				"executed": res.Executed,
			}).Infof("applied %d migration(s)", len(res.Executed))
			return nil
		},
	}
}
