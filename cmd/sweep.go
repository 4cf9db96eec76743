package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/psytest/internal/retention"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete sessions and feedback past the retention age",
	RunE: func(cmd *cobra.Command, args []string) error {
		maxAge := cfg.Retention.MaxAge
		if v, _ := cmd.Flags().GetDuration("max-age"); v > 0 {
			maxAge = v
		}

		d, err := openDeps(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		sw := &retention.Sweeper{
			Sessions: d.store.Sessions(),
			Feedback: d.store.Feedback(),
			KV:       d.kv,
			MaxAge:   maxAge,
			Logger:   logger,
		}
		rep, err := sw.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d sessions and %d feedback entries created before %s; purged %d expired cache entries.\n",
			rep.Sessions, rep.Feedback, rep.Cutoff.Format("2006-01-02 15:04 MST"), rep.ExpiredKVPurged)
		return nil
	},
}

func init() {
	sweepCmd.Flags().Duration("max-age", 0, "Override retention.max_age (e.g. 720h)")
}
