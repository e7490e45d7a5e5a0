package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newJobsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Run the cron scheduler until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := flags.settings()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, s)
			if err != nil {
				return err
			}
			defer a.Close()

			sched, err := newScheduler(a)
			if err != nil {
				return err
			}
			sched.Start()
			log.WithField("jobs", sched.Names()).Info("Scheduler started")
			<-ctx.Done()
			sched.Stop(cmd.Context())
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the registered jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := flags.settings()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer a.Close()
			sched, err := newScheduler(a)
			if err != nil {
				return err
			}
			for _, name := range sched.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run <name>",
		Short: "Run one job now, honouring the distributed lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.settings()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer a.Close()
			sched, err := newScheduler(a)
			if err != nil {
				return err
			}
			if err := sched.Run(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("job %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s done\n", args[0])
			return nil
		},
	})
	return cmd
}
