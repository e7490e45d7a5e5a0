package cli

import (
	"os"

	"github.com/spf13/cobra"

	"playas/internal/config"
	"playas/internal/logging"
)

func Execute() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	debug bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:          "playas",
		Short:        "Parking lot management service",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newServeCmd(flags),
		newWorkerCmd(flags),
		newJobsCmd(flags),
		newMigrateCmd(flags),
		newSeedCmd(flags),
		newCreateAdminCmd(flags),
	)
	return cmd
}

// settings loads configuration and configures logging; every subcommand starts here.
func (f *rootFlags) settings() (*config.Settings, error) {
	s, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Init(s.LogLevel, f.debug)
	return s, nil
}
