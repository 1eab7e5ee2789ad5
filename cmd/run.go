package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// newRunCmd creates the 'run' subcommand.
func newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch every watched page once and act on changed fragments",
		Long: `Validates the watch configuration, loads the previous snapshots from the
storage location, fetches all pages concurrently, runs the actions of every
fragment that changed and saves the new snapshots.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, flags)
		},
	}
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("storage")
	return cmd
}

func runWatch(cmd *cobra.Command, flags runFlags) error {
	if flags.configPath == "" {
		return errors.New("a watch configuration is required (-c)")
	}
	if flags.storage == "" {
		return errors.New("a storage location is required (-s)")
	}
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if _, err := appInstance.Run(cmd.Context(), flags.configPath, flags.storage); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}
