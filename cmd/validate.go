package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pagewatch/internal/rules"
)

// newValidateCmd creates the 'validate' subcommand. It never touches storage
// or the network.
func newValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a watch configuration without fetching anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			pipelines, err := appInstance.Validate(configPath)
			if err != nil {
				lines := errorLines(err)
				for _, line := range lines {
					fmt.Fprintln(cmd.ErrOrStderr(), line)
				}
				return fmt.Errorf("%s: %d problem(s) found", configPath, len(lines))
			}
			targets := 0
			for _, url := range pipelines.URLs() {
				targets += len(pipelines.Targets(url))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d urls, %d targets)\n", configPath, len(pipelines.URLs()), targets)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "watch configuration file (JSON)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

// errorLines flattens structural and joined resolution errors into one
// message per problem.
func errorLines(err error) []string {
	var verrs rules.ValidationErrors
	if errors.As(err, &verrs) {
		lines := make([]string, len(verrs))
		for i, e := range verrs {
			lines[i] = e.Error()
		}
		return lines
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var lines []string
		for _, e := range joined.Unwrap() {
			lines = append(lines, errorLines(e)...)
		}
		return lines
	}
	return []string{err.Error()}
}
