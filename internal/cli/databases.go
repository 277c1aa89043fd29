package cli

import (
	"github.com/spf13/cobra"
)

var databasesCmd = &cobra.Command{
	Use:   "databases",
	Short: "Print the database summary",
	Long: `List every database and summarize its schemas and the sequences,
streams, procedures, functions, tasks, stages and pipes inside them.

Databases are summarized --concurrency at a time. When --timeout minutes
pass, whatever has been gathered so far is printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, closeFn, err := openService(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		return runDatabaseSummary(ctx, svc, cmd.OutOrStdout())
	},
}

func init() {
	databasesCmd.Flags().IntVar(&flags.ConcurrentTasks, "concurrency", 0, "databases summarized at once (default 4)")
	databasesCmd.Flags().IntVar(&flags.TimeoutMinutes, "timeout", 0, "minutes to wait for all databases (default 10)")
}
