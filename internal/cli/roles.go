package cli

import (
	"github.com/spf13/cobra"
)

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Print the role hierarchy",
	Long: `Resolve every role, its users, the roles it is granted to and its
database and schema privileges, then print the hierarchy as a forest rooted
at the --root roles (ACCOUNTADMIN by default). Roles no root can reach are
printed at the top level.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, closeFn, err := openService(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		return runRoleHierarchy(ctx, svc, cmd.OutOrStdout())
	},
}

func init() {
	rolesCmd.Flags().StringSliceVar(&flags.RootRoles, "root", nil, "root role of the printed forest (repeatable)")
}
