package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/tenantops/graphadm/internal/graph/identity"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Managed identity administration",
}

var grantPermissions []string

var identityGrantCmd = &cobra.Command{
	Use:   "grant [msi-object-id]",
	Short: "Grant Microsoft Graph app roles to a managed identity",
	Long: `Assigns Graph application permissions to a managed identity's service
principal. Permission names (e.g. Directory.Read.All) are matched against
the Graph service principal's published app roles. Already-granted
permissions are skipped, so re-running is safe.

Example:
  graphadm identity grant 1b2c3d4e-... -p Directory.Read.All -p Mail.Send`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentityGrant,
}

func init() {
	identityGrantCmd.Flags().StringArrayVarP(
		&grantPermissions, "permission", "p", nil,
		"Graph app role to grant (can be repeated)")
	identityCmd.AddCommand(identityGrantCmd)
	rootCmd.AddCommand(identityCmd)
}

func runIdentityGrant(cmd *cobra.Command, args []string) error {
	if len(grantPermissions) == 0 {
		return errors.New("at least one --permission is required")
	}

	ctx := cmd.Context()
	sess, err := newSession(ctx)
	if err != nil {
		return err
	}
	svc := identity.NewService(sess.client)

	results, err := svc.GrantGraphRoles(ctx, args[0], grantPermissions)
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		row := res.Row()
		cmd.Printf("%-40s %s\n", row[0], row[2])
		if res.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		cmd.Printf("%d of %d grants failed\n", failed, len(results))
	}
	return nil
}
