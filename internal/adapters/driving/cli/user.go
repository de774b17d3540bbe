package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tenantops/graphadm/internal/graph/directory"
	"github.com/tenantops/graphadm/internal/report"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User provisioning",
}

var userBulkCreateCmd = &cobra.Command{
	Use:   "bulk-create [input-csv]",
	Short: "Create users from a CSV, optionally assigning licenses",
	Long: `Reads (displayName, userPrincipalName, mailNickname, usageLocation,
licenseSku) rows and creates each user with a generated initial password.
Unknown license SKUs fail the whole run before any user is created; other
failures are recorded per row.

The output report contains the generated initial passwords. Treat it as a
secret and delete it once the passwords are handed over.`,
	Args: cobra.ExactArgs(1),
	RunE: runUserBulkCreate,
}

func init() {
	userCmd.AddCommand(userBulkCreateCmd)
	rootCmd.AddCommand(userCmd)
}

func runUserBulkCreate(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	users, err := directory.ParseNewUsers(f)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		cmd.Println("No users in input file.")
		return nil
	}

	ctx := cmd.Context()
	sess, err := newSession(ctx)
	if err != nil {
		return err
	}
	dir := directory.NewService(sess.client)

	results, err := dir.CreateUsers(ctx, users)
	if err != nil {
		return err
	}

	path := reportPath("bulk_users")
	w, err := report.NewWriter(path, directory.BulkCreateHeader)
	if err != nil {
		return err
	}
	defer w.Close()

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
		if err := w.Write(res.Row()); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	summarise(cmd, path, len(results), failed)
	cmd.Println("The report contains initial passwords; store it securely.")
	return nil
}
