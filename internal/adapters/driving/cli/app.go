package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tenantops/graphadm/internal/graph/apps"
	"github.com/tenantops/graphadm/internal/report"
)

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "App registrations",
}

var appBulkCreateCmd = &cobra.Command{
	Use:   "bulk-create [input-csv]",
	Short: "Register applications from a CSV, with backing service principals",
	Long: `Reads (displayName, signInAudience, redirectUris) rows, registers each
application, and creates its service principal. Redirect URIs are separated
by semicolons. Failures are recorded per row.`,
	Args: cobra.ExactArgs(1),
	RunE: runAppBulkCreate,
}

func init() {
	appCmd.AddCommand(appBulkCreateCmd)
	rootCmd.AddCommand(appCmd)
}

func runAppBulkCreate(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	inputs, err := apps.ParseNewApplications(f)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		cmd.Println("No applications in input file.")
		return nil
	}

	ctx := cmd.Context()
	sess, err := newSession(ctx)
	if err != nil {
		return err
	}
	svc := apps.NewService(sess.client)

	results := svc.CreateApplications(ctx, inputs)

	path := reportPath("bulk_apps")
	w, err := report.NewWriter(path, apps.BulkAppHeader)
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
	return nil
}
