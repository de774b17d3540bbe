package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tenantops/graphadm/internal/graph/directory"
	"github.com/tenantops/graphadm/internal/report"
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Group membership and ownership",
}

var groupAddOwnersCmd = &cobra.Command{
	Use:   "add-owners [input-csv]",
	Short: "Add owners to groups from a CSV of (groupId, ownerUpn) pairs",
	Long: `Reads (groupId, ownerUpn) rows from the input file and adds each owner to
its group. Users who already own the group are skipped. Failures are
recorded per row; the run continues past them.`,
	Args: cobra.ExactArgs(1),
	RunE: runGroupAddOwners,
}

func init() {
	groupCmd.AddCommand(groupAddOwnersCmd)
	rootCmd.AddCommand(groupCmd)
}

func runGroupAddOwners(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	assignments, err := directory.ParseOwnerAssignments(f)
	if err != nil {
		return err
	}
	if len(assignments) == 0 {
		cmd.Println("No assignments in input file.")
		return nil
	}

	ctx := cmd.Context()
	sess, err := newSession(ctx)
	if err != nil {
		return err
	}
	dir := directory.NewService(sess.client)

	results := dir.AddOwners(ctx, assignments)

	path := reportPath("add_owners")
	w, err := report.NewWriter(path, directory.AddOwnersHeader)
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
