// Package cli wires the graphadm subcommands. Each command opens one
// authenticated session, streams a Graph or Exchange collection, and writes
// a CSV report.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tenantops/graphadm/internal/config"
	"github.com/tenantops/graphadm/internal/exo"
	"github.com/tenantops/graphadm/internal/graph"
	"github.com/tenantops/graphadm/internal/logger"
	"github.com/tenantops/graphadm/internal/report"
	"github.com/tenantops/graphadm/internal/retry"
)

var (
	// Version is set by goreleaser ldflags.
	version = "dev"

	// Verbose enables debug logging.
	verbose bool

	// Persistent flags shared by every subcommand.
	configPath string
	outputPath string
)

// session is one authenticated run: loaded config plus the Graph client,
// with an Exchange Online client available on demand.
type session struct {
	cfg    *config.Config
	client *graph.Client
	newEXO func() *exo.Client
}

// newSession opens the session commands run against. Tests swap this out to
// point at a local server.
var newSession = openSession

func openSession(ctx context.Context) (*session, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ClientSecret == "" {
		secret, err := config.PromptSecret()
		if err != nil {
			return nil, err
		}
		if secret == "" {
			return nil, errors.New("client secret is required")
		}
		cfg.ClientSecret = secret
	}

	creds := graph.Credentials{
		TenantID:     cfg.TenantID,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}
	policy := retry.Policy{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay(),
	}

	client := graph.NewClient(ctx, creds,
		graph.WithRetryPolicy(policy),
		graph.WithRateLimiter(graph.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)),
	)

	return &session{
		cfg:    cfg,
		client: client,
		newEXO: func() *exo.Client {
			return exo.NewClient(ctx, creds, graph.WithRetryPolicy(policy))
		},
	}, nil
}

// reportPath resolves the output file for a report, preferring --out.
func reportPath(name string) string {
	if outputPath != "" {
		return outputPath
	}
	return report.DefaultPath(name)
}

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "graphadm",
	Short: "Tenant administration over Microsoft Graph and Exchange Online",
	Long: `Graphadm runs tenant-wide administrative jobs against Microsoft Graph and
the Exchange Online admin API: inventory reports, bulk provisioning, group
ownership, and permission audits.

Each command authenticates with app-only credentials, streams the relevant
collection page by page, and writes a CSV report.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string for the CLI.
func SetVersion(v string) {
	version = v
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the graphadm version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose debug output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.graphadm/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&outputPath, "out", "o", "", "report output file (default graphadm_<report>_<date>.csv)")

	// Set verbose mode before any command executes.
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		return nil
	}

	rootCmd.AddCommand(versionCmd)
}
