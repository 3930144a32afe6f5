package app

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/allsafeASM/rulegen/internal/config"
	"github.com/projectdiscovery/gologger"
	"github.com/spf13/cobra"
)

// cliFlags mirrors the environment configuration; set flags take precedence
type cliFlags struct {
	envFile     string
	logLevel    string
	source      string
	domainsFile string
	domainsBlob string
	sinks       []string
	resolvers   []string
	dnsTimeout  int
	rateLimit   int
	batchSize   int
	metricsAddr string
}

// NewRootCommand builds the rulegen command tree
func NewRootCommand(version string, opts ...Option) *cobra.Command {
	flags := &cliFlags{}

	rootCmd := &cobra.Command{
		Use:           "rulegen",
		Short:         "rulegen - builds per-project regex rules matching invalid domain suffixes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.envFile, "env-file", "", "Load environment variables from this file (default ./.env if present)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warning, error, fatal (env LOG_LEVEL)")
	pf.IntVar(&flags.dnsTimeout, "dns-timeout", 0, "Per-lookup DNS timeout in seconds (env DNS_TIMEOUT)")
	pf.IntVar(&flags.rateLimit, "rate-limit", 0, "Maximum DNS queries per second (env DNS_RATE_LIMIT)")
	pf.StringSliceVar(&flags.resolvers, "resolvers", nil, "DNS resolvers, host:port (env DNS_RESOLVERS)")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (env METRICS_ADDR)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Analyze all domains and store the generated rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := NewApplication(ctx, cfg, append([]Option{WithOutput(cmd.OutOrStdout())}, opts...)...)
			if err != nil {
				return err
			}
			defer app.Close()

			_, err = app.Run(ctx)
			return err
		},
	}
	runCmd.Flags().StringVar(&flags.source, "source", "", "Domain source: postgres, file, blob (env DOMAIN_SOURCE)")
	runCmd.Flags().StringVar(&flags.domainsFile, "domains-file", "", "CSV file of owner,domain lines (env DOMAINS_FILE)")
	runCmd.Flags().StringVar(&flags.domainsBlob, "domains-blob", "", "Blob of owner,domain lines (env DOMAINS_BLOB)")
	runCmd.Flags().StringSliceVar(&flags.sinks, "sinks", nil, "Rule sinks: postgres, blob, servicebus, stdout (env RULE_SINKS)")
	runCmd.Flags().IntVar(&flags.batchSize, "batch-size", 0, "Domains fetched per database query (env BATCH_SIZE)")

	checkCmd := &cobra.Command{
		Use:   "check <name>...",
		Short: "Run the validators on the given names and print a verdict for each",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if err := cfg.App.ValidateAppConfig(); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := NewApplication(ctx, cfg, append([]Option{WithOutput(cmd.OutOrStdout())}, opts...)...)
			if err != nil {
				return err
			}
			defer app.Close()

			_, err = app.Check(ctx, args)
			return err
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rulegen %s\n", version)
		},
	}

	rootCmd.AddCommand(runCmd, checkCmd, versionCmd)
	return rootCmd
}

// loadConfig reads the environment and applies any flags the user set
func loadConfig(cmd *cobra.Command, flags *cliFlags) (*config.Config, error) {
	if err := config.LoadEnvFile(flags.envFile); err != nil {
		return nil, err
	}

	cfg := config.Load()
	changed := cmd.Flags().Changed

	if changed("log-level") {
		cfg.App.LogLevel = flags.logLevel
	}
	if changed("dns-timeout") {
		cfg.App.DNSTimeout = flags.dnsTimeout
	}
	if changed("rate-limit") {
		cfg.App.DNSRateLimit = flags.rateLimit
	}
	if changed("resolvers") {
		cfg.App.DNSResolvers = flags.resolvers
	}
	if changed("metrics-addr") {
		cfg.App.MetricsAddr = flags.metricsAddr
	}
	if changed("source") {
		cfg.App.DomainSource = strings.ToLower(flags.source)
	}
	if changed("domains-file") {
		cfg.App.DomainsFile = flags.domainsFile
	}
	if changed("domains-blob") {
		cfg.App.DomainsBlob = flags.domainsBlob
	}
	if changed("sinks") {
		cfg.App.RuleSinks = nil
		for _, sink := range flags.sinks {
			cfg.App.RuleSinks = append(cfg.App.RuleSinks, strings.ToLower(strings.TrimSpace(sink)))
		}
	}
	if changed("batch-size") {
		cfg.App.BatchSize = flags.batchSize
	}

	gologger.Debug().Msgf("Configuration loaded (source: %s, sinks: %v)", cfg.App.DomainSource, cfg.App.RuleSinks)
	return cfg, nil
}

// Execute runs the root command with ctx
func Execute(ctx context.Context, version string) error {
	return NewRootCommand(version).ExecuteContext(ctx)
}
