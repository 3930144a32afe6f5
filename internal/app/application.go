package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"time"

	"github.com/allsafeASM/rulegen/internal/azure"
	"github.com/allsafeASM/rulegen/internal/config"
	"github.com/allsafeASM/rulegen/internal/logging"
	"github.com/allsafeASM/rulegen/internal/metrics"
	"github.com/allsafeASM/rulegen/internal/models"
	"github.com/allsafeASM/rulegen/internal/notification"
	"github.com/allsafeASM/rulegen/internal/resolver"
	"github.com/allsafeASM/rulegen/internal/rules"
	"github.com/allsafeASM/rulegen/internal/storage/file"
	"github.com/allsafeASM/rulegen/internal/storage/postgres"
	"github.com/allsafeASM/rulegen/internal/validation"
	"github.com/google/uuid"
	"github.com/projectdiscovery/gologger"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// DomainSource yields the domains to analyze
type DomainSource interface {
	Domains(ctx context.Context) iter.Seq2[models.Domain, error]
}

// RuleSink persists the rules of one run
type RuleSink interface {
	StoreRules(ctx context.Context, runID string, rules []models.Rule) error
	Name() string
}

// Option customizes an Application
type Option func(*Application)

// WithSource replaces the configured domain source
func WithSource(source DomainSource) Option {
	return func(app *Application) { app.source = source }
}

// WithSinks replaces the configured rule sinks
func WithSinks(sinks ...RuleSink) Option {
	return func(app *Application) { app.sinks = sinks }
}

// WithValidator replaces the DNS-backed validator chain
func WithValidator(v validation.Validator) Option {
	return func(app *Application) { app.validator = v }
}

// WithRegistry registers metrics on reg instead of a fresh registry
func WithRegistry(reg *prometheus.Registry) Option {
	return func(app *Application) { app.registry = reg }
}

// WithOutput sets the writer used by the stdout sink and the check command
func WithOutput(w io.Writer) Option {
	return func(app *Application) { app.out = w }
}

// WithNotifier replaces the configured Discord notifier
func WithNotifier(n *notification.DiscordNotifier) Option {
	return func(app *Application) { app.notifier = n }
}

// Application represents the main application structure
type Application struct {
	config *config.Config
	out    io.Writer

	registry      *prometheus.Registry
	metrics       *metrics.Metrics
	metricsServer *metrics.Server

	db               *postgres.DB
	blobClient       *azure.BlobStorageClient
	serviceBusClient *azure.ServiceBusClient

	validator validation.Validator
	source    DomainSource
	sinks     []RuleSink
	notifier  *notification.DiscordNotifier
	newRunID  func() string
}

// NewApplication creates and initializes a new application instance.
// Storage clients are opened lazily by Run.
func NewApplication(ctx context.Context, cfg *config.Config, opts ...Option) (*Application, error) {
	app := &Application{
		config:   cfg,
		out:      os.Stdout,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(app)
	}

	if err := app.initialize(ctx); err != nil {
		app.Close()
		return nil, err
	}

	return app, nil
}

// initialize sets up the components every command needs
func (app *Application) initialize(ctx context.Context) error {
	logging.SetupLogging(app.config.App.LogLevel)

	if app.registry == nil {
		app.registry = prometheus.NewRegistry()
	}
	app.metrics = metrics.New(app.registry)
	if app.config.App.MetricsAddr != "" {
		app.metricsServer = metrics.StartServer(app.config.App.MetricsAddr, app.registry)
	}

	if app.notifier == nil {
		app.notifier = notification.NewDiscordNotifier(app.config.App.DiscordWebhookURL, app.config.App.NotificationTimeoutDuration())
	}

	if app.validator == nil {
		if err := app.initializeValidator(ctx); err != nil {
			return err
		}
	}

	return nil
}

// initializeValidator builds the syntax + wildcard chain on a dnsx resolver
func (app *Application) initializeValidator(ctx context.Context) error {
	opts := resolver.DefaultOptions()
	if len(app.config.App.DNSResolvers) > 0 {
		opts.Resolvers = app.config.App.DNSResolvers
	}
	opts.RateLimit = app.config.App.DNSRateLimit

	dnsResolver, err := resolver.New(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize DNS resolver: %w", err)
	}

	chain := validation.NewChain(
		validation.NewWildcardValidator(dnsResolver,
			validation.WithTimeout(app.config.App.DNSTimeoutDuration()),
			validation.WithMetrics(app.metrics),
		),
	)
	app.validator = chain

	gologger.Debug().Msgf("Validators: %v (resolvers: %v)", chain.Validators(), opts.Resolvers)
	return nil
}

// initializeStorage opens the configured source and sinks not supplied as options
func (app *Application) initializeStorage(ctx context.Context) error {
	cfg := app.config.App

	needsDB := (app.source == nil && cfg.DomainSource == config.SourcePostgres) ||
		(app.sinks == nil && cfg.HasSink(config.SinkPostgres))
	if needsDB && app.db == nil {
		db, err := postgres.Connect(ctx, app.config.Database.DSN())
		if err != nil {
			return err
		}
		app.db = db
	}

	needsBlob := (app.source == nil && cfg.DomainSource == config.SourceBlob) ||
		(app.sinks == nil && cfg.HasSink(config.SinkBlob))
	if needsBlob && app.blobClient == nil {
		client, err := azure.NewBlobStorageClient(app.config.Azure.BlobStorageConnectionString, app.config.Azure.BlobContainerName)
		if err != nil {
			return fmt.Errorf("failed to initialize Blob Storage client: %w", err)
		}
		app.blobClient = client
	}

	if app.source == nil {
		switch cfg.DomainSource {
		case config.SourcePostgres:
			app.source = postgres.NewDomainSource(app.db.Pool(), cfg.BatchSize)
		case config.SourceFile:
			fileSource := file.NewDomainSource(cfg.DomainsFile)
			if err := fileSource.Validate(); err != nil {
				return err
			}
			app.source = fileSource
		case config.SourceBlob:
			app.source = app.blobClient.DomainSource(cfg.DomainsBlob)
		default:
			return &config.ConfigError{Field: "DOMAIN_SOURCE", Message: fmt.Sprintf("Invalid domain source '%s'", cfg.DomainSource)}
		}
	}

	if app.sinks == nil {
		for _, name := range cfg.RuleSinks {
			sink, err := app.newSink(name)
			if err != nil {
				return err
			}
			app.sinks = append(app.sinks, sink)
		}
	}

	return nil
}

func (app *Application) newSink(name string) (RuleSink, error) {
	switch name {
	case config.SinkPostgres:
		return postgres.NewRuleRepository(app.db.Pool()), nil
	case config.SinkBlob:
		return app.blobClient, nil
	case config.SinkServiceBus:
		if app.serviceBusClient == nil {
			client, err := azure.NewServiceBusClient(app.config.Azure.ServiceBusConnectionString, app.config.Azure.QueueName)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize Service Bus client: %w", err)
			}
			app.serviceBusClient = client
		}
		return app.serviceBusClient, nil
	case config.SinkStdout:
		return NewStdoutSink(app.out), nil
	}
	return nil, &config.ConfigError{Field: "RULE_SINKS", Message: fmt.Sprintf("Invalid rule sink '%s'", name)}
}

// Run analyzes every domain of the source and stores the resulting rules
func (app *Application) Run(ctx context.Context) (models.RunSummary, error) {
	summary := models.RunSummary{
		RunID:     app.newRunID(),
		StartedAt: time.Now().UTC(),
	}

	if err := app.initializeStorage(ctx); err != nil {
		return app.fail(ctx, summary, err)
	}

	gologger.Info().Msgf("Starting rule generation run %s (source: %s, sinks: %s)", summary.RunID, app.config.App.DomainSource, sinkNames(app.sinks))
	app.notify(app.notifier.NotifyRunStarted(ctx, summary))

	analyzer := rules.NewAnalyzer(app.validator, app.metrics)
	generated, err := analyzer.MakeRules(ctx, app.source.Domains(ctx))
	summary = mergeStats(summary, analyzer.Stats())
	if err != nil {
		return app.fail(ctx, summary, err)
	}

	if err := app.storeRules(ctx, summary.RunID, generated); err != nil {
		return app.fail(ctx, summary, err)
	}

	summary.FinishedAt = time.Now().UTC()
	gologger.Info().Msgf("Run %s completed in %s: %d domains, %d suffixes checked, %d invalid, %d rules",
		summary.RunID, summary.Duration().Round(time.Millisecond), summary.DomainsSeen, summary.SuffixesValidated, summary.InvalidSuffixes, summary.Rules)
	app.notify(app.notifier.NotifyRunCompleted(ctx, summary))

	return summary, nil
}

// storeRules hands the rules to every sink concurrently
func (app *Application) storeRules(ctx context.Context, runID string, generated []models.Rule) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, sink := range app.sinks {
		g.Go(func() error {
			if err := sink.StoreRules(gCtx, runID, generated); err != nil {
				return fmt.Errorf("sink %s: %w", sink.Name(), err)
			}
			gologger.Debug().Msgf("Sink %s stored %d rules", sink.Name(), len(generated))
			return nil
		})
	}
	return g.Wait()
}

func (app *Application) fail(ctx context.Context, summary models.RunSummary, err error) (models.RunSummary, error) {
	summary.FinishedAt = time.Now().UTC()
	summary.Error = err.Error()
	gologger.Error().Msgf("Run %s failed: %v", summary.RunID, err)

	// The run context may already be cancelled
	notifyCtx := context.WithoutCancel(ctx)
	app.notify(app.notifier.NotifyRunFailed(notifyCtx, summary, err))
	return summary, err
}

func (app *Application) notify(err error) {
	if err != nil {
		gologger.Warning().Msgf("Failed to send Discord notification: %v", err)
	}
}

// Verdict is the outcome of checking a single name
type Verdict struct {
	Name   string
	Valid  bool
	Reason validation.Reason
	Err    error
}

// Check runs the validator chain on each name and writes one verdict per line.
// Validator errors other than invalid names abort the check.
func (app *Application) Check(ctx context.Context, names []string) ([]Verdict, error) {
	verdicts := make([]Verdict, 0, len(names))
	for _, name := range names {
		err := app.validator.Validate(ctx, name)
		if err != nil && !errors.Is(err, validation.ErrInvalidDomainName) {
			return verdicts, fmt.Errorf("failed to check %s: %w", name, err)
		}

		v := Verdict{Name: name, Valid: err == nil, Reason: validation.ReasonOf(err), Err: err}
		verdicts = append(verdicts, v)

		if v.Valid {
			fmt.Fprintf(app.out, "%s\tvalid\n", name)
		} else {
			fmt.Fprintf(app.out, "%s\tinvalid\t%s\n", name, v.Reason)
		}
	}
	return verdicts, nil
}

// Close releases every client opened by the application
func (app *Application) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.metricsServer.Shutdown(ctx); err != nil {
		gologger.Warning().Msgf("Failed to stop metrics server: %v", err)
	}
	if app.serviceBusClient != nil {
		if err := app.serviceBusClient.Close(ctx); err != nil {
			gologger.Warning().Msgf("Failed to close Service Bus client: %v", err)
		}
	}
	if app.db != nil {
		app.db.Close()
	}
}

func mergeStats(summary, stats models.RunSummary) models.RunSummary {
	stats.RunID = summary.RunID
	stats.StartedAt = summary.StartedAt
	stats.FinishedAt = summary.FinishedAt
	stats.Error = summary.Error
	return stats
}

func sinkNames(sinks []RuleSink) string {
	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	return fmt.Sprint(names)
}
