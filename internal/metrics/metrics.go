package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/projectdiscovery/gologger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Suffix outcomes recorded by the analyzer
const (
	OutcomeValid         = "valid"
	OutcomeInvalid       = "invalid"
	OutcomeCachedValid   = "cached_valid"
	OutcomeCachedInvalid = "cached_invalid"
)

// DNS lookup kinds and statuses recorded by the wildcard validator
const (
	LookupPrimary  = "primary"
	LookupWildcard = "wildcard"

	LookupResolved = "resolved"
	LookupEmpty    = "empty"
	LookupError    = "error"
)

// Metrics holds the Prometheus collectors for a rule generation run.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	SuffixesTotal      *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	DNSLookupsTotal    *prometheus.CounterVec
	DNSLookupDuration  *prometheus.HistogramVec
	WildcardCacheHits  prometheus.Counter
	DomainsTotal       prometheus.Counter
	RulesGenerated     prometheus.Counter
}

// New creates all collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SuffixesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rulegen_suffixes_total",
			Help: "Domain suffixes classified, by outcome",
		}, []string{"outcome"}),
		ValidationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rulegen_validation_failures_total",
			Help: "Suffixes rejected by the validator chain, by reason",
		}, []string{"reason"}),
		DNSLookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rulegen_dns_lookups_total",
			Help: "DNS resolutions performed, by kind and status",
		}, []string{"kind", "status"}),
		DNSLookupDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rulegen_dns_lookup_duration_seconds",
			Help:    "Time spent resolving domain names",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"kind"}),
		WildcardCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "rulegen_wildcard_cache_hits_total",
			Help: "Wildcard lookups answered from the in-process cache",
		}),
		DomainsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "rulegen_domains_total",
			Help: "Input domains analyzed",
		}),
		RulesGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "rulegen_rules_generated_total",
			Help: "Rules produced",
		}),
	}
}

// ObserveSuffix records the classification of one suffix
func (m *Metrics) ObserveSuffix(outcome string) {
	if m == nil {
		return
	}
	m.SuffixesTotal.WithLabelValues(outcome).Inc()
}

// ObserveValidationFailure records a validator chain rejection
func (m *Metrics) ObserveValidationFailure(reason string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(reason).Inc()
}

// ObserveLookup records one DNS resolution.
// Call with time.Now() taken before the resolution started.
func (m *Metrics) ObserveLookup(kind, status string, start time.Time) {
	if m == nil {
		return
	}
	m.DNSLookupsTotal.WithLabelValues(kind, status).Inc()
	m.DNSLookupDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// IncWildcardCacheHit records a wildcard lookup served from cache
func (m *Metrics) IncWildcardCacheHit() {
	if m == nil {
		return
	}
	m.WildcardCacheHits.Inc()
}

// IncDomain records one analyzed input domain
func (m *Metrics) IncDomain() {
	if m == nil {
		return
	}
	m.DomainsTotal.Inc()
}

// AddRules records generated rules
func (m *Metrics) AddRules(n int) {
	if m == nil {
		return
	}
	m.RulesGenerated.Add(float64(n))
}

// Server exposes a registry over HTTP
type Server struct {
	server *http.Server
}

// StartServer serves the metrics of gatherer on addr in the background
func StartServer(addr string, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		gologger.Info().Msgf("Metrics server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			gologger.Error().Msgf("Metrics server error: %v", err)
		}
	}()

	return &Server{server: srv}
}

// Shutdown stops the metrics server
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
