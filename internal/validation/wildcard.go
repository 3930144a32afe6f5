package validation

import (
	"context"
	"strings"
	"time"

	"github.com/allsafeASM/rulegen/internal/metrics"
	"github.com/projectdiscovery/gologger"
)

// DefaultResolveTimeout bounds a single resolution
const DefaultResolveTimeout = 5 * time.Second

// Resolver resolves a domain name to its set of addresses.
// An empty result with a nil error means the name has no addresses.
type Resolver interface {
	Resolve(ctx context.Context, name string) ([]string, error)
}

// WildcardValidator rejects names that do not resolve, or that resolve to an
// address shared with the wildcard name of the same level.
// Wildcard address sets are cached for the lifetime of the validator,
// so every distinct wildcard name is resolved at most once.
// It is not safe for concurrent use.
type WildcardValidator struct {
	resolver  Resolver
	timeout   time.Duration
	wildcards map[string]map[string]struct{}
	metrics   *metrics.Metrics
}

// WildcardOption configures a WildcardValidator
type WildcardOption func(*WildcardValidator)

// WithTimeout sets the per-resolution timeout
func WithTimeout(timeout time.Duration) WildcardOption {
	return func(v *WildcardValidator) {
		if timeout > 0 {
			v.timeout = timeout
		}
	}
}

// WithMetrics records lookups in m
func WithMetrics(m *metrics.Metrics) WildcardOption {
	return func(v *WildcardValidator) {
		v.metrics = m
	}
}

// NewWildcardValidator creates a new wildcard validator backed by resolver
func NewWildcardValidator(resolver Resolver, opts ...WildcardOption) *WildcardValidator {
	v := &WildcardValidator{
		resolver:  resolver,
		timeout:   DefaultResolveTimeout,
		wildcards: make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate resolves name and compares it with its wildcard sibling
func (v *WildcardValidator) Validate(ctx context.Context, name string) error {
	addresses, err := v.resolve(ctx, name, metrics.LookupPrimary)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// Transport failures are indistinguishable from a missing name here
		return newInvalidDomainName(name, ReasonDoesNotExist, err)
	}
	if len(addresses) == 0 {
		return newInvalidDomainName(name, ReasonDoesNotExist, nil)
	}

	wildcardAddresses, err := v.wildcardAddresses(ctx, WildcardSibling(name))
	if err != nil {
		return err
	}
	for address := range addresses {
		if _, ok := wildcardAddresses[address]; ok {
			return newInvalidDomainName(name, ReasonWildcard, nil)
		}
	}

	return nil
}

// Name returns the validator name
func (v *WildcardValidator) Name() string {
	return "wildcard"
}

// wildcardAddresses returns the cached address set of wildcard, resolving it on first use.
// Resolution errors are cached as an empty set unless ctx itself is done.
func (v *WildcardValidator) wildcardAddresses(ctx context.Context, wildcard string) (map[string]struct{}, error) {
	if addresses, ok := v.wildcards[wildcard]; ok {
		v.metrics.IncWildcardCacheHit()
		return addresses, nil
	}

	addresses, err := v.resolve(ctx, wildcard, metrics.LookupWildcard)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		gologger.Debug().Msgf("Wildcard lookup for %s failed, treating as empty: %v", wildcard, err)
		addresses = map[string]struct{}{}
	}

	v.wildcards[wildcard] = addresses
	gologger.Debug().Msgf("Cached wildcard %s (%d addresses, %d wildcards cached)", wildcard, len(addresses), len(v.wildcards))
	return addresses, nil
}

func (v *WildcardValidator) resolve(ctx context.Context, name, kind string) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	addresses, err := v.resolver.Resolve(ctx, name)
	switch {
	case err != nil:
		v.metrics.ObserveLookup(kind, metrics.LookupError, start)
		return nil, err
	case len(addresses) == 0:
		v.metrics.ObserveLookup(kind, metrics.LookupEmpty, start)
	default:
		v.metrics.ObserveLookup(kind, metrics.LookupResolved, start)
	}

	set := make(map[string]struct{}, len(addresses))
	for _, address := range addresses {
		set[address] = struct{}{}
	}
	return set, nil
}

// WildcardSibling replaces the most specific label of name with "*"
func WildcardSibling(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return "*" + name[i:]
	}
	return "*"
}
