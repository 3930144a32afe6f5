package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/allsafeASM/rulegen/internal/common"
	"github.com/miekg/dns"
	"github.com/projectdiscovery/dnsx/libs/dnsx"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/ratelimit"
	"github.com/projectdiscovery/retryabledns"
)

// DefaultResolvers are used when no resolvers are configured
var DefaultResolvers = []string{
	"udp:1.1.1.1:53",         // Cloudflare
	"udp:1.0.0.1:53",         // Cloudflare
	"udp:8.8.8.8:53",         // Google
	"udp:8.8.4.4:53",         // Google
	"udp:9.9.9.9:53",         // Quad9
	"udp:149.112.112.112:53", // Quad9
}

// Options configures a DNSXResolver
type Options struct {
	Resolvers []string
	RateLimit int // queries per second
	Hostsfile bool
}

// DefaultOptions returns the resolver defaults
func DefaultOptions() Options {
	return Options{
		Resolvers: DefaultResolvers,
		RateLimit: 100,
		Hostsfile: true,
	}
}

// DNSXResolver resolves A and AAAA records through dnsx.
// Every query is attempted exactly once.
type DNSXResolver struct {
	client  querier
	limiter *ratelimit.Limiter
}

// querier is the subset of *dnsx.DNSX used by the resolver
type querier interface {
	QueryMultiple(hostname string) (*retryabledns.DNSData, error)
}

// New creates a new dnsx resolver
func New(ctx context.Context, opts Options) (*DNSXResolver, error) {
	dnsxOptions := dnsx.DefaultOptions
	if len(opts.Resolvers) > 0 {
		dnsxOptions.BaseResolvers = opts.Resolvers
	} else {
		dnsxOptions.BaseResolvers = DefaultResolvers
	}
	dnsxOptions.MaxRetries = 1
	dnsxOptions.QuestionTypes = []uint16{dns.TypeA, dns.TypeAAAA}
	dnsxOptions.Hostsfile = opts.Hostsfile
	dnsxOptions.QueryAll = false

	client, err := dnsx.New(dnsxOptions)
	if err != nil {
		return nil, common.NewInternalError("failed to create DNSX client", err)
	}

	rate := opts.RateLimit
	if rate <= 0 {
		rate = DefaultOptions().RateLimit
	}

	return newWithClient(ctx, client, rate), nil
}

func newWithClient(ctx context.Context, client querier, rate int) *DNSXResolver {
	return &DNSXResolver{
		client:  client,
		limiter: ratelimit.New(ctx, uint(rate), time.Second),
	}
}

type queryResult struct {
	data *retryabledns.DNSData
	err  error
}

// Resolve returns the A and AAAA addresses of name.
// A missing name or an answer without addresses yields an empty slice and no error.
func (r *DNSXResolver) Resolve(ctx context.Context, name string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.NewTimeoutError("dns query cancelled", err)
	}

	r.limiter.Take()

	// dnsx has no context support; the query runs detached and is abandoned on deadline
	done := make(chan queryResult, 1)
	go func() {
		data, err := r.client.QueryMultiple(name)
		done <- queryResult{data: data, err: err}
	}()

	var result queryResult
	select {
	case <-ctx.Done():
		return nil, common.NewTimeoutError("dns query timed out", ctx.Err())
	case result = <-done:
	}

	if result.err != nil {
		return nil, common.NewNetworkError("dns query failed", result.err)
	}

	return addressesOf(name, result.data)
}

// addressesOf extracts the address set from a dnsx answer
func addressesOf(name string, data *retryabledns.DNSData) ([]string, error) {
	if data == nil {
		return nil, nil
	}

	switch data.StatusCodeRaw {
	case dns.RcodeSuccess, dns.RcodeNameError:
	default:
		return nil, common.NewNetworkError("dns query failed", errors.New(dns.RcodeToString[data.StatusCodeRaw]))
	}

	addresses := make([]string, 0, len(data.A)+len(data.AAAA))
	addresses = append(addresses, data.A...)
	addresses = append(addresses, data.AAAA...)

	if len(addresses) == 0 {
		gologger.Debug().Msgf("No addresses for %s (status %s)", name, data.StatusCode)
	}
	return addresses, nil
}
