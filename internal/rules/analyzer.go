package rules

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"

	"github.com/allsafeASM/rulegen/internal/metrics"
	"github.com/allsafeASM/rulegen/internal/models"
	"github.com/allsafeASM/rulegen/internal/validation"
	"github.com/projectdiscovery/gologger"
)

// firstLevel is the number of trailing labels tested first
const firstLevel = 2

// Analyzer classifies domain suffixes as valid or invalid and collects the
// invalid ones per owner. Classifications are memoized for the lifetime of
// the Analyzer, so each distinct suffix reaches the validator at most once.
// An Analyzer is not safe for concurrent use.
type Analyzer struct {
	validator validation.Validator
	metrics   *metrics.Metrics

	valid   map[string]struct{}
	invalid map[string]map[string]struct{} // owner -> suffixes
	flagged map[string]string              // suffix -> owner that recorded it

	domains   int
	validated int
}

// NewAnalyzer creates an analyzer using validator for unseen suffixes
func NewAnalyzer(validator validation.Validator, m *metrics.Metrics) *Analyzer {
	return &Analyzer{
		validator: validator,
		metrics:   m,
		valid:     make(map[string]struct{}),
		invalid:   make(map[string]map[string]struct{}),
		flagged:   make(map[string]string),
	}
}

// Analyze consumes domains until the sequence ends, an element carries an
// error, or ctx is done. Validator rejections never stop the run.
func (a *Analyzer) Analyze(ctx context.Context, domains iter.Seq2[models.Domain, error]) error {
	for domain, err := range domains {
		if err != nil {
			return fmt.Errorf("failed to read domains: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.analyzeDomain(ctx, domain); err != nil {
			return err
		}
	}
	return nil
}

// analyzeDomain walks the suffixes of one domain from two labels outward
func (a *Analyzer) analyzeDomain(ctx context.Context, domain models.Domain) error {
	a.domains++
	a.metrics.IncDomain()

	for level := firstLevel; ; level++ {
		suffix, ok := Suffix(domain.Name, level)
		if !ok {
			return nil
		}

		if a.isValid(suffix) {
			a.metrics.ObserveSuffix(metrics.OutcomeCachedValid)
			continue
		}

		// First owner to flag a suffix keeps it; later owners do not record it again
		if _, ok := a.flagged[suffix]; ok {
			a.metrics.ObserveSuffix(metrics.OutcomeCachedInvalid)
			return nil
		}

		a.validated++
		err := a.validator.Validate(ctx, suffix)
		if err == nil {
			a.valid[suffix] = struct{}{}
			a.metrics.ObserveSuffix(metrics.OutcomeValid)
			continue
		}
		if !errors.Is(err, validation.ErrInvalidDomainName) {
			return fmt.Errorf("failed to validate %s: %w", suffix, err)
		}

		a.record(domain.OwnerID, suffix)
		a.metrics.ObserveSuffix(metrics.OutcomeInvalid)
		a.metrics.ObserveValidationFailure(string(validation.ReasonOf(err)))
		gologger.Debug().Msgf("Invalid suffix %s for owner %s: %v", suffix, domain.OwnerID, err)
		return nil
	}
}

func (a *Analyzer) record(ownerID, suffix string) {
	set, ok := a.invalid[ownerID]
	if !ok {
		set = make(map[string]struct{})
		a.invalid[ownerID] = set
	}
	set[suffix] = struct{}{}
	a.flagged[suffix] = ownerID
}

// InvalidSuffixes returns a sorted copy of the invalid suffixes recorded per owner
func (a *Analyzer) InvalidSuffixes() map[string][]string {
	result := make(map[string][]string, len(a.invalid))
	for owner, set := range a.invalid {
		result[owner] = slices.Sorted(maps.Keys(set))
	}
	return result
}

// isValid reports whether suffix has been proven valid
func (a *Analyzer) isValid(suffix string) bool {
	_, ok := a.valid[suffix]
	return ok
}

// Rules builds one rule per owner with at least one invalid suffix, ordered by owner id
func (a *Analyzer) Rules() []models.Rule {
	owners := slices.Sorted(maps.Keys(a.invalid))
	rules := make([]models.Rule, 0, len(owners))
	for _, owner := range owners {
		rules = append(rules, BuildRule(owner, slices.Collect(maps.Keys(a.invalid[owner]))))
	}
	return rules
}

// MakeRules analyzes domains and returns the resulting rules
func (a *Analyzer) MakeRules(ctx context.Context, domains iter.Seq2[models.Domain, error]) ([]models.Rule, error) {
	if err := a.Analyze(ctx, domains); err != nil {
		return nil, err
	}

	rules := a.Rules()
	a.metrics.AddRules(len(rules))
	if len(rules) > 0 {
		gologger.Info().Msgf("Generated %d rules (invalid suffixes per owner: %s)", len(rules), ownerSummary(a.InvalidSuffixes()))
	}
	return rules, nil
}

// Stats returns counters for the run so far
func (a *Analyzer) Stats() models.RunSummary {
	return models.RunSummary{
		DomainsSeen:       a.domains,
		SuffixesValidated: a.validated,
		ValidSuffixes:     len(a.valid),
		InvalidSuffixes:   len(a.flagged),
		Rules:             len(a.invalid),
	}
}

// Suffix returns the trailing level labels of name.
// ok is false when name has fewer than level labels.
func Suffix(name string, level int) (suffix string, ok bool) {
	if level < 1 {
		return "", false
	}

	for i := len(name) - 1; i >= 0; i-- {
		if name[i] != '.' {
			continue
		}
		level--
		if level == 0 {
			return name[i+1:], true
		}
	}
	if level == 1 {
		return name, true
	}
	return "", false
}

// Domains adapts a slice into a domain sequence
func Domains(domains []models.Domain) iter.Seq2[models.Domain, error] {
	return func(yield func(models.Domain, error) bool) {
		for _, d := range domains {
			if !yield(d, nil) {
				return
			}
		}
	}
}

// ownerSummary renders a compact owner -> count listing for logs
func ownerSummary(invalid map[string][]string) string {
	parts := make([]string, 0, len(invalid))
	for _, owner := range slices.Sorted(maps.Keys(invalid)) {
		parts = append(parts, fmt.Sprintf("%s=%d", owner, len(invalid[owner])))
	}
	return strings.Join(parts, ", ")
}
