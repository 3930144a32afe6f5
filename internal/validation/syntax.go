package validation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

const (
	maxDomainLength = 253
	maxLabelLength  = 63
)

var labelRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// SyntaxValidator checks a domain name against the preferred name syntax.
// It performs no I/O.
type SyntaxValidator struct {
	profile *idna.Profile
}

// NewSyntaxValidator creates a new syntax validator
func NewSyntaxValidator() *SyntaxValidator {
	return &SyntaxValidator{
		// Labels such as "r4---sn-abc" are valid host names; only xn-- labels carry IDNA meaning
		profile: idna.New(idna.MapForLookup(), idna.BidiRule(), idna.CheckHyphens(false)),
	}
}

// Validate rejects names that are not well-formed domain names
func (v *SyntaxValidator) Validate(_ context.Context, name string) error {
	if err := v.check(name); err != nil {
		return newInvalidDomainName(name, ReasonMalformed, err)
	}
	return nil
}

// Name returns the validator name
func (v *SyntaxValidator) Name() string {
	return "syntax"
}

func (v *SyntaxValidator) check(name string) error {
	if name == "" {
		return fmt.Errorf("domain is required")
	}

	// A single trailing dot is the implicit root label
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return fmt.Errorf("domain has no labels")
	}

	ascii, err := v.profile.ToASCII(name)
	if err != nil {
		return fmt.Errorf("idna conversion failed: %w", err)
	}

	if len(ascii) > maxDomainLength {
		return fmt.Errorf("domain too long: %d characters", len(ascii))
	}

	for _, label := range strings.Split(ascii, ".") {
		if label == "" {
			return fmt.Errorf("empty label")
		}
		if len(label) > maxLabelLength {
			return fmt.Errorf("label %q exceeds %d characters", label, maxLabelLength)
		}
		if !labelRegex.MatchString(label) {
			return fmt.Errorf("label %q contains invalid characters", label)
		}
	}

	return nil
}
