package validation

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidDomainName is matched by every InvalidDomainNameError via errors.Is
var ErrInvalidDomainName = errors.New("invalid domain name")

// Reason explains why a domain name was rejected
type Reason string

const (
	ReasonMalformed    Reason = "malformed domain name"
	ReasonDoesNotExist Reason = "domain does not exist"
	ReasonWildcard     Reason = "wildcard domain name detected"
)

// InvalidDomainNameError is returned by validators when a name is rejected
type InvalidDomainNameError struct {
	Name   string
	Reason Reason
	Err    error
}

func (e *InvalidDomainNameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Name, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Reason)
}

func (e *InvalidDomainNameError) Unwrap() error {
	return e.Err
}

func (e *InvalidDomainNameError) Is(target error) bool {
	return target == ErrInvalidDomainName
}

func newInvalidDomainName(name string, reason Reason, err error) *InvalidDomainNameError {
	return &InvalidDomainNameError{Name: name, Reason: reason, Err: err}
}

// ReasonOf extracts the rejection reason from err, or "" if err is not an InvalidDomainNameError
func ReasonOf(err error) Reason {
	var invalid *InvalidDomainNameError
	if errors.As(err, &invalid) {
		return invalid.Reason
	}
	return ""
}

// Validator decides whether a single domain name is acceptable.
// A nil error means the name is valid; rejections are reported as *InvalidDomainNameError.
type Validator interface {
	Validate(ctx context.Context, name string) error
	Name() string
}

// Chain runs validators in order and stops at the first failure.
// The syntax validator always occupies the first position so malformed
// names never reach validators that touch the network.
type Chain struct {
	validators []Validator
}

// NewChain creates a chain headed by a SyntaxValidator followed by the given validators
func NewChain(validators ...Validator) *Chain {
	chain := &Chain{
		validators: make([]Validator, 0, len(validators)+1),
	}
	chain.validators = append(chain.validators, NewSyntaxValidator())
	for _, v := range validators {
		if v == nil {
			continue
		}
		if _, ok := v.(*SyntaxValidator); ok {
			continue
		}
		chain.validators = append(chain.validators, v)
	}
	return chain
}

// Validate runs every member validator until one rejects the name
func (c *Chain) Validate(ctx context.Context, name string) error {
	for _, v := range c.validators {
		if err := v.Validate(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Name returns the chain's validator name
func (c *Chain) Name() string {
	return "chain"
}

// Validators returns the names of the chain members in execution order
func (c *Chain) Validators() []string {
	names := make([]string, len(c.validators))
	for i, v := range c.validators {
		names[i] = v.Name()
	}
	return names
}
