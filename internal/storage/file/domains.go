package file

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/allsafeASM/rulegen/internal/common"
	"github.com/allsafeASM/rulegen/internal/models"
)

// DomainSource reads "owner,domain" records from a local file
type DomainSource struct {
	path string
}

// NewDomainSource creates a source for the file at path
func NewDomainSource(path string) *DomainSource {
	return &DomainSource{path: path}
}

// Validate checks that the file exists and is readable
func (s *DomainSource) Validate() error {
	f, err := os.Open(s.path)
	if err != nil {
		return common.NewConfigurationError("DOMAINS_FILE", fmt.Sprintf("file %s does not exist or is not readable: %v", s.path, err))
	}
	return f.Close()
}

// Domains returns a lazy sequence over the records of the file.
// The file is opened on first iteration and closed when iteration stops.
func (s *DomainSource) Domains(ctx context.Context) iter.Seq2[models.Domain, error] {
	return func(yield func(models.Domain, error) bool) {
		f, err := os.Open(s.path)
		if err != nil {
			yield(models.Domain{}, common.NewStorageError(fmt.Sprintf("failed to open file %s", s.path), err))
			return
		}
		defer f.Close()

		for d, err := range ParseDomains(ctx, f) {
			if !yield(d, err) || err != nil {
				return
			}
		}
	}
}

// ParseDomains reads one "owner,domain" record per line from r.
// Blank lines and lines starting with # are skipped. Surrounding
// whitespace is trimmed from both fields.
func ParseDomains(ctx context.Context, r io.Reader) iter.Seq2[models.Domain, error] {
	return func(yield func(models.Domain, error) bool) {
		scanner := bufio.NewScanner(r)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if err := ctx.Err(); err != nil {
				yield(models.Domain{}, err)
				return
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			owner, name, ok := strings.Cut(line, ",")
			owner, name = strings.TrimSpace(owner), strings.TrimSpace(name)
			if !ok || owner == "" || name == "" {
				yield(models.Domain{}, common.NewValidationError("line", fmt.Sprintf("line %d: expected \"owner,domain\", got %q", lineNo, line)))
				return
			}

			if !yield(models.Domain{OwnerID: owner, Name: name}, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield(models.Domain{}, common.NewStorageError("error reading domains", err))
		}
	}
}
