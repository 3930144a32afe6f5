package postgres

import (
	"context"
	"iter"

	"github.com/allsafeASM/rulegen/internal/common"
	"github.com/allsafeASM/rulegen/internal/models"
)

// DefaultBatchSize is the number of domains fetched per query
const DefaultBatchSize = 100

// Ordering and the keyset predicate use the same text expression so integer
// owner ids page consistently.
const firstDomainsPageQuery = `
	SELECT project_id::text, name
	FROM domains
	ORDER BY project_id::text, name
	LIMIT $1`

const nextDomainsPageQuery = `
	SELECT project_id::text, name
	FROM domains
	WHERE (project_id::text, name) > ($1, $2)
	ORDER BY project_id::text, name
	LIMIT $3`

// DomainSource reads domains ordered by owner in fixed-size pages
type DomainSource struct {
	db        DatabaseIface
	batchSize int
}

// NewDomainSource creates a domain source reading batchSize rows per query
func NewDomainSource(db DatabaseIface, batchSize int) *DomainSource {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &DomainSource{db: db, batchSize: batchSize}
}

// Domains returns a lazy sequence over every stored domain.
// Pages are fetched on demand; a query error ends the sequence.
func (s *DomainSource) Domains(ctx context.Context) iter.Seq2[models.Domain, error] {
	return func(yield func(models.Domain, error) bool) {
		var last *models.Domain
		for {
			page, err := s.fetchPage(ctx, last)
			if err != nil {
				yield(models.Domain{}, err)
				return
			}

			for _, domain := range page {
				if !yield(domain, nil) {
					return
				}
			}

			if len(page) < s.batchSize {
				return
			}
			last = &page[len(page)-1]
		}
	}
}

func (s *DomainSource) fetchPage(ctx context.Context, after *models.Domain) ([]models.Domain, error) {
	var args []any
	query := firstDomainsPageQuery
	if after == nil {
		args = []any{s.batchSize}
	} else {
		query = nextDomainsPageQuery
		args = []any{after.OwnerID, after.Name, s.batchSize}
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, common.NewStorageError("failed to query domains", err)
	}
	defer rows.Close()

	page := make([]models.Domain, 0, s.batchSize)
	for rows.Next() {
		var domain models.Domain
		if err := rows.Scan(&domain.OwnerID, &domain.Name); err != nil {
			return nil, common.NewStorageError("failed to scan domain", err)
		}
		page = append(page, domain)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewStorageError("failed to iterate domains", err)
	}

	return page, nil
}
