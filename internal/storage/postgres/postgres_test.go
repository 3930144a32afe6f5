package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/allsafeASM/rulegen/internal/common"
	"github.com/allsafeASM/rulegen/internal/models"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	firstPage = regexp.QuoteMeta(firstDomainsPageQuery)
	nextPage  = regexp.QuoteMeta(nextDomainsPageQuery)
)

func collect(t *testing.T, source *DomainSource) ([]models.Domain, error) {
	t.Helper()
	var domains []models.Domain
	for d, err := range source.Domains(context.Background()) {
		if err != nil {
			return domains, err
		}
		domains = append(domains, d)
	}
	return domains, nil
}

func TestDomainSource_PaginatesWithKeyset(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(firstPage).
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows([]string{"project_id", "name"}).
			AddRow("1", "a.example.com").
			AddRow("1", "b.example.com"))
	mock.ExpectQuery(nextPage).
		WithArgs("1", "b.example.com", 2).
		WillReturnRows(pgxmock.NewRows([]string{"project_id", "name"}).
			AddRow("2", "nonexistent.com"))

	domains, err := collect(t, NewDomainSource(mock, 2))
	require.NoError(t, err)
	assert.Equal(t, []models.Domain{
		{OwnerID: "1", Name: "a.example.com"},
		{OwnerID: "1", Name: "b.example.com"},
		{OwnerID: "2", Name: "nonexistent.com"},
	}, domains)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDomainSource_FullLastPageFetchesOnceMore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(firstPage).
		WithArgs(1).
		WillReturnRows(pgxmock.NewRows([]string{"project_id", "name"}).AddRow("1", "example.com"))
	mock.ExpectQuery(nextPage).
		WithArgs("1", "example.com", 1).
		WillReturnRows(pgxmock.NewRows([]string{"project_id", "name"}))

	domains, err := collect(t, NewDomainSource(mock, 1))
	require.NoError(t, err)
	assert.Len(t, domains, 1)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDomainSource_KeysetMatchesTextOrdering(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	for _, query := range []string{firstDomainsPageQuery, nextDomainsPageQuery} {
		assert.Contains(t, query, "ORDER BY project_id::text, name")
	}
	assert.Contains(t, nextDomainsPageQuery, "WHERE (project_id::text, name) > ($1, $2)")

	mock.ExpectQuery(firstPage).
		WithArgs(1).
		WillReturnRows(pgxmock.NewRows([]string{"project_id", "name"}).AddRow("10", "b.example.com"))
	mock.ExpectQuery(nextPage).
		WithArgs("10", "b.example.com", 1).
		WillReturnRows(pgxmock.NewRows([]string{"project_id", "name"}).AddRow("9", "a.example.com"))
	mock.ExpectQuery(nextPage).
		WithArgs("9", "a.example.com", 1).
		WillReturnRows(pgxmock.NewRows([]string{"project_id", "name"}))

	domains, err := collect(t, NewDomainSource(mock, 1))
	require.NoError(t, err)
	assert.Equal(t, []models.Domain{
		{OwnerID: "10", Name: "b.example.com"},
		{OwnerID: "9", Name: "a.example.com"},
	}, domains)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDomainSource_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(firstPage).
		WithArgs(DefaultBatchSize).
		WillReturnRows(pgxmock.NewRows([]string{"project_id", "name"}))

	domains, err := collect(t, NewDomainSource(mock, 0))
	require.NoError(t, err)
	assert.Empty(t, domains)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDomainSource_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("connection reset")
	mock.ExpectQuery(firstPage).WithArgs(10).WillReturnError(boom)

	_, err = collect(t, NewDomainSource(mock, 10))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, common.IsType(err, common.ErrorTypeStorage))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDomainSource_StopsWhenConsumerBreaks(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(firstPage).
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows([]string{"project_id", "name"}).
			AddRow("1", "a.example.com").
			AddRow("1", "b.example.com"))

	seen := 0
	for _, err := range NewDomainSource(mock, 2).Domains(context.Background()) {
		require.NoError(t, err)
		seen++
		break
	}
	assert.Equal(t, 1, seen)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepository_StoreRules(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectCopyFrom(pgx.Identifier{"rules"}, []string{"project_id", "regexp"}).WillReturnResult(2)
	mock.ExpectCommit()

	repo := NewRuleRepository(mock)
	err = repo.StoreRules(context.Background(), "run-1", []models.Rule{
		{OwnerID: "1", Pattern: `.*(nonexistent\.com)$`},
		{OwnerID: "2", Pattern: `.*(random\.example\.com)$`},
	})
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepository_EmptyInputSkipsDatabase(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRuleRepository(mock)
	require.NoError(t, repo.StoreRules(context.Background(), "run-1", nil))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepository_RollsBackOnInsertFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("relation \"rules\" does not exist")
	mock.ExpectBegin()
	mock.ExpectCopyFrom(pgx.Identifier{"rules"}, []string{"project_id", "regexp"}).WillReturnError(boom)
	mock.ExpectRollback()

	repo := NewRuleRepository(mock)
	err = repo.StoreRules(context.Background(), "run-1", []models.Rule{{OwnerID: "1", Pattern: `.*(a\.com)$`}})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, common.IsType(err, common.ErrorTypeStorage))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepository_BeginFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("too many connections")
	mock.ExpectBegin().WillReturnError(boom)

	repo := NewRuleRepository(mock)
	err = repo.StoreRules(context.Background(), "run-1", []models.Rule{{OwnerID: "1", Pattern: `.*(a\.com)$`}})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "postgres", repo.Name())

	require.NoError(t, mock.ExpectationsWereMet())
}
