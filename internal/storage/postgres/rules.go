package postgres

import (
	"context"

	"github.com/allsafeASM/rulegen/internal/common"
	"github.com/allsafeASM/rulegen/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/projectdiscovery/gologger"
)

var (
	rulesTable   = pgx.Identifier{"rules"}
	rulesColumns = []string{"project_id", "regexp"}
)

// RuleRepository persists generated rules
type RuleRepository struct {
	db DatabaseIface
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db DatabaseIface) *RuleRepository {
	return &RuleRepository{db: db}
}

// StoreRules inserts all rules in a single transaction
func (r *RuleRepository) StoreRules(ctx context.Context, _ string, rules []models.Rule) error {
	if len(rules) == 0 {
		return nil
	}

	rows := make([][]any, len(rules))
	for i, rule := range rules {
		rows[i] = []any{rule.OwnerID, rule.Pattern}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return common.NewStorageError("failed to begin transaction", err)
	}

	inserted, err := tx.CopyFrom(ctx, rulesTable, rulesColumns, pgx.CopyFromRows(rows))
	if err != nil {
		r.rollback(ctx, tx)
		return common.NewStorageError("failed to insert rules", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return common.NewStorageError("failed to commit rules", err)
	}

	gologger.Info().Msgf("Stored %d rules in database", inserted)
	return nil
}

// Name returns the sink name
func (r *RuleRepository) Name() string {
	return "postgres"
}

func (r *RuleRepository) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil {
		gologger.Warning().Msgf("Failed to roll back rules transaction: %v", err)
	}
}
