package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/rules"
)

// RulesRepository handles database operations for tagging rules. Rows are returned in
// position order, which is the evaluation order of the rule engine.
type RulesRepository struct {
	db *sqlx.DB
}

// NewRulesRepository creates a new rules repository.
func NewRulesRepository(db *sqlx.DB) *RulesRepository {
	return &RulesRepository{db: db}
}

type ruleRow struct {
	ID        int64     `db:"id"`
	Position  int       `db:"position"`
	RuleName  string    `db:"rule_name"`
	Taxonomy  string    `db:"taxonomy"`
	Category  string    `db:"category"`
	AllOf     string    `db:"all_of"`
	NoneOf    string    `db:"none_of"`
	Enabled   bool      `db:"enabled"`
	CreatedAt time.Time `db:"created_at"`
}

func (r ruleRow) toRule() (rules.Rule, error) {
	rule := rules.Rule{Name: r.RuleName, Taxonomy: r.Taxonomy, Category: r.Category}
	if err := json.Unmarshal([]byte(r.AllOf), &rule.AllOf); err != nil {
		return rules.Rule{}, fmt.Errorf("decode all_of of rule %s: %w", r.RuleName, err)
	}
	if r.NoneOf != "" {
		var noneOf []string
		if err := json.Unmarshal([]byte(r.NoneOf), &noneOf); err != nil {
			return rules.Rule{}, fmt.Errorf("decode none_of of rule %s: %w", r.RuleName, err)
		}
		if len(noneOf) > 0 {
			rule.NoneOf = noneOf
		}
	}
	if !r.Enabled {
		enabled := false
		rule.Enabled = &enabled
	}
	return rule, nil
}

func encodeKeywords(rule rules.Rule) (allOf, noneOf string, err error) {
	a, err := json.Marshal(rule.AllOf)
	if err != nil {
		return "", "", fmt.Errorf("encode all_of of rule %s: %w", rule.Name, err)
	}
	noneOfList := rule.NoneOf
	if noneOfList == nil {
		noneOfList = []string{}
	}
	n, err := json.Marshal(noneOfList)
	if err != nil {
		return "", "", fmt.Errorf("encode none_of of rule %s: %w", rule.Name, err)
	}
	return string(a), string(n), nil
}

// List returns the stored rules in evaluation order.
func (r *RulesRepository) List(ctx context.Context, enabledOnly bool) (rules.RuleSet, error) {
	query := `
		SELECT id, position, rule_name, taxonomy, category, all_of, none_of, enabled, created_at
		FROM tagging_rules
	`
	var args []any
	if enabledOnly {
		query += " WHERE enabled = ?"
		args = append(args, true)
	}
	query += " ORDER BY position ASC, id ASC"

	var rows []ruleRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return rules.RuleSet{}, fmt.Errorf("failed to list rules: %w", err)
	}

	rs := rules.RuleSet{Rules: make([]rules.Rule, 0, len(rows))}
	for _, row := range rows {
		rule, err := row.toRule()
		if err != nil {
			return rules.RuleSet{}, err
		}
		rs.Rules = append(rs.Rules, rule)
	}
	return rs, nil
}

// Create appends a rule after the existing ones and returns its id.
func (r *RulesRepository) Create(ctx context.Context, rule rules.Rule) (int64, error) {
	if err := (rules.RuleSet{Rules: []rules.Rule{rule}}).Validate(); err != nil {
		return 0, err
	}
	allOf, noneOf, err := encodeKeywords(rule)
	if err != nil {
		return 0, err
	}

	query := r.db.Rebind(`
		INSERT INTO tagging_rules (position, rule_name, taxonomy, category, all_of, none_of, enabled)
		VALUES ((SELECT COALESCE(MAX(position), 0) + 1 FROM tagging_rules), ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	var id int64
	if err = r.db.QueryRowxContext(ctx, query,
		rule.Name, rule.Taxonomy, rule.Category, allOf, noneOf, rule.IsEnabled(),
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to create rule %s: %w", rule.Name, err)
	}
	return id, nil
}

// SetEnabled toggles a rule by name.
func (r *RulesRepository) SetEnabled(ctx context.Context, name string, enabled bool) error {
	query := r.db.Rebind(`UPDATE tagging_rules SET enabled = ? WHERE rule_name = ?`)
	result, err := r.db.ExecContext(ctx, query, enabled, name)
	if err != nil {
		return fmt.Errorf("failed to update rule %s: %w", name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule not found: %s", name)
	}
	return nil
}

// ReplaceAll swaps the stored rules for rs in one transaction, keeping rs order.
func (r *RulesRepository) ReplaceAll(ctx context.Context, rs rules.RuleSet) error {
	if err := rs.Validate(); err != nil {
		return fmt.Errorf("invalid rule set: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rules transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, `DELETE FROM tagging_rules`); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}

	insert := r.db.Rebind(`
		INSERT INTO tagging_rules (position, rule_name, taxonomy, category, all_of, none_of, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	for i, rule := range rs.Rules {
		allOf, noneOf, encErr := encodeKeywords(rule)
		if encErr != nil {
			return encErr
		}
		if _, err = tx.ExecContext(ctx, insert,
			i+1, rule.Name, rule.Taxonomy, rule.Category, allOf, noneOf, rule.IsEnabled(),
		); err != nil {
			return fmt.Errorf("insert rule %s: %w", rule.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit rules: %w", err)
	}
	return nil
}
