//nolint:testpackage // Testing internal row decoding requires same package access
package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepository(t *testing.T) (*RulesRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewRulesRepository(sqlx.NewDb(db, "postgres")), mock
}

var ruleColumns = []string{
	"id", "position", "rule_name", "taxonomy", "category", "all_of", "none_of", "enabled", "created_at",
}

func TestRulesRepository_List(t *testing.T) {
	repo, mock := newMockRepository(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM tagging_rules").
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows(ruleColumns).
			AddRow(1, 1, "wireless-audio", "client_a", "Audio > Headphones > Wireless",
				`[["bluetooth"],["headphone","earbud"]]`, `[]`, true, created).
			AddRow(2, 2, "cables", "client_b", "Electronics", `[["cable"]]`, `["solar"]`, true, created))

	rs, err := repo.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, rs.Rules, 2)

	assert.Equal(t, "wireless-audio", rs.Rules[0].Name)
	assert.Equal(t, [][]string{{"bluetooth"}, {"headphone", "earbud"}}, rs.Rules[0].AllOf)
	assert.Empty(t, rs.Rules[0].NoneOf)
	assert.Equal(t, []string{"solar"}, rs.Rules[1].NoneOf)
	assert.True(t, rs.Rules[1].IsEnabled())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRulesRepository_List_BadKeywords(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("FROM tagging_rules").
		WillReturnRows(sqlmock.NewRows(ruleColumns).
			AddRow(1, 1, "broken", "client_a", "A", `not json`, `[]`, false, time.Now()))

	_, err := repo.List(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestRulesRepository_Create(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("INSERT INTO tagging_rules").
		WithArgs("kettles", "client_b", "Home", `[["kettle"]]`, `[]`, true).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	id, err := repo.Create(context.Background(), rules.Rule{
		Name: "kettles", Taxonomy: "client_b", Category: "Home", AllOf: [][]string{{"kettle"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRulesRepository_Create_Invalid(t *testing.T) {
	repo, mock := newMockRepository(t)

	_, err := repo.Create(context.Background(), rules.Rule{Name: "empty", Taxonomy: "client_b", Category: "Home"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all_of")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRulesRepository_SetEnabled_NotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec("UPDATE tagging_rules").
		WithArgs(false, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetEnabled(context.Background(), "missing", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule not found")
}

func TestRulesRepository_ReplaceAll(t *testing.T) {
	repo, mock := newMockRepository(t)
	rs := rules.RuleSet{Rules: []rules.Rule{
		{Name: "first", Taxonomy: "client_a", Category: "A > B > C", AllOf: [][]string{{"a"}}},
		{Name: "second", Taxonomy: "client_b", Category: "Home", AllOf: [][]string{{"b"}}},
	}}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM tagging_rules").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO tagging_rules").
		WithArgs(1, "first", "client_a", "A > B > C", `[["a"]]`, `[]`, true).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO tagging_rules").
		WithArgs(2, "second", "client_b", "Home", `[["b"]]`, `[]`, true).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ReplaceAll(context.Background(), rs))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRulesRepository_ReplaceAll_RollsBack(t *testing.T) {
	repo, mock := newMockRepository(t)
	rs := rules.RuleSet{Rules: []rules.Rule{
		{Name: "first", Taxonomy: "client_a", Category: "A", AllOf: [][]string{{"a"}}},
	}}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM tagging_rules").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	require.Error(t, repo.ReplaceAll(context.Background(), rs))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRulesRepository_ReplaceAll_RejectsInvalid(t *testing.T) {
	repo, _ := newMockRepository(t)
	err := repo.ReplaceAll(context.Background(), rules.RuleSet{Rules: []rules.Rule{{Name: "x"}}})
	assert.Error(t, err)
}
