package artifact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
)

// SQLStore keeps artifacts in the stage_artifacts table. Version allocation and insert
// happen in one transaction, so a reader sees either the whole row or nothing.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLStore wraps an open connection. The schema is created by database.Migrate.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

type artifactRow struct {
	Version int    `db:"version"`
	Payload []byte `db:"payload"`
}

// Put inserts payload as the next version of key.
func (s *SQLStore) Put(ctx context.Context, key Key, payload []byte) (int, error) {
	if err := key.validate(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin artifact transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	maxQuery := s.db.Rebind(`
		SELECT COALESCE(MAX(version), 0)
		FROM stage_artifacts
		WHERE taxonomy = ? AND stage = ?
	`)
	if err = tx.GetContext(ctx, &current, maxQuery, key.Taxonomy, key.Stage); err != nil {
		return 0, fmt.Errorf("read latest version of %s: %w", key, err)
	}

	next := current + 1
	insert := s.db.Rebind(`
		INSERT INTO stage_artifacts (taxonomy, stage, version, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if _, err = tx.ExecContext(ctx, insert, key.Taxonomy, key.Stage, next, payload, s.now().UTC()); err != nil {
		return 0, fmt.Errorf("insert artifact %s v%d: %w", key, next, err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit artifact %s v%d: %w", key, next, err)
	}
	return next, nil
}

// Get returns the requested version, or the highest when version is Latest.
func (s *SQLStore) Get(ctx context.Context, key Key, version int) ([]byte, int, error) {
	if err := key.validate(); err != nil {
		return nil, 0, err
	}

	var (
		row   artifactRow
		query string
		args  []any
	)
	if version == Latest {
		query = `
			SELECT version, payload
			FROM stage_artifacts
			WHERE taxonomy = ? AND stage = ?
			ORDER BY version DESC
			LIMIT 1
		`
		args = []any{key.Taxonomy, key.Stage}
	} else {
		query = `
			SELECT version, payload
			FROM stage_artifacts
			WHERE taxonomy = ? AND stage = ? AND version = ?
		`
		args = []any{key.Taxonomy, key.Stage, version}
	}

	if err := s.db.GetContext(ctx, &row, s.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, &domain.ArtifactNotFoundError{Taxonomy: key.Taxonomy, Stage: key.Stage, Version: version}
		}
		return nil, 0, fmt.Errorf("get artifact %s: %w", key, err)
	}
	return row.Payload, row.Version, nil
}

// Versions lists stored versions in ascending order.
func (s *SQLStore) Versions(ctx context.Context, key Key) ([]int, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}

	var versions []int
	query := s.db.Rebind(`
		SELECT version
		FROM stage_artifacts
		WHERE taxonomy = ? AND stage = ?
		ORDER BY version
	`)
	if err := s.db.SelectContext(ctx, &versions, query, key.Taxonomy, key.Stage); err != nil {
		return nil, fmt.Errorf("list artifact versions of %s: %w", key, err)
	}
	return versions, nil
}
