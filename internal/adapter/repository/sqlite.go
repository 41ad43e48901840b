package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hive-corporation/ransomwatch/internal/core/domain"
)

// SQLiteIndex is the local-file advisory index. Every method runs in its own transaction.
type SQLiteIndex struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewSQLiteIndex(db *sqlx.DB, logger *zap.Logger) *SQLiteIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteIndex{db: db, logger: logger}
}

// OpenSQLite opens (creating if needed) the database file at path and migrates it.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteIndex, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	idx := NewSQLiteIndex(db, logger)
	if err := idx.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// sqliteDSN builds a file: URI for path. The path is escaped so ? and # in a
// file name are not read as the query or fragment.
func sqliteDSN(path string) string {
	// Foreign keys are a per-connection setting in SQLite
	return "file:" + (&url.URL{Path: path}).EscapedPath() + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}

// Migrate creates the schema if it does not exist.
func (s *SQLiteIndex) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

func (s *SQLiteIndex) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("Rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) UpsertAdvisory(ctx context.Context, adv domain.Advisory) error {
	query := `
		INSERT INTO advisories (advisory_id, title, url, published, structured_artifact_url, document_artifact_url)
		VALUES (:advisory_id, :title, :url, :published, :structured_artifact_url, :document_artifact_url)
		ON CONFLICT(advisory_id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			published = excluded.published,
			structured_artifact_url = excluded.structured_artifact_url,
			document_artifact_url = excluded.document_artifact_url
	`

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, newAdvisoryRow(adv)); err != nil {
			return fmt.Errorf("failed to upsert advisory %s: %w", adv.AdvisoryID, err)
		}
		return nil
	})
}

func (s *SQLiteIndex) InsertIOCs(ctx context.Context, records []domain.IOCRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query := `INSERT INTO iocs (ioc_type, value, advisory_id, source) VALUES (?, ?, ?, ?)`

	inserted := 0
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			if _, err := stmt.ExecContext(ctx, r.Type, r.Value, r.AdvisoryID, string(r.Source)); err != nil {
				return translateSQLiteError(r.AdvisoryID, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *SQLiteIndex) ClearIOCs(ctx context.Context, advisoryID string, source domain.Source) error {
	query := `DELETE FROM iocs WHERE advisory_id = ?`
	args := []any{advisoryID}
	if source != "" {
		query += ` AND source = ?`
		args = append(args, string(source))
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to clear IOCs for %s: %w", advisoryID, err)
		}
		return nil
	})
}

func (s *SQLiteIndex) SearchValue(ctx context.Context, value string) ([]domain.Match, error) {
	query := `
		SELECT i.advisory_id, a.title, a.url, i.source, a.published
		FROM iocs i
		JOIN advisories a ON a.advisory_id = i.advisory_id
		WHERE i.value = ? AND i.ioc_type IN (?, ?)
		ORDER BY i.id
	`

	var rows []matchRow
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		args := append([]any{value}, ipTypeArgs()...)
		if err := tx.SelectContext(ctx, &rows, query, args...); err != nil {
			return fmt.Errorf("failed to search IOCs: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	matches := make([]domain.Match, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, r.toDomain())
	}
	return matches, nil
}

func (s *SQLiteIndex) Stats(ctx context.Context) (domain.Stats, error) {
	stats := domain.Stats{ByType: map[string]int{}, BySource: map[string]int{}}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &stats.Advisories, `SELECT COUNT(*) FROM advisories`); err != nil {
			return fmt.Errorf("failed to count advisories: %w", err)
		}
		if err := tx.GetContext(ctx, &stats.TotalIOCs, `SELECT COUNT(*) FROM iocs`); err != nil {
			return fmt.Errorf("failed to count IOCs: %w", err)
		}

		var byType []countRow
		if err := tx.SelectContext(ctx, &byType, `SELECT ioc_type AS k, COUNT(*) AS n FROM iocs GROUP BY ioc_type`); err != nil {
			return fmt.Errorf("failed to count IOCs by type: %w", err)
		}
		for _, c := range byType {
			stats.ByType[c.Key] = c.Count
		}

		var bySource []countRow
		if err := tx.SelectContext(ctx, &bySource, `SELECT source AS k, COUNT(*) AS n FROM iocs GROUP BY source`); err != nil {
			return fmt.Errorf("failed to count IOCs by source: %w", err)
		}
		for _, c := range bySource {
			stats.BySource[c.Key] = c.Count
		}
		return nil
	})
	return stats, err
}

func (s *SQLiteIndex) ListGroups(ctx context.Context) ([]domain.Group, error) {
	advisories, err := s.ListAdvisories(ctx)
	if err != nil {
		return nil, err
	}

	groups := make([]domain.Group, 0, len(advisories))
	for _, a := range advisories {
		groups = append(groups, domain.Group{Name: domain.CampaignName(a.Title), AdvisoryID: a.AdvisoryID})
	}
	sortGroups(groups)
	return groups, nil
}

func (s *SQLiteIndex) AdvisoryExists(ctx context.Context, advisoryID string) (bool, error) {
	var exists bool
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM advisories WHERE advisory_id = ?)`, advisoryID); err != nil {
			return fmt.Errorf("failed to check advisory %s: %w", advisoryID, err)
		}
		return nil
	})
	return exists, err
}

func (s *SQLiteIndex) GetAdvisory(ctx context.Context, advisoryID string) (*domain.Advisory, error) {
	query := `
		SELECT advisory_id, title, url, published, structured_artifact_url, document_artifact_url
		FROM advisories
		WHERE advisory_id = ?
	`

	var row advisoryRow
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &row, query, advisoryID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", domain.ErrAdvisoryNotFound, advisoryID)
			}
			return fmt.Errorf("failed to get advisory %s: %w", advisoryID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	adv := row.toDomain()
	return &adv, nil
}

func (s *SQLiteIndex) ListAdvisories(ctx context.Context) ([]domain.Advisory, error) {
	query := `
		SELECT advisory_id, title, url, published, structured_artifact_url, document_artifact_url
		FROM advisories
		ORDER BY advisory_id
	`

	var rows []advisoryRow
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &rows, query); err != nil {
			return fmt.Errorf("failed to list advisories: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	advisories := make([]domain.Advisory, 0, len(rows))
	for _, r := range rows {
		advisories = append(advisories, r.toDomain())
	}
	return advisories, nil
}

func (s *SQLiteIndex) ListIOCs(ctx context.Context) ([]domain.IOCRecord, error) {
	var rows []iocRow
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &rows, `SELECT ioc_type, value, advisory_id, source FROM iocs ORDER BY id`); err != nil {
			return fmt.Errorf("failed to list IOCs: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	records := make([]domain.IOCRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.toDomain())
	}
	return records, nil
}

// translateSQLiteError maps a foreign key failure to domain.ErrUnknownAdvisory.
func translateSQLiteError(advisoryID string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
		return fmt.Errorf("%w: %s", domain.ErrUnknownAdvisory, advisoryID)
	}
	return fmt.Errorf("failed to insert IOC for %s: %w", advisoryID, err)
}
