package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hive-corporation/ransomwatch/internal/core/domain"
)

// pgForeignKeyViolation is the SQLSTATE for foreign_key_violation.
const pgForeignKeyViolation = "23503"

// PostgresIndex is the shared-server advisory index.
type PostgresIndex struct {
	db *pgxpool.Pool
}

func NewPostgresIndex(db *pgxpool.Pool) *PostgresIndex {
	return &PostgresIndex{db: db}
}

// OpenPostgres connects to databaseURL and migrates the schema.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresIndex, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	idx := NewPostgresIndex(pool)
	if err := idx.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

func (r *PostgresIndex) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (r *PostgresIndex) Close() error {
	r.db.Close()
	return nil
}

func (r *PostgresIndex) UpsertAdvisory(ctx context.Context, adv domain.Advisory) error {
	query := `
		INSERT INTO advisories (advisory_id, title, url, published, structured_artifact_url, document_artifact_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (advisory_id) DO UPDATE SET
			title = EXCLUDED.title,
			url = EXCLUDED.url,
			published = EXCLUDED.published,
			structured_artifact_url = EXCLUDED.structured_artifact_url,
			document_artifact_url = EXCLUDED.document_artifact_url
	`

	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			adv.AdvisoryID,
			adv.Title,
			adv.DetailURL,
			adv.Published,
			nullString(adv.StructuredArtifactURL),
			nullString(adv.DocumentArtifactURL),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert advisory %s: %w", adv.AdvisoryID, err)
		}
		return nil
	})
}

func (r *PostgresIndex) InsertIOCs(ctx context.Context, records []domain.IOCRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query := `INSERT INTO iocs (ioc_type, value, advisory_id, source) VALUES ($1, $2, $3, $4)`

	inserted := 0
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range records {
			batch.Queue(query, rec.Type.String(), rec.Value, rec.AdvisoryID, string(rec.Source))
		}

		br := tx.SendBatch(ctx, batch)
		for _, rec := range records {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return translatePostgresError(rec.AdvisoryID, err)
			}
			inserted++
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("failed to execute batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *PostgresIndex) ClearIOCs(ctx context.Context, advisoryID string, source domain.Source) error {
	query := `DELETE FROM iocs WHERE advisory_id = $1`
	args := []any{advisoryID}
	if source != "" {
		query += ` AND source = $2`
		args = append(args, string(source))
	}

	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to clear IOCs for %s: %w", advisoryID, err)
		}
		return nil
	})
}

func (r *PostgresIndex) SearchValue(ctx context.Context, value string) ([]domain.Match, error) {
	query := `
		SELECT i.advisory_id, a.title, a.url, i.source, a.published
		FROM iocs i
		JOIN advisories a ON a.advisory_id = i.advisory_id
		WHERE i.value = $1 AND i.ioc_type IN ($2, $3)
		ORDER BY i.id
	`

	var matches []domain.Match
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		args := append([]any{value}, ipTypeArgs()...)
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to search IOCs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var m domain.Match
			var source string
			if err := rows.Scan(&m.AdvisoryID, &m.Title, &m.URL, &source, &m.Published); err != nil {
				return fmt.Errorf("failed to scan match: %w", err)
			}
			m.Source = domain.Source(source)
			matches = append(matches, m)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []domain.Match{}
	}
	return matches, nil
}

func (r *PostgresIndex) Stats(ctx context.Context) (domain.Stats, error) {
	stats := domain.Stats{ByType: map[string]int{}, BySource: map[string]int{}}

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM advisories`).Scan(&stats.Advisories); err != nil {
			return fmt.Errorf("failed to count advisories: %w", err)
		}
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM iocs`).Scan(&stats.TotalIOCs); err != nil {
			return fmt.Errorf("failed to count IOCs: %w", err)
		}
		if err := collectCounts(ctx, tx, `SELECT ioc_type, COUNT(*) FROM iocs GROUP BY ioc_type`, stats.ByType); err != nil {
			return fmt.Errorf("failed to count IOCs by type: %w", err)
		}
		if err := collectCounts(ctx, tx, `SELECT source, COUNT(*) FROM iocs GROUP BY source`, stats.BySource); err != nil {
			return fmt.Errorf("failed to count IOCs by source: %w", err)
		}
		return nil
	})
	return stats, err
}

func collectCounts(ctx context.Context, tx pgx.Tx, query string, into map[string]int) error {
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}

func (r *PostgresIndex) ListGroups(ctx context.Context) ([]domain.Group, error) {
	advisories, err := r.ListAdvisories(ctx)
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

func (r *PostgresIndex) AdvisoryExists(ctx context.Context, advisoryID string) (bool, error) {
	var exists bool
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM advisories WHERE advisory_id = $1)`, advisoryID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check advisory %s: %w", advisoryID, err)
		}
		return nil
	})
	return exists, err
}

func (r *PostgresIndex) GetAdvisory(ctx context.Context, advisoryID string) (*domain.Advisory, error) {
	query := `
		SELECT advisory_id, title, url, published, structured_artifact_url, document_artifact_url
		FROM advisories
		WHERE advisory_id = $1
	`

	var adv domain.Advisory
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		err := scanAdvisory(tx.QueryRow(ctx, query, advisoryID), &adv)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", domain.ErrAdvisoryNotFound, advisoryID)
		}
		if err != nil {
			return fmt.Errorf("failed to get advisory %s: %w", advisoryID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &adv, nil
}

func (r *PostgresIndex) ListAdvisories(ctx context.Context) ([]domain.Advisory, error) {
	query := `
		SELECT advisory_id, title, url, published, structured_artifact_url, document_artifact_url
		FROM advisories
		ORDER BY advisory_id
	`

	advisories := []domain.Advisory{}
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to list advisories: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var adv domain.Advisory
			if err := scanAdvisory(rows, &adv); err != nil {
				return fmt.Errorf("failed to scan advisory: %w", err)
			}
			advisories = append(advisories, adv)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return advisories, nil
}

func (r *PostgresIndex) ListIOCs(ctx context.Context) ([]domain.IOCRecord, error) {
	records := []domain.IOCRecord{}
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT ioc_type, value, advisory_id, source FROM iocs ORDER BY id`)
		if err != nil {
			return fmt.Errorf("failed to list IOCs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var tag, source string
			var rec domain.IOCRecord
			if err := rows.Scan(&tag, &rec.Value, &rec.AdvisoryID, &source); err != nil {
				return fmt.Errorf("failed to scan IOC: %w", err)
			}
			rec.Type = domain.ParseIOCType(tag)
			rec.Source = domain.Source(source)
			records = append(records, rec)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func scanAdvisory(row pgx.Row, adv *domain.Advisory) error {
	var published *time.Time
	var structured, document sql.NullString
	if err := row.Scan(&adv.AdvisoryID, &adv.Title, &adv.DetailURL, &published, &structured, &document); err != nil {
		return err
	}
	adv.Published = published
	adv.StructuredArtifactURL = structured.String
	adv.DocumentArtifactURL = document.String
	return nil
}

// translatePostgresError maps a foreign key failure to domain.ErrUnknownAdvisory.
func translatePostgresError(advisoryID string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return fmt.Errorf("%w: %s", domain.ErrUnknownAdvisory, advisoryID)
	}
	return fmt.Errorf("failed to insert IOC for %s: %w", advisoryID, err)
}
