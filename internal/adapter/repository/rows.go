package repository

import (
	"database/sql"
	"sort"
	"time"

	"github.com/hive-corporation/ransomwatch/internal/core/domain"
)

type advisoryRow struct {
	AdvisoryID            string         `db:"advisory_id"`
	Title                 string         `db:"title"`
	URL                   string         `db:"url"`
	Published             sql.NullString `db:"published"`
	StructuredArtifactURL sql.NullString `db:"structured_artifact_url"`
	DocumentArtifactURL   sql.NullString `db:"document_artifact_url"`
}

func newAdvisoryRow(adv domain.Advisory) advisoryRow {
	row := advisoryRow{
		AdvisoryID:            adv.AdvisoryID,
		Title:                 adv.Title,
		URL:                   adv.DetailURL,
		StructuredArtifactURL: nullString(adv.StructuredArtifactURL),
		DocumentArtifactURL:   nullString(adv.DocumentArtifactURL),
	}
	if adv.Published != nil {
		row.Published = nullString(adv.Published.UTC().Format(time.RFC3339))
	}
	return row
}

func (r advisoryRow) toDomain() domain.Advisory {
	return domain.Advisory{
		AdvisoryID:            r.AdvisoryID,
		Title:                 r.Title,
		DetailURL:             r.URL,
		Published:             parsePublished(r.Published),
		StructuredArtifactURL: r.StructuredArtifactURL.String,
		DocumentArtifactURL:   r.DocumentArtifactURL.String,
	}
}

type matchRow struct {
	AdvisoryID string         `db:"advisory_id"`
	Title      string         `db:"title"`
	URL        string         `db:"url"`
	Source     string         `db:"source"`
	Published  sql.NullString `db:"published"`
}

func (r matchRow) toDomain() domain.Match {
	return domain.Match{
		AdvisoryID: r.AdvisoryID,
		Title:      r.Title,
		URL:        r.URL,
		Source:     domain.Source(r.Source),
		Published:  parsePublished(r.Published),
	}
}

type iocRow struct {
	Type       domain.IOCType `db:"ioc_type"`
	Value      string         `db:"value"`
	AdvisoryID string         `db:"advisory_id"`
	Source     string         `db:"source"`
}

func (r iocRow) toDomain() domain.IOCRecord {
	return domain.IOCRecord{
		Type:       r.Type,
		Value:      r.Value,
		AdvisoryID: r.AdvisoryID,
		Source:     domain.Source(r.Source),
	}
}

type countRow struct {
	Key   string `db:"k"`
	Count int    `db:"n"`
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// parsePublished ignores unparseable dates rather than failing the read.
func parsePublished(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// sortGroups orders campaign groups by name, then advisory id.
func sortGroups(groups []domain.Group) {
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Name != groups[j].Name {
			return groups[i].Name < groups[j].Name
		}
		return groups[i].AdvisoryID < groups[j].AdvisoryID
	})
}

func ipTypeArgs() []any {
	return []any{domain.IPv4Address.String(), domain.IPv6Address.String()}
}
