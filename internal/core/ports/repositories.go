package ports

import (
	"context"

	"github.com/hive-corporation/ransomwatch/internal/core/domain"
)

// AdvisoryIndex is the persistent store of advisories and the IOCs extracted from them.
// Every operation runs in its own transaction.
type AdvisoryIndex interface {
	// UpsertAdvisory inserts the advisory or replaces every mutable field of an existing one.
	UpsertAdvisory(ctx context.Context, adv domain.Advisory) error

	// InsertIOCs stores records in one transaction and returns how many were written.
	// A record referencing an unknown advisory fails the batch with domain.ErrUnknownAdvisory.
	InsertIOCs(ctx context.Context, records []domain.IOCRecord) (int, error)

	// ClearIOCs removes the advisory's IOCs, limited to source unless source is zero.
	ClearIOCs(ctx context.Context, advisoryID string, source domain.Source) error

	// SearchValue returns the advisories in which value appears as an IP address.
	SearchValue(ctx context.Context, value string) ([]domain.Match, error)

	Stats(ctx context.Context) (domain.Stats, error)
	ListGroups(ctx context.Context) ([]domain.Group, error)

	AdvisoryExists(ctx context.Context, advisoryID string) (bool, error)
	GetAdvisory(ctx context.Context, advisoryID string) (*domain.Advisory, error)
	ListAdvisories(ctx context.Context) ([]domain.Advisory, error)
	ListIOCs(ctx context.Context) ([]domain.IOCRecord, error)

	Close() error
}

// Fetcher retrieves the body of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ProgressFunc receives human-readable progress messages from long-running operations.
type ProgressFunc func(message string)

// AdvisoryDiscoverer produces the set of advisories to ingest.
type AdvisoryDiscoverer interface {
	Discover(ctx context.Context, refresh bool) []domain.Advisory
}

// AdvisoryEnricher fills in an advisory's artifact URLs. It never fails; an
// advisory that cannot be enriched is returned unchanged.
type AdvisoryEnricher interface {
	Enrich(ctx context.Context, adv domain.Advisory) domain.Advisory
}

// ArtifactStore returns the bytes of an advisory artifact.
type ArtifactStore interface {
	Load(ctx context.Context, advisoryID string, source domain.Source, url string) ([]byte, error)
}

// IOCParser extracts IOC records from one artifact.
type IOCParser interface {
	Parse(data []byte, advisoryID string) ([]domain.IOCRecord, error)
	Source() domain.Source
}
