package service

import (
	"context"
	"strings"

	"github.com/hive-corporation/ransomwatch/internal/core/domain"
	"github.com/hive-corporation/ransomwatch/internal/core/ports"
	"github.com/hive-corporation/ransomwatch/internal/metrics"
)

// Lookup answers "has this address appeared in any advisory?".
type Lookup struct {
	index ports.AdvisoryIndex
}

func NewLookup(index ports.AdvisoryIndex) *Lookup {
	return &Lookup{index: index}
}

// Check refangs the query and searches the index for it. Defanged input such as
// 192[.]168[.]1[.]1 or 192(dot)168(dot)1(dot)1 is accepted.
func (l *Lookup) Check(ctx context.Context, query string) (domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.SearchResult{}, domain.ErrEmptyQuery
	}

	normalized := domain.NormalizeIOCValue(query, domain.IPv4Address)
	matches, err := l.index.SearchValue(ctx, normalized)
	if err != nil {
		metrics.RecordLookup("error")
		return domain.SearchResult{}, err
	}

	result := domain.SearchResult{
		Query:           query,
		NormalizedValue: normalized,
		Found:           len(matches) > 0,
		Matches:         matches,
	}
	if result.Matches == nil {
		result.Matches = []domain.Match{}
	}

	if result.Found {
		metrics.RecordLookup("found")
	} else {
		metrics.RecordLookup("not_found")
	}
	return result, nil
}
