// Package exporter renders the index as feeds for downstream tooling.
package exporter

import (
	"context"
	"fmt"
	"time"

	"github.com/hive-corporation/ransomwatch/internal/core/domain"
	"github.com/hive-corporation/ransomwatch/internal/core/ports"
)

// Indicator is one distinct (type, value) pair with every advisory it was seen in.
type Indicator struct {
	Type       domain.IOCType
	Value      string
	Advisories []domain.Advisory
	Sources    []domain.Source
	Sightings  int
	FirstSeen  *time.Time
}

// Confidence grows with the number of advisory artifacts that list the indicator.
func (i Indicator) Confidence() int {
	return domain.CalculateConfidenceScore(i.Sightings)
}

// Campaigns returns the campaign names of the advisories, in advisory order.
func (i Indicator) Campaigns() []string {
	names := make([]string, 0, len(i.Advisories))
	seen := make(map[string]bool, len(i.Advisories))
	for _, adv := range i.Advisories {
		name := domain.CampaignName(adv.Title)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

type indicatorKey struct {
	typ   domain.IOCType
	value string
}

// loadIndicators reads the whole index and folds records into indicators,
// keeping the order in which each (type, value) was first stored.
func loadIndicators(ctx context.Context, index ports.AdvisoryIndex) ([]Indicator, error) {
	advisories, err := index.ListAdvisories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list advisories: %w", err)
	}
	records, err := index.ListIOCs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list IOCs: %w", err)
	}
	return buildIndicators(advisories, records), nil
}

func buildIndicators(advisories []domain.Advisory, records []domain.IOCRecord) []Indicator {
	byID := make(map[string]domain.Advisory, len(advisories))
	for _, adv := range advisories {
		byID[adv.AdvisoryID] = adv
	}

	var indicators []Indicator
	positions := make(map[indicatorKey]int)

	for _, r := range records {
		k := indicatorKey{typ: r.Type, value: r.Value}
		pos, ok := positions[k]
		if !ok {
			pos = len(indicators)
			positions[k] = pos
			indicators = append(indicators, Indicator{Type: r.Type, Value: r.Value})
		}
		ind := &indicators[pos]
		ind.Sightings++

		if !containsSource(ind.Sources, r.Source) {
			ind.Sources = append(ind.Sources, r.Source)
		}

		adv, known := byID[r.AdvisoryID]
		if !known {
			adv = domain.Advisory{AdvisoryID: r.AdvisoryID}
		}
		if !containsAdvisory(ind.Advisories, adv.AdvisoryID) {
			ind.Advisories = append(ind.Advisories, adv)
		}
		if adv.Published != nil && (ind.FirstSeen == nil || adv.Published.Before(*ind.FirstSeen)) {
			published := *adv.Published
			ind.FirstSeen = &published
		}
	}
	return indicators
}

func containsSource(sources []domain.Source, s domain.Source) bool {
	for _, existing := range sources {
		if existing == s {
			return true
		}
	}
	return false
}

func containsAdvisory(advisories []domain.Advisory, id string) bool {
	for _, adv := range advisories {
		if adv.AdvisoryID == id {
			return true
		}
	}
	return false
}

// Exporter renders the index in one feed format.
type Exporter interface {
	Export(ctx context.Context) (string, error)
}

// Formats lists the feed formats New understands.
var Formats = []string{"json", "stix", "cef"}

// New returns the exporter for format and the content type of its output.
func New(format string, index ports.AdvisoryIndex) (Exporter, string, error) {
	switch format {
	case "json":
		return NewJSONExporter(index), "application/json", nil
	case "stix":
		return NewSTIXExporter(index), "application/stix+json;version=2.1", nil
	case "cef":
		return NewCEFExporter(index), "text/plain; charset=utf-8", nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
