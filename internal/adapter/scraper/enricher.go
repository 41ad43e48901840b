package scraper

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/hive-corporation/ransomwatch/internal/core/domain"
	"github.com/hive-corporation/ransomwatch/internal/core/ports"
)

// Enricher finds the STIX JSON and PDF links on an advisory detail page.
type Enricher struct {
	fetcher ports.Fetcher
	base    *url.URL
	logger  *zap.Logger
}

func NewEnricher(fetcher ports.Fetcher, baseURL string, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}
	return &Enricher{fetcher: fetcher, base: base, logger: logger}
}

// Enrich fetches the advisory's detail page and fills in its artifact URLs.
// A fetch failure returns the advisory unchanged.
func (e *Enricher) Enrich(ctx context.Context, adv domain.Advisory) domain.Advisory {
	markup, err := e.fetcher.Fetch(ctx, adv.DetailURL)
	if err != nil {
		e.logger.Warn("Advisory page fetch failed",
			zap.String("advisory_id", adv.AdvisoryID),
			zap.Error(err))
		return adv
	}

	enriched, err := e.EnrichFromMarkup(adv, markup)
	if err != nil {
		e.logger.Warn("Advisory page unreadable",
			zap.String("advisory_id", adv.AdvisoryID),
			zap.Error(err))
		return adv
	}
	return enriched
}

// EnrichFromMarkup applies the artifact links found in markup to adv. When a
// page links several STIX files the last one is taken, as CISA lists revisions
// in publication order. The last PDF link wins too.
func (e *Enricher) EnrichFromMarkup(adv domain.Advisory, markup []byte) (domain.Advisory, error) {
	anchors, err := ParseAnchors(markup)
	if err != nil {
		return adv, err
	}

	for _, a := range anchors {
		href := e.resolve(a.Href)
		lower := strings.ToLower(href)

		if strings.HasSuffix(lower, ".json") {
			text := strings.ToLower(a.Text)
			if strings.Contains(lower, "stix") || strings.Contains(text, "stix") || strings.Contains(text, "json") {
				adv.StructuredArtifactURL = href
			}
		}
		if strings.HasSuffix(lower, ".pdf") {
			adv.DocumentArtifactURL = href
		}
	}
	return adv, nil
}

func (e *Enricher) resolve(href string) string {
	if e.base == nil || strings.HasPrefix(href, "http") {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return e.base.ResolveReference(ref).String()
}
