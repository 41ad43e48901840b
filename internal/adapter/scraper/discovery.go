package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hive-corporation/ransomwatch/internal/core/domain"
	"github.com/hive-corporation/ransomwatch/internal/core/ports"
	"github.com/hive-corporation/ransomwatch/internal/metrics"
)

// DefaultMaxPages caps a live discovery run.
const DefaultMaxPages = 10

// StopReason says why live pagination ended.
type StopReason string

const (
	// StopNoRelevantLinks: a page had no #StopRansomware advisory links.
	StopNoRelevantLinks StopReason = "no_relevant_links"
	// StopCaughtUp: every advisory link on a page was already known.
	StopCaughtUp StopReason = "caught_up"
	// StopTransportError: a page could not be fetched or parsed.
	StopTransportError StopReason = "transport_error"
	// StopMaxPages: the page cap was reached.
	StopMaxPages StopReason = "max_pages"
	// StopCancelled: the context was done before the next page.
	StopCancelled StopReason = "cancelled"
)

// DiscoveryReport describes a live discovery run.
type DiscoveryReport struct {
	PagesFetched int
	StopReason   StopReason
	Err          error // set for StopTransportError and StopCancelled
}

// Discoverer builds the advisory set from the seed catalog and, optionally, the live listing.
type Discoverer struct {
	fetcher   ports.Fetcher
	catalog   []CatalogEntry
	baseURL   string
	searchURL string
	maxPages  int
	logger    *zap.Logger
	progress  ports.ProgressFunc
}

// DiscovererOption configures a Discoverer.
type DiscovererOption func(*Discoverer)

func WithBaseURL(u string) DiscovererOption {
	return func(d *Discoverer) { d.baseURL = strings.TrimSuffix(u, "/") }
}

func WithSearchURL(u string) DiscovererOption {
	return func(d *Discoverer) { d.searchURL = u }
}

func WithMaxPages(n int) DiscovererOption {
	return func(d *Discoverer) {
		if n > 0 {
			d.maxPages = n
		}
	}
}

func WithCatalog(entries []CatalogEntry) DiscovererOption {
	return func(d *Discoverer) { d.catalog = entries }
}

func WithDiscoveryLogger(logger *zap.Logger) DiscovererOption {
	return func(d *Discoverer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithProgress(fn ports.ProgressFunc) DiscovererOption {
	return func(d *Discoverer) { d.progress = fn }
}

func NewDiscoverer(fetcher ports.Fetcher, opts ...DiscovererOption) *Discoverer {
	d := &Discoverer{
		fetcher:   fetcher,
		catalog:   DefaultCatalog(),
		baseURL:   DefaultBaseURL,
		searchURL: DefaultSearchURL,
		maxPages:  DefaultMaxPages,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover returns the catalog advisories, or with refresh set, the live listing
// merged over the catalog.
func (d *Discoverer) Discover(ctx context.Context, refresh bool) []domain.Advisory {
	catalog := CatalogAdvisories(d.baseURL, d.catalog)
	if !refresh {
		d.report(fmt.Sprintf("Loaded %d advisories from catalog", len(catalog)))
		return catalog
	}

	live, report := d.DiscoverLive(ctx, nil)
	merged := Merge(live, catalog)
	d.logger.Info("Discovery complete",
		zap.Int("live", len(live)),
		zap.Int("catalog", len(catalog)),
		zap.Int("merged", len(merged)),
		zap.Int("pages", report.PagesFetched),
		zap.String("stop_reason", string(report.StopReason)))
	d.report(fmt.Sprintf("Discovered %d advisories (%d from live listing)", len(merged), len(live)))
	return merged
}

// DiscoverLive pages through the listing and returns advisories not in known,
// in order of first appearance. It never fails: a transport error ends the run
// with whatever was found so far.
func (d *Discoverer) DiscoverLive(ctx context.Context, known map[string]bool) ([]domain.Advisory, DiscoveryReport) {
	base, _ := url.Parse(d.baseURL)
	seen := make(map[string]bool, len(known))
	for id := range known {
		seen[id] = true
	}

	var found []domain.Advisory
	report := DiscoveryReport{StopReason: StopMaxPages}

	for page := 0; page < d.maxPages; page++ {
		if err := ctx.Err(); err != nil {
			report.StopReason, report.Err = StopCancelled, err
			break
		}

		d.report(fmt.Sprintf("Scanning advisory listing page %d...", page+1))
		markup, err := d.fetcher.Fetch(ctx, d.listingURL(page))
		report.PagesFetched++
		if err != nil {
			d.logger.Warn("Listing page fetch failed", zap.Int("page", page), zap.Error(err))
			report.StopReason, report.Err = StopTransportError, err
			break
		}
		anchors, err := ParseAnchors(markup)
		if err != nil {
			d.logger.Warn("Listing page unreadable", zap.Int("page", page), zap.Error(err))
			report.StopReason, report.Err = StopTransportError, err
			break
		}

		linksFound, newOnPage := 0, 0
		for _, a := range anchors {
			id, ok := advisoryIDFromLink(base, a.Href)
			if !ok || !strings.Contains(strings.ToLower(a.Text), strings.ToLower(domain.CampaignMarker)) {
				continue
			}
			linksFound++
			if seen[id] {
				continue
			}
			seen[id] = true
			newOnPage++
			found = append(found, domain.Advisory{
				AdvisoryID: id,
				Title:      a.Text,
				DetailURL:  DetailURL(d.baseURL, id),
			})
		}

		d.logger.Debug("Scanned listing page",
			zap.Int("page", page),
			zap.Int("links_found", linksFound),
			zap.Int("new_on_page", newOnPage))

		if linksFound == 0 {
			report.StopReason = StopNoRelevantLinks
			break
		}
		if newOnPage == 0 {
			report.StopReason = StopCaughtUp
			break
		}
	}

	metrics.RecordDiscovery(string(report.StopReason), report.PagesFetched)
	return found, report
}

// Merge combines live results with catalog entries. Live entries win on every
// field; catalog entries fill in ids the live listing did not return. Live
// results come first in discovery order, then the remaining catalog entries.
func Merge(live, catalog []domain.Advisory) []domain.Advisory {
	byID := make(map[string]struct{}, len(live)+len(catalog))
	merged := make([]domain.Advisory, 0, len(live)+len(catalog))

	for _, a := range live {
		if _, ok := byID[a.AdvisoryID]; ok {
			continue
		}
		byID[a.AdvisoryID] = struct{}{}
		merged = append(merged, a)
	}
	for _, a := range catalog {
		if _, ok := byID[a.AdvisoryID]; ok {
			continue
		}
		byID[a.AdvisoryID] = struct{}{}
		merged = append(merged, a)
	}
	return merged
}

func (d *Discoverer) listingURL(page int) string {
	u, err := url.Parse(d.searchURL)
	if err != nil {
		return d.searchURL + "?page=" + strconv.Itoa(page)
	}
	q := u.Query()
	q.Set("search_api_fulltext", domain.CampaignMarker)
	q.Del("page")
	// page goes last so listing URLs differ only in their tail
	u.RawQuery = q.Encode() + "&page=" + strconv.Itoa(page)
	return u.String()
}

func (d *Discoverer) report(msg string) {
	if d.progress != nil {
		d.progress(msg)
	}
}
