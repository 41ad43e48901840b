package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hive-corporation/ransomwatch/internal/adapter/parser"
	"github.com/hive-corporation/ransomwatch/internal/adapter/repository"
	"github.com/hive-corporation/ransomwatch/internal/core/domain"
	"github.com/hive-corporation/ransomwatch/internal/core/ports"
	"github.com/hive-corporation/ransomwatch/internal/core/service"
)

type staticDiscoverer struct {
	advisories []domain.Advisory
	refreshed  bool
}

func (d *staticDiscoverer) Discover(_ context.Context, refresh bool) []domain.Advisory {
	d.refreshed = refresh
	return d.advisories
}

// mapEnricher sets artifact URLs from a table keyed by advisory id.
type mapEnricher map[string][2]string

func (m mapEnricher) Enrich(_ context.Context, adv domain.Advisory) domain.Advisory {
	if urls, ok := m[adv.AdvisoryID]; ok {
		adv.StructuredArtifactURL = urls[0]
		adv.DocumentArtifactURL = urls[1]
	}
	return adv
}

type mapStore struct {
	mu    sync.Mutex
	files map[string][]byte
	loads []string
}

func (s *mapStore) Load(_ context.Context, _ string, _ domain.Source, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads = append(s.loads, url)
	data, ok := s.files[url]
	if !ok {
		return nil, fmt.Errorf("HTTP 404: %s", url)
	}
	return data, nil
}

type pagesExtractor struct{}

// ExtractPages treats the bytes as a single page of text.
func (pagesExtractor) ExtractPages(data []byte) ([]string, error) {
	return []string{string(data)}, nil
}

type recordingNotifier struct {
	newAdvisories []ports.AdvisoryNotification
	summaries     []ports.IngestionNotification
}

func (n *recordingNotifier) NotifyNewAdvisories(a []ports.AdvisoryNotification) error {
	n.newAdvisories = append(n.newAdvisories, a...)
	return nil
}

func (n *recordingNotifier) NotifyIngestionSummary(s ports.IngestionNotification) error {
	n.summaries = append(n.summaries, s)
	return nil
}

func newIndex(t *testing.T) *repository.SQLiteIndex {
	t.Helper()
	idx, err := repository.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ransomwatch.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func royal() domain.Advisory {
	return domain.Advisory{
		AdvisoryID: "aa23-061a",
		Title:      "#StopRansomware: Blacksuit (Royal) Ransomware",
		DetailURL:  "https://www.cisa.gov/news-events/cybersecurity-advisories/aa23-061a",
	}
}

func newIngester(idx ports.AdvisoryIndex, d ports.AdvisoryDiscoverer, e ports.AdvisoryEnricher, s ports.ArtifactStore, opts ...service.IngesterOption) *service.Ingester {
	return service.NewIngester(idx, d, e, s,
		parser.NewStructuredParser(),
		parser.NewDocumentParser(pagesExtractor{}),
		opts...)
}

func TestIngester_EndToEndLookup(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)

	store := &mapStore{files: map[string][]byte{
		"https://x/aa23-061a.json": []byte(`{"objects":[{"type":"indicator","pattern":"[ipv4-addr:value = '193.233.254.21']"}]}`),
	}}
	ingester := newIngester(idx,
		&staticDiscoverer{advisories: []domain.Advisory{royal()}},
		mapEnricher{"aa23-061a": {"https://x/aa23-061a.json", ""}},
		store)

	summary, err := ingester.Run(ctx, service.IngestOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Advisories != 1 || summary.IOCsStored != 1 {
		t.Errorf("Unexpected summary: %+v", summary)
	}

	result, err := service.NewLookup(idx).Check(ctx, "193.233.254.21")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !result.Found || len(result.Matches) != 1 {
		t.Fatalf("Expected exactly one match, got %+v", result)
	}
	m := result.Matches[0]
	if m.AdvisoryID != "aa23-061a" || m.Source != domain.SourceStructured {
		t.Errorf("Unexpected match: %+v", m)
	}
}

func TestIngester_ReingestReplacesNotAccumulates(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)

	store := &mapStore{files: map[string][]byte{
		"https://x/s.json": []byte(`[{"type":"indicator","pattern":"[ipv4-addr:value = '1.1.1.1'] OR [ipv4-addr:value = '2.2.2.2']"}]`),
		"https://x/d.pdf":  []byte("Observed 3[.]3[.]3[.]3 and 1.1.1.1"),
	}}
	ingester := newIngester(idx,
		&staticDiscoverer{advisories: []domain.Advisory{royal()}},
		mapEnricher{"aa23-061a": {"https://x/s.json", "https://x/d.pdf"}},
		store)

	for i := 0; i < 2; i++ {
		if _, err := ingester.Run(ctx, service.IngestOptions{IncludeDocuments: true}); err != nil {
			t.Fatalf("Run %d failed: %v", i+1, err)
		}
	}

	stats, err := idx.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Advisories != 1 || stats.TotalIOCs != 4 {
		t.Errorf("Expected 1 advisory and 4 IOCs after re-ingest, got %+v", stats)
	}
	if stats.BySource["structured"] != 2 || stats.BySource["document"] != 2 {
		t.Errorf("Unexpected by-source counts: %v", stats.BySource)
	}
}

func TestIngester_DocumentsSkippedUnlessRequested(t *testing.T) {
	idx := newIndex(t)
	store := &mapStore{files: map[string][]byte{
		"https://x/d.pdf": []byte("1.2.3.4"),
	}}
	ingester := newIngester(idx,
		&staticDiscoverer{advisories: []domain.Advisory{royal()}},
		mapEnricher{"aa23-061a": {"", "https://x/d.pdf"}},
		store)

	summary, err := ingester.Run(context.Background(), service.IngestOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.IOCsStored != 0 || len(store.loads) != 0 {
		t.Errorf("Expected no document download, got %d loads and %d IOCs", len(store.loads), summary.IOCsStored)
	}
}

func TestIngester_ArtifactFailuresDoNotAbort(t *testing.T) {
	idx := newIndex(t)

	second := domain.Advisory{AdvisoryID: "aa24-131a", Title: "#StopRansomware: Black Basta", DetailURL: "https://x/aa24-131a"}
	store := &mapStore{files: map[string][]byte{
		"https://x/bad.json":  []byte(`not json`),
		"https://x/good.json": []byte(`{"objects":[{"type":"indicator","pattern":"[domain-name:value = 'evil.example']"}]}`),
	}}
	ingester := newIngester(idx,
		&staticDiscoverer{advisories: []domain.Advisory{royal(), second}},
		mapEnricher{
			"aa23-061a": {"https://x/bad.json", "https://x/missing.pdf"},
			"aa24-131a": {"https://x/good.json", ""},
		},
		store)

	summary, err := ingester.Run(context.Background(), service.IngestOptions{IncludeDocuments: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Advisories != 2 || summary.IOCsStored != 1 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
	if len(summary.Failures) != 2 {
		t.Errorf("Expected 2 recorded failures, got %v", summary.Failures)
	}
}

func TestIngester_NotifiesNewAdvisoriesOnRefresh(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)
	if err := idx.UpsertAdvisory(ctx, royal()); err != nil {
		t.Fatalf("UpsertAdvisory failed: %v", err)
	}

	fresh := domain.Advisory{AdvisoryID: "aa26-001a", Title: "#StopRansomware: Alpha", DetailURL: "https://x/aa26-001a"}
	notifier := &recordingNotifier{}
	discoverer := &staticDiscoverer{advisories: []domain.Advisory{fresh, royal()}}
	ingester := newIngester(idx, discoverer, mapEnricher{}, &mapStore{}, service.WithNotifier(notifier))

	summary, err := ingester.Run(ctx, service.IngestOptions{Refresh: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !discoverer.refreshed {
		t.Error("Expected refresh to reach the discoverer")
	}
	if len(summary.NewAdvisories) != 1 || summary.NewAdvisories[0].AdvisoryID != "aa26-001a" {
		t.Errorf("Unexpected new advisories: %+v", summary.NewAdvisories)
	}
	if len(notifier.newAdvisories) != 1 || notifier.newAdvisories[0].AdvisoryID != "aa26-001a" {
		t.Errorf("Unexpected notification: %+v", notifier.newAdvisories)
	}
	if len(notifier.summaries) != 1 || notifier.summaries[0].Advisories != 2 {
		t.Errorf("Unexpected summary notification: %+v", notifier.summaries)
	}
}

func TestIngester_CancelledBetweenAdvisories(t *testing.T) {
	idx := newIndex(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &mapStore{files: map[string][]byte{
		"https://x/s.json": []byte(`{"objects":[{"type":"indicator","pattern":"[ipv4-addr:value = '1.1.1.1']"}]}`),
	}}
	ingester := newIngester(idx,
		&staticDiscoverer{advisories: []domain.Advisory{royal(), {AdvisoryID: "aa24-131a", Title: "x", DetailURL: "y"}}},
		mapEnricher{"aa23-061a": {"https://x/s.json", ""}},
		store,
		service.WithProgress(func(msg string) {
			// Cancel once the first advisory's IOCs are stored
			if strings.Contains(msg, "IOCs") {
				cancel()
			}
		}))

	summary, err := ingester.Run(ctx, service.IngestOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if summary.Advisories != 1 || summary.IOCsStored != 1 {
		t.Errorf("Expected the in-flight advisory to finish, got %+v", summary)
	}
}

// failingIndex rejects every IOC batch as referencing an unknown advisory.
type failingIndex struct {
	*repository.SQLiteIndex
}

func (f failingIndex) InsertIOCs(context.Context, []domain.IOCRecord) (int, error) {
	return 0, fmt.Errorf("%w: aa23-061a", domain.ErrUnknownAdvisory)
}

func TestIngester_StorageIntegrityErrorAborts(t *testing.T) {
	idx := failingIndex{newIndex(t)}
	store := &mapStore{files: map[string][]byte{
		"https://x/s.json": []byte(`{"objects":[{"type":"indicator","pattern":"[ipv4-addr:value = '1.1.1.1']"}]}`),
	}}
	ingester := newIngester(idx,
		&staticDiscoverer{advisories: []domain.Advisory{royal()}},
		mapEnricher{"aa23-061a": {"https://x/s.json", ""}},
		store)

	_, err := ingester.Run(context.Background(), service.IngestOptions{})
	if !errors.Is(err, domain.ErrUnknownAdvisory) {
		t.Errorf("Expected ErrUnknownAdvisory, got %v", err)
	}
}

func TestLookup_Check(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)
	if err := idx.UpsertAdvisory(ctx, royal()); err != nil {
		t.Fatalf("UpsertAdvisory failed: %v", err)
	}
	if _, err := idx.InsertIOCs(ctx, []domain.IOCRecord{
		{Type: domain.IPv4Address, Value: "45.61.136.47", AdvisoryID: "aa23-061a", Source: domain.SourceDocument},
	}); err != nil {
		t.Fatalf("InsertIOCs failed: %v", err)
	}

	lookup := service.NewLookup(idx)

	tests := []struct {
		query      string
		normalized string
		found      bool
	}{
		{"45.61.136.47", "45.61.136.47", true},
		{"  45[.]61[.]136[.]47 ", "45.61.136.47", true},
		{"45(dot)61(dot)136(dot)47", "45.61.136.47", true},
		{"8.8.8.8", "8.8.8.8", false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			result, err := lookup.Check(ctx, tt.query)
			if err != nil {
				t.Fatalf("Check failed: %v", err)
			}
			if result.NormalizedValue != tt.normalized || result.Found != tt.found {
				t.Errorf("Unexpected result: %+v", result)
			}
			if result.Matches == nil {
				t.Error("Matches must be an empty list, not nil")
			}
		})
	}

	if _, err := lookup.Check(ctx, "   "); !errors.Is(err, domain.ErrEmptyQuery) {
		t.Errorf("Expected ErrEmptyQuery, got %v", err)
	}
}
