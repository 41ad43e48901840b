package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hive-corporation/ransomwatch/internal/adapter/httpclient"
	"github.com/hive-corporation/ransomwatch/internal/core/domain"
)

func TestEnricher_EnrichFromMarkup(t *testing.T) {
	tests := []struct {
		name       string
		markup     string
		structured string
		document   string
	}{
		{
			name: "last stix revision wins",
			markup: `<a href="/sites/default/files/2023-03/AA23-061A.stix.json">STIX v1</a>
				<a href="/sites/default/files/2024-08/AA23-061A.stix_.json">STIX v2</a>`,
			structured: "https://www.cisa.gov/sites/default/files/2024-08/AA23-061A.stix_.json",
		},
		{
			name:       "json link qualified by text",
			markup:     `<a href="/files/aa22-321a.json">Download JSON</a>`,
			structured: "https://www.cisa.gov/files/aa22-321a.json",
		},
		{
			name:   "unrelated json ignored",
			markup: `<a href="/files/feed.json">Site feed</a>`,
		},
		{
			name: "last pdf wins",
			markup: `<a href="https://www.cisa.gov/old.pdf">PDF</a>
				<a href="/new.pdf">PDF</a>`,
			document: "https://www.cisa.gov/new.pdf",
		},
		{
			name: "both artifacts",
			markup: `<a href="https://files.example/aa24-131a_stix.json">Indicators</a>
				<a href="/aa24-131a.pdf">Advisory PDF</a>
				<a href="/news">News</a>`,
			structured: "https://files.example/aa24-131a_stix.json",
			document:   "https://www.cisa.gov/aa24-131a.pdf",
		},
	}

	e := NewEnricher(nil, "https://www.cisa.gov", nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv, err := e.EnrichFromMarkup(domain.Advisory{AdvisoryID: "aa23-061a"}, []byte(tt.markup))
			if err != nil {
				t.Fatalf("EnrichFromMarkup failed: %v", err)
			}
			if adv.StructuredArtifactURL != tt.structured {
				t.Errorf("Expected structured URL %q, got %q", tt.structured, adv.StructuredArtifactURL)
			}
			if adv.DocumentArtifactURL != tt.document {
				t.Errorf("Expected document URL %q, got %q", tt.document, adv.DocumentArtifactURL)
			}
		})
	}
}

func TestEnricher_Enrich(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/news-events/cybersecurity-advisories/aa23-061a" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`<a href="/files/aa23-061a.stix.json">STIX</a><a href="/files/aa23-061a.pdf">PDF</a>`))
	}))
	defer server.Close()

	fetcher := httpclient.NewPoliteFetcher(server.Client(), httpclient.WithDelay(time.Millisecond))
	e := NewEnricher(fetcher, server.URL, nil)

	adv := e.Enrich(context.Background(), domain.Advisory{
		AdvisoryID: "aa23-061a",
		DetailURL:  DetailURL(server.URL, "aa23-061a"),
	})
	if adv.StructuredArtifactURL != server.URL+"/files/aa23-061a.stix.json" {
		t.Errorf("Unexpected structured URL: %s", adv.StructuredArtifactURL)
	}
	if adv.DocumentArtifactURL != server.URL+"/files/aa23-061a.pdf" {
		t.Errorf("Unexpected document URL: %s", adv.DocumentArtifactURL)
	}
}

func TestEnricher_FetchFailureLeavesAdvisoryUnset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := httpclient.NewPoliteFetcher(server.Client(), httpclient.WithDelay(0))
	e := NewEnricher(fetcher, server.URL, nil)

	in := domain.Advisory{AdvisoryID: "aa99-999a", Title: "x", DetailURL: DetailURL(server.URL, "aa99-999a")}
	out := e.Enrich(context.Background(), in)
	if out != in {
		t.Errorf("Expected advisory unchanged, got %+v", out)
	}
}
