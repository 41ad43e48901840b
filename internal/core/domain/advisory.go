package domain

import (
	"strings"
	"time"
)

// CampaignMarker is the tag CISA puts in the title of every ransomware advisory.
const CampaignMarker = "#StopRansomware"

var titlePrefixes = []string{CampaignMarker + ": ", CampaignMarker + ":"}

// Advisory is a published #StopRansomware bulletin.
type Advisory struct {
	AdvisoryID            string     `json:"advisory_id"` // e.g. aa23-061a
	Title                 string     `json:"title"`
	DetailURL             string     `json:"url"`
	Published             *time.Time `json:"published,omitempty"`
	StructuredArtifactURL string     `json:"structured_artifact_url,omitempty"` // STIX JSON
	DocumentArtifactURL   string     `json:"document_artifact_url,omitempty"`   // PDF
}

// Match is one advisory sighting of a searched value.
type Match struct {
	AdvisoryID string     `json:"advisory_id"`
	Title      string     `json:"title"`
	URL        string     `json:"url"`
	Source     Source     `json:"source"`
	Published  *time.Time `json:"published"`
}

// SearchResult is the answer to a point lookup. It is never persisted.
type SearchResult struct {
	Query           string  `json:"query"`
	NormalizedValue string  `json:"normalized_ip"`
	Found           bool    `json:"found"`
	Matches         []Match `json:"matches"`
}

// Stats aggregates the index contents.
type Stats struct {
	Advisories int            `json:"advisories"`
	TotalIOCs  int            `json:"total_iocs"`
	ByType     map[string]int `json:"by_type"`
	BySource   map[string]int `json:"by_source"`
}

// Group pairs a campaign name with the advisory it was derived from.
type Group struct {
	Name       string `json:"name"`
	AdvisoryID string `json:"advisory_id"`
}

// CampaignName strips the #StopRansomware prefix from an advisory title.
// Titles without the prefix are returned unchanged.
func CampaignName(title string) string {
	for _, prefix := range titlePrefixes {
		if strings.HasPrefix(title, prefix) {
			return strings.TrimSpace(title[len(prefix):])
		}
	}
	return title
}
