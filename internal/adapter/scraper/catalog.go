package scraper

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/hive-corporation/ransomwatch/internal/core/domain"
)

const (
	DefaultBaseURL   = "https://www.cisa.gov"
	DefaultSearchURL = "https://www.cisa.gov/search"

	advisoryPath = "/news-events/cybersecurity-advisories/"
)

var advisoryIDPattern = regexp.MustCompile(`^[a-z]{2}\d{2}-\d{3}[a-z]$`)

// CatalogEntry is a seed advisory known without crawling.
type CatalogEntry struct {
	AdvisoryID string
	Title      string
}

// The listing pages are rendered client-side and often unavailable to a plain
// fetch, so the known advisories are kept here. Newest first.
var seedCatalog = []CatalogEntry{
	{"aa25-203a", "#StopRansomware: Interlock"},
	{"aa25-071a", "#StopRansomware: Medusa"},
	{"aa25-050a", "#StopRansomware: Ghost/Cring"},
	{"aa24-242a", "#StopRansomware: RansomHub Ransomware"},
	{"aa24-241a", "#StopRansomware: Br0k3r (NoEscape, Ransomhouse, BlackCat, Pay2Key)"},
	{"aa24-131a", "#StopRansomware: Black Basta"},
	{"aa24-109a", "#StopRansomware: Akira Ransomware"},
	{"aa24-060a", "#StopRansomware: Phobos Ransomware"},
	{"aa23-353a", "#StopRansomware: ALPHV Blackcat"},
	{"aa23-352a", "#StopRansomware: Play Ransomware"},
	{"aa23-325a", "#StopRansomware: LockBit 3.0 Ransomware"},
	{"aa23-320a", "#StopRansomware: Scattered Spider"},
	{"aa23-319a", "#StopRansomware: Rhysida Ransomware"},
	{"aa23-284a", "#StopRansomware: AvosLocker Ransomware"},
	{"aa23-263a", "#StopRansomware: Snatch Ransomware"},
	{"aa23-165a", "#StopRansomware: LockBit Ransomware"},
	{"aa23-158a", "#StopRansomware: CL0P Ransomware"},
	{"aa23-136a", "#StopRansomware: BianLian Ransomware"},
	{"aa23-075a", "#StopRansomware: LockBit 3.0"},
	{"aa23-061a", "#StopRansomware: Blacksuit (Royal) Ransomware"},
	{"aa23-040a", "#StopRansomware: Ransomware Attacks on Critical Infrastructure Fund DPRK"},
	{"aa22-335a", "#StopRansomware: Cuba Ransomware"},
	{"aa22-321a", "#StopRansomware: Hive Ransomware"},
	{"aa22-294a", "#StopRansomware: Daixin Team"},
	{"aa22-249a", "#StopRansomware: Vice Society"},
	{"aa22-223a", "#StopRansomware: Zeppelin Ransomware"},
	{"aa22-181a", "#StopRansomware: MedusaLocker"},
	{"aa22-152a", "#StopRansomware: Karakurt Data Extortion Group"},
	{"aa21-291a", "#StopRansomware: BlackMatter Ransomware"},
	{"aa21-265a", "#StopRansomware: Conti Ransomware"},
	{"aa21-131a", "#StopRansomware: DarkSide Ransomware"},
}

// DefaultCatalog returns a copy of the built-in seed list.
func DefaultCatalog() []CatalogEntry {
	out := make([]CatalogEntry, len(seedCatalog))
	copy(out, seedCatalog)
	return out
}

// DetailURL builds the canonical advisory page URL.
func DetailURL(baseURL, advisoryID string) string {
	return strings.TrimSuffix(baseURL, "/") + advisoryPath + advisoryID
}

// CatalogAdvisories converts entries to advisories, preserving order.
func CatalogAdvisories(baseURL string, entries []CatalogEntry) []domain.Advisory {
	advisories := make([]domain.Advisory, 0, len(entries))
	for _, e := range entries {
		advisories = append(advisories, domain.Advisory{
			AdvisoryID: e.AdvisoryID,
			Title:      e.Title,
			DetailURL:  DetailURL(baseURL, e.AdvisoryID),
		})
	}
	return advisories
}

// advisoryIDFromLink returns the advisory id when link points at an advisory
// detail page, resolving relative links against base.
func advisoryIDFromLink(base *url.URL, link string) (string, bool) {
	ref, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}

	path := strings.TrimSuffix(ref.Path, "/")
	if !strings.HasPrefix(path, advisoryPath) {
		return "", false
	}
	id := strings.TrimPrefix(path, advisoryPath)
	if !advisoryIDPattern.MatchString(id) {
		return "", false
	}
	return id, true
}

// IsAdvisoryID reports whether id has the shape of an advisory identifier (e.g. aa23-061a).
func IsAdvisoryID(id string) bool {
	return advisoryIDPattern.MatchString(id)
}
