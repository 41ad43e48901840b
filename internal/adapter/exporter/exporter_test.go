package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hive-corporation/ransomwatch/internal/adapter/parser"
	"github.com/hive-corporation/ransomwatch/internal/core/domain"
	"github.com/hive-corporation/ransomwatch/internal/core/ports"
)

// memoryIndex serves the two read operations exporters use.
type memoryIndex struct {
	ports.AdvisoryIndex
	advisories []domain.Advisory
	records    []domain.IOCRecord
	err        error
}

func (m *memoryIndex) ListAdvisories(context.Context) ([]domain.Advisory, error) {
	return m.advisories, m.err
}

func (m *memoryIndex) ListIOCs(context.Context) ([]domain.IOCRecord, error) {
	return m.records, m.err
}

func fixture() *memoryIndex {
	royalPublished := time.Date(2023, 3, 2, 0, 0, 0, 0, time.UTC)
	akiraPublished := time.Date(2024, 4, 18, 0, 0, 0, 0, time.UTC)
	return &memoryIndex{
		advisories: []domain.Advisory{
			{AdvisoryID: "aa23-061a", Title: "#StopRansomware: Royal Ransomware", DetailURL: "https://www.cisa.gov/news-events/cybersecurity-advisories/aa23-061a", Published: &royalPublished},
			{AdvisoryID: "aa24-109a", Title: "#StopRansomware: Akira Ransomware", DetailURL: "https://www.cisa.gov/news-events/cybersecurity-advisories/aa24-109a", Published: &akiraPublished},
		},
		records: []domain.IOCRecord{
			{Type: domain.IPv4Address, Value: "193.233.254.21", AdvisoryID: "aa23-061a", Source: domain.SourceStructured},
			{Type: domain.DomainName, Value: "evil.example", AdvisoryID: "aa23-061a", Source: domain.SourceStructured},
			{Type: domain.FileHash, Value: strings.Repeat("a", 64), AdvisoryID: "aa23-061a", Source: domain.SourceStructured},
			{Type: domain.IPv4Address, Value: "193.233.254.21", AdvisoryID: "aa24-109a", Source: domain.SourceStructured},
			{Type: domain.IPv4Address, Value: "193.233.254.21", AdvisoryID: "aa24-109a", Source: domain.SourceDocument},
			{Type: domain.UnrecognizedIOCType("email-addr"), Value: "ops@evil.example", AdvisoryID: "aa24-109a", Source: domain.SourceStructured},
		},
	}
}

func TestBuildIndicators(t *testing.T) {
	idx := fixture()
	indicators := buildIndicators(idx.advisories, idx.records)

	if len(indicators) != 4 {
		t.Fatalf("Expected 4 indicators, got %d", len(indicators))
	}

	ip := indicators[0]
	if ip.Value != "193.233.254.21" {
		t.Errorf("Expected first indicator to be the IP, got %s", ip.Value)
	}
	if ip.Sightings != 3 {
		t.Errorf("Expected 3 sightings, got %d", ip.Sightings)
	}
	if len(ip.Advisories) != 2 {
		t.Errorf("Expected 2 advisories, got %d", len(ip.Advisories))
	}
	if len(ip.Sources) != 2 {
		t.Errorf("Expected 2 sources, got %d", len(ip.Sources))
	}
	if ip.Confidence() != 90 {
		t.Errorf("Expected confidence 90, got %d", ip.Confidence())
	}
	if ip.FirstSeen == nil || ip.FirstSeen.Year() != 2023 {
		t.Errorf("Expected first seen in 2023, got %v", ip.FirstSeen)
	}

	campaigns := ip.Campaigns()
	if len(campaigns) != 2 || campaigns[0] != "Royal Ransomware" || campaigns[1] != "Akira Ransomware" {
		t.Errorf("Unexpected campaigns: %v", campaigns)
	}

	if indicators[1].Confidence() != 80 {
		t.Errorf("Expected single sighting confidence 80, got %d", indicators[1].Confidence())
	}
}

func TestBuildPattern(t *testing.T) {
	tests := []struct {
		name     string
		typ      domain.IOCType
		value    string
		expected string
	}{
		{"ipv4", domain.IPv4Address, "1.2.3.4", "[ipv4-addr:value = '1.2.3.4']"},
		{"ipv6", domain.IPv6Address, "2001:db8::1", "[ipv6-addr:value = '2001:db8::1']"},
		{"domain", domain.DomainName, "evil.example", "[domain-name:value = 'evil.example']"},
		{"url", domain.URL, "http://evil.example/x", "[url:value = 'http://evil.example/x']"},
		{"md5", domain.FileHash, strings.Repeat("b", 32), "[file:hashes.'MD5' = '" + strings.Repeat("b", 32) + "']"},
		{"sha1", domain.FileHash, strings.Repeat("c", 40), "[file:hashes.'SHA-1' = '" + strings.Repeat("c", 40) + "']"},
		{"unrecognized", domain.UnrecognizedIOCType("email-addr"), "a@b.example", "[email-addr:value = 'a@b.example']"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildPattern(tt.typ, tt.value); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestSTIXExport_RoundTripsThroughStructuredParser(t *testing.T) {
	idx := fixture()
	out, err := NewSTIXExporter(idx).Export(context.Background())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var bundle STIXBundle
	if err := json.Unmarshal([]byte(out), &bundle); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if bundle.Type != "bundle" || !strings.HasPrefix(bundle.ID, "bundle--") {
		t.Errorf("Unexpected bundle header: %s %s", bundle.Type, bundle.ID)
	}
	if len(bundle.Objects) != 4 {
		t.Fatalf("Expected 4 indicators, got %d", len(bundle.Objects))
	}
	first := bundle.Objects[0]
	if len(first.ExternalReferences) != 2 || first.ExternalReferences[0].ExternalID != "aa23-061a" {
		t.Errorf("Unexpected external references: %+v", first.ExternalReferences)
	}
	if first.ValidFrom != "2023-03-02T00:00:00Z" {
		t.Errorf("Expected valid_from from earliest advisory, got %s", first.ValidFrom)
	}

	records, err := parser.NewStructuredParser().Parse([]byte(out), "aa99-000a")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := buildIndicators(idx.advisories, idx.records)
	if len(records) != len(want) {
		t.Fatalf("Expected %d records, got %d", len(want), len(records))
	}
	for i, r := range records {
		if r.Type != want[i].Type || r.Value != want[i].Value {
			t.Errorf("Record %d: expected %s %s, got %s %s", i, want[i].Type, want[i].Value, r.Type, r.Value)
		}
	}
}

func TestCEFExport(t *testing.T) {
	out, err := NewCEFExporter(fixture()).Export(context.Background())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected 4 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "CEF:0|CISA|ransomwatch|1.0|ipv4-addr|") {
		t.Errorf("Unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[0], "dst=193.233.254.21") {
		t.Errorf("Expected IP in dst field: %s", lines[0])
	}
	if !strings.Contains(lines[0], "|10|") {
		t.Errorf("Expected severity 10 for three sightings: %s", lines[0])
	}
	if !strings.Contains(lines[0], "cs1=aa23-061a,aa24-109a") {
		t.Errorf("Expected both advisories: %s", lines[0])
	}
	if !strings.Contains(lines[1], "cs4=evil.example") {
		t.Errorf("Expected domain in cs4 field: %s", lines[1])
	}
}

func TestEscapeField(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"plain", "plain"},
		{"a=b", `a\=b`},
		{`back\slash`, `back\\slash`},
		{"line\nbreak", `line\nbreak`},
	}

	for _, tt := range tests {
		if got := escapeField(tt.input); got != tt.expected {
			t.Errorf("escapeField(%q): expected %q, got %q", tt.input, tt.expected, got)
		}
	}

	if got := escapeHeader("a|b"); got != `a\|b` {
		t.Errorf("Expected escaped pipe, got %s", got)
	}
}

func TestCalculateSeverity(t *testing.T) {
	tests := []struct {
		confidence int
		expected   int
	}{
		{90, 10},
		{85, 8},
		{80, 8},
		{0, 2},
	}

	for _, tt := range tests {
		if got := calculateSeverity(tt.confidence); got != tt.expected {
			t.Errorf("calculateSeverity(%d): expected %d, got %d", tt.confidence, tt.expected, got)
		}
	}
}

func TestJSONExport_Snapshot(t *testing.T) {
	out, err := NewJSONExporter(fixture()).Export(context.Background())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var snap struct {
		Advisories map[string]struct {
			Title string `json:"title"`
			URL   string `json:"url"`
		} `json:"advisories"`
		IOCs  []map[string]string `json:"iocs"`
		Stats struct {
			AdvisoryCount int `json:"advisory_count"`
			IOCCount      int `json:"ioc_count"`
		} `json:"stats"`
	}
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}

	if snap.Stats.AdvisoryCount != 2 || snap.Stats.IOCCount != 6 {
		t.Errorf("Unexpected stats: %+v", snap.Stats)
	}
	if snap.Advisories["aa23-061a"].Title != "#StopRansomware: Royal Ransomware" {
		t.Errorf("Unexpected advisory: %+v", snap.Advisories["aa23-061a"])
	}
	if snap.IOCs[0]["type"] != "ipv4-addr" || snap.IOCs[0]["source"] != "structured" {
		t.Errorf("Unexpected IOC: %v", snap.IOCs[0])
	}
}

func TestJSONExport_EmptyIndex(t *testing.T) {
	out, err := NewJSONExporter(&memoryIndex{}).Export(context.Background())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !strings.Contains(out, `"iocs":[]`) {
		t.Errorf("Expected empty IOC list, got %s", out)
	}
}

func TestNew(t *testing.T) {
	for _, format := range Formats {
		if _, _, err := New(format, fixture()); err != nil {
			t.Errorf("Expected exporter for %s, got %v", format, err)
		}
	}

	_, _, err := New("csv", fixture())
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Expected ErrUnknownFormat, got %v", err)
	}
}

func TestExport_IndexError(t *testing.T) {
	idx := &memoryIndex{err: errors.New("disk gone")}
	if _, err := NewSTIXExporter(idx).Export(context.Background()); err == nil {
		t.Error("Expected error from failing index")
	}
}
