package exporter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hive-corporation/ransomwatch/internal/core/domain"
	"github.com/hive-corporation/ransomwatch/internal/core/ports"
)

// CEFExporter exports IOCs in Common Event Format for SIEM ingestion
type CEFExporter struct {
	index ports.AdvisoryIndex
}

func NewCEFExporter(index ports.AdvisoryIndex) *CEFExporter {
	return &CEFExporter{index: index}
}

// Export generates one CEF line per distinct IOC
// Format: CEF:Version|Device Vendor|Device Product|Device Version|Signature ID|Name|Severity|Extension
func (e *CEFExporter) Export(ctx context.Context) (string, error) {
	indicators, err := loadIndicators(ctx, e.index)
	if err != nil {
		return "", err
	}

	var output strings.Builder
	for _, ind := range indicators {
		output.WriteString(formatCEF(newCEFEntry(ind)))
		output.WriteString("\n")
	}

	return output.String(), nil
}

func newCEFEntry(ind Indicator) CEFEntry {
	entry := CEFEntry{
		Value:      ind.Value,
		Type:       ind.Type,
		Campaigns:  ind.Campaigns(),
		Confidence: ind.Confidence(),
	}
	for _, adv := range ind.Advisories {
		entry.Advisories = append(entry.Advisories, adv.AdvisoryID)
	}
	for _, s := range ind.Sources {
		entry.Sources = append(entry.Sources, string(s))
	}
	if ind.FirstSeen != nil {
		entry.FirstSeen = *ind.FirstSeen
	}
	return entry
}

func formatCEF(ioc CEFEntry) string {
	vendor := "CISA"
	product := "ransomwatch"
	version := "1.0"
	signatureID := escapeHeader(ioc.Type.String())
	name := fmt.Sprintf("%s IOC Listed In StopRansomware Advisory", strings.ToUpper(escapeHeader(ioc.Type.String())))
	severity := calculateSeverity(ioc.Confidence)

	field := "cs4"
	if ioc.Type.IsIP() {
		field = "dst"
	}

	extensions := []string{
		fmt.Sprintf("%s=%s", field, escapeField(ioc.Value)),
		"cn1Label=ConfidenceScore",
		fmt.Sprintf("cn1=%d", ioc.Confidence),
		"cs1Label=Advisories",
		fmt.Sprintf("cs1=%s", escapeField(strings.Join(ioc.Advisories, ","))),
		"cs2Label=Sources",
		fmt.Sprintf("cs2=%s", escapeField(strings.Join(ioc.Sources, ","))),
		"cs3Label=Campaigns",
		fmt.Sprintf("cs3=%s", escapeField(strings.Join(ioc.Campaigns, ","))),
	}
	if field == "cs4" {
		extensions = append(extensions, "cs4Label=Indicator")
	}
	if !ioc.FirstSeen.IsZero() {
		extensions = append(extensions, fmt.Sprintf("rt=%d", ioc.FirstSeen.UnixMilli()))
	}

	return fmt.Sprintf("CEF:0|%s|%s|%s|%s|%s|%d|%s",
		vendor, product, version, signatureID, name, severity, strings.Join(extensions, " "))
}

func calculateSeverity(confidence int) int {
	// Map confidence (0-100) to CEF severity (0-10)
	if confidence >= 90 {
		return 10 // Critical
	} else if confidence >= 80 {
		return 8 // High
	} else if confidence >= 70 {
		return 6 // Medium
	} else if confidence >= 60 {
		return 4 // Low
	}
	return 2 // Info
}

// escapeHeader escapes the characters CEF reserves in header fields
func escapeHeader(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	return strings.ReplaceAll(s, "|", "\\|")
}

// escapeField escapes the characters CEF reserves in extension values
func escapeField(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "=", "\\=")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	return s
}

// CEFEntry represents an IOC for CEF export
type CEFEntry struct {
	Value      string
	Type       domain.IOCType
	Advisories []string
	Sources    []string
	Campaigns  []string
	Confidence int
	FirstSeen  time.Time
}
