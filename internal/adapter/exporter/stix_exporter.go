package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hive-corporation/ransomwatch/internal/core/domain"
	"github.com/hive-corporation/ransomwatch/internal/core/ports"
)

// STIXExporter exports the index as a STIX 2.1 bundle of indicators
type STIXExporter struct {
	index ports.AdvisoryIndex
}

func NewSTIXExporter(index ports.AdvisoryIndex) *STIXExporter {
	return &STIXExporter{index: index}
}

// Export generates a STIX 2.1 bundle with one indicator per distinct IOC
func (e *STIXExporter) Export(ctx context.Context) (string, error) {
	indicators, err := loadIndicators(ctx, e.index)
	if err != nil {
		return "", err
	}

	bundle := STIXBundle{
		Type:    "bundle",
		ID:      fmt.Sprintf("bundle--%s", uuid.New().String()),
		Objects: []STIXObject{},
	}

	now := time.Now().UTC()
	for _, ind := range indicators {
		bundle.Objects = append(bundle.Objects, e.convertToSTIX(ind, now))
	}

	jsonData, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal STIX bundle: %w", err)
	}

	return string(jsonData), nil
}

func (e *STIXExporter) convertToSTIX(ind Indicator, now time.Time) STIXObject {
	validFrom := now
	if ind.FirstSeen != nil {
		validFrom = ind.FirstSeen.UTC()
	}

	externalRefs := make([]ExternalReference, 0, len(ind.Advisories))
	for _, adv := range ind.Advisories {
		externalRefs = append(externalRefs, ExternalReference{
			SourceName: "cisa",
			ExternalID: adv.AdvisoryID,
			URL:        adv.DetailURL,
		})
	}

	return STIXObject{
		Type:               "indicator",
		SpecVersion:        "2.1",
		ID:                 fmt.Sprintf("indicator--%s", uuid.New().String()),
		Created:            now.Format(time.RFC3339),
		Modified:           now.Format(time.RFC3339),
		Name:               fmt.Sprintf("%s Indicator", strings.ToUpper(ind.Type.String())),
		Pattern:            buildPattern(ind.Type, ind.Value),
		PatternType:        "stix",
		ValidFrom:          validFrom.Format(time.RFC3339),
		IndicatorTypes:     []string{"malicious-activity"},
		Confidence:         ind.Confidence(),
		Labels:             ind.Campaigns(),
		ExternalReferences: externalRefs,
	}
}

// buildPattern renders the clause the structured parser reads back into the same record.
func buildPattern(t domain.IOCType, value string) string {
	v := escapePatternValue(value)
	switch t.Kind() {
	case domain.KindIPv4:
		return fmt.Sprintf("[ipv4-addr:value = '%s']", v)
	case domain.KindIPv6:
		return fmt.Sprintf("[ipv6-addr:value = '%s']", v)
	case domain.KindDomain:
		return fmt.Sprintf("[domain-name:value = '%s']", v)
	case domain.KindURL:
		return fmt.Sprintf("[url:value = '%s']", v)
	case domain.KindFileHash:
		return fmt.Sprintf("[file:hashes.'%s' = '%s']", detectHashType(value), v)
	default:
		return fmt.Sprintf("[%s:value = '%s']", t.String(), v)
	}
}

func escapePatternValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}

func detectHashType(hash string) string {
	// Detect hash algorithm by length
	switch len(hash) {
	case 32:
		return "MD5"
	case 40:
		return "SHA-1"
	case 128:
		return "SHA-512"
	default:
		return "SHA-256"
	}
}

// STIX 2.1 data structures

type STIXBundle struct {
	Type    string       `json:"type"`
	ID      string       `json:"id"`
	Objects []STIXObject `json:"objects"`
}

type STIXObject struct {
	Type               string              `json:"type"`
	SpecVersion        string              `json:"spec_version"`
	ID                 string              `json:"id"`
	Created            string              `json:"created"`
	Modified           string              `json:"modified"`
	Name               string              `json:"name"`
	Pattern            string              `json:"pattern"`
	PatternType        string              `json:"pattern_type"`
	ValidFrom          string              `json:"valid_from"`
	IndicatorTypes     []string            `json:"indicator_types"`
	Confidence         int                 `json:"confidence"`
	Labels             []string            `json:"labels,omitempty"`
	ExternalReferences []ExternalReference `json:"external_references,omitempty"`
}

type ExternalReference struct {
	SourceName string `json:"source_name"`
	ExternalID string `json:"external_id,omitempty"`
	URL        string `json:"url,omitempty"`
}
