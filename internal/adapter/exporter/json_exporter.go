package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hive-corporation/ransomwatch/internal/core/domain"
	"github.com/hive-corporation/ransomwatch/internal/core/ports"
)

// Snapshot is a flat dump of the index suitable for a static web front end.
type Snapshot struct {
	Advisories map[string]SnapshotAdvisory `json:"advisories"`
	IOCs       []domain.IOCRecord          `json:"iocs"`
	Stats      SnapshotStats               `json:"stats"`
}

type SnapshotAdvisory struct {
	Title     string     `json:"title"`
	URL       string     `json:"url"`
	Published *time.Time `json:"published"`
}

type SnapshotStats struct {
	AdvisoryCount int `json:"advisory_count"`
	IOCCount      int `json:"ioc_count"`
}

// JSONExporter writes the whole index as one compact JSON document
type JSONExporter struct {
	index ports.AdvisoryIndex
}

func NewJSONExporter(index ports.AdvisoryIndex) *JSONExporter {
	return &JSONExporter{index: index}
}

// Snapshot reads every advisory and IOC record.
func (e *JSONExporter) Snapshot(ctx context.Context) (*Snapshot, error) {
	advisories, err := e.index.ListAdvisories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list advisories: %w", err)
	}
	records, err := e.index.ListIOCs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list IOCs: %w", err)
	}

	snap := &Snapshot{
		Advisories: make(map[string]SnapshotAdvisory, len(advisories)),
		IOCs:       records,
	}
	if snap.IOCs == nil {
		snap.IOCs = []domain.IOCRecord{}
	}
	for _, adv := range advisories {
		snap.Advisories[adv.AdvisoryID] = SnapshotAdvisory{
			Title:     adv.Title,
			URL:       adv.DetailURL,
			Published: adv.Published,
		}
	}
	snap.Stats = SnapshotStats{AdvisoryCount: len(snap.Advisories), IOCCount: len(snap.IOCs)}
	return snap, nil
}

func (e *JSONExporter) Export(ctx context.Context) (string, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return string(data), nil
}
