// Package service sequences discovery, enrichment, parsing and indexing.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hive-corporation/ransomwatch/internal/core/domain"
	"github.com/hive-corporation/ransomwatch/internal/core/ports"
	"github.com/hive-corporation/ransomwatch/internal/metrics"
)

// IngestOptions controls one update run.
type IngestOptions struct {
	// Refresh crawls the live listing in addition to the seed catalog
	Refresh bool
	// IncludeDocuments also downloads and parses PDF advisories
	IncludeDocuments bool
}

// IngestSummary reports what an update run did.
type IngestSummary struct {
	Advisories    int
	NewAdvisories []domain.Advisory
	IOCsStored    int
	BySource      map[string]int
	Failures      []string
}

// Ingester runs the update pipeline one advisory at a time.
type Ingester struct {
	index      ports.AdvisoryIndex
	discoverer ports.AdvisoryDiscoverer
	enricher   ports.AdvisoryEnricher
	artifacts  ports.ArtifactStore
	structured ports.IOCParser
	document   ports.IOCParser
	notifier   ports.Notifier
	logger     *zap.Logger
	progress   ports.ProgressFunc
}

// IngesterOption configures an Ingester.
type IngesterOption func(*Ingester)

func WithNotifier(n ports.Notifier) IngesterOption {
	return func(in *Ingester) { in.notifier = n }
}

func WithLogger(logger *zap.Logger) IngesterOption {
	return func(in *Ingester) {
		if logger != nil {
			in.logger = logger
		}
	}
}

func WithProgress(fn ports.ProgressFunc) IngesterOption {
	return func(in *Ingester) { in.progress = fn }
}

func NewIngester(
	index ports.AdvisoryIndex,
	discoverer ports.AdvisoryDiscoverer,
	enricher ports.AdvisoryEnricher,
	artifacts ports.ArtifactStore,
	structured, document ports.IOCParser,
	opts ...IngesterOption,
) *Ingester {
	in := &Ingester{
		index:      index,
		discoverer: discoverer,
		enricher:   enricher,
		artifacts:  artifacts,
		structured: structured,
		document:   document,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Run discovers advisories and ingests each one. Transport and parse failures
// are recorded in the summary and skipped. Storage errors abort the run; the
// index stays consistent and the run can be repeated.
func (in *Ingester) Run(ctx context.Context, opts IngestOptions) (IngestSummary, error) {
	summary := IngestSummary{BySource: map[string]int{}}

	advisories := in.discoverer.Discover(ctx, opts.Refresh)
	total := len(advisories)

	for i, adv := range advisories {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		in.report(fmt.Sprintf("[%d/%d] %s %s", i+1, total, adv.AdvisoryID, adv.Title))

		existed, err := in.index.AdvisoryExists(ctx, adv.AdvisoryID)
		if err != nil {
			return summary, err
		}

		adv = in.enricher.Enrich(ctx, adv)
		if err := in.index.UpsertAdvisory(ctx, adv); err != nil {
			return summary, err
		}
		summary.Advisories++
		if !existed {
			summary.NewAdvisories = append(summary.NewAdvisories, adv)
		}

		if adv.StructuredArtifactURL != "" {
			if err := in.ingestArtifact(ctx, adv, adv.StructuredArtifactURL, in.structured, &summary); err != nil {
				return summary, err
			}
		}
		if opts.IncludeDocuments && adv.DocumentArtifactURL != "" {
			if err := in.ingestArtifact(ctx, adv, adv.DocumentArtifactURL, in.document, &summary); err != nil {
				return summary, err
			}
		}
	}

	in.logger.Info("Ingestion complete",
		zap.Int("advisories", summary.Advisories),
		zap.Int("new_advisories", len(summary.NewAdvisories)),
		zap.Int("iocs_stored", summary.IOCsStored),
		zap.Int("failures", len(summary.Failures)))
	in.notify(opts, summary)

	return summary, nil
}

// ingestArtifact replaces the advisory's records for one source. Only storage
// errors are returned.
func (in *Ingester) ingestArtifact(ctx context.Context, adv domain.Advisory, url string, parser ports.IOCParser, summary *IngestSummary) error {
	source := parser.Source()
	log := in.logger.With(zap.String("advisory_id", adv.AdvisoryID), zap.String("source", string(source)))

	data, err := in.artifacts.Load(ctx, adv.AdvisoryID, source, url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Warn("Artifact download failed", zap.String("url", url), zap.Error(err))
		summary.Failures = append(summary.Failures, fmt.Sprintf("%s %s: download failed: %v", adv.AdvisoryID, source, err))
		return nil
	}

	records, err := parser.Parse(data, adv.AdvisoryID)
	if err != nil {
		log.Warn("Artifact parse failed", zap.Error(err))
		metrics.RecordArtifactParsed(string(source), "malformed")
		summary.Failures = append(summary.Failures, fmt.Sprintf("%s %s: %v", adv.AdvisoryID, source, err))
		return nil
	}
	metrics.RecordArtifactParsed(string(source), "success")

	if err := in.index.ClearIOCs(ctx, adv.AdvisoryID, source); err != nil {
		return err
	}
	n, err := in.index.InsertIOCs(ctx, records)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownAdvisory) {
			log.Error("IOC batch rejected", zap.Error(err))
		}
		return err
	}

	summary.IOCsStored += n
	summary.BySource[string(source)] += n
	metrics.RecordIOCsIngested(string(source), n)
	log.Info("Stored IOCs", zap.Int("count", n))
	in.report(fmt.Sprintf("  %s: %d IOCs", source, n))
	return nil
}

func (in *Ingester) notify(opts IngestOptions, summary IngestSummary) {
	if in.notifier == nil {
		return
	}

	// Only a live crawl can surface advisories worth announcing
	if opts.Refresh && len(summary.NewAdvisories) > 0 {
		notes := make([]ports.AdvisoryNotification, 0, len(summary.NewAdvisories))
		for _, a := range summary.NewAdvisories {
			notes = append(notes, ports.AdvisoryNotification{AdvisoryID: a.AdvisoryID, Title: a.Title, URL: a.DetailURL})
		}
		if err := in.notifier.NotifyNewAdvisories(notes); err != nil {
			in.logger.Warn("New advisory notification failed", zap.Error(err))
		}
	}

	err := in.notifier.NotifyIngestionSummary(ports.IngestionNotification{
		Advisories: summary.Advisories,
		IOCsStored: summary.IOCsStored,
		BySource:   summary.BySource,
		Failures:   summary.Failures,
	})
	if err != nil {
		in.logger.Warn("Summary notification failed", zap.Error(err))
	}
}

func (in *Ingester) report(msg string) {
	if in.progress != nil {
		in.progress(msg)
	}
}
