package parser

import (
	"strings"

	"github.com/hive-corporation/ransomwatch/internal/core/domain"
)

// PageExtractor returns the text of each page of a document, in page order.
// A page without extractable text is returned as an empty string.
type PageExtractor interface {
	ExtractPages(data []byte) ([]string, error)
}

// DocumentParser pulls IPv4 addresses out of free-form document text.
type DocumentParser struct {
	extractor PageExtractor
}

func NewDocumentParser(extractor PageExtractor) *DocumentParser {
	return &DocumentParser{extractor: extractor}
}

func (p *DocumentParser) Source() domain.Source {
	return domain.SourceDocument
}

// Parse joins the page texts with newlines and extracts IPv4 addresses from the result.
func (p *DocumentParser) Parse(data []byte, advisoryID string) ([]domain.IOCRecord, error) {
	pages, err := p.extractor.ExtractPages(data)
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(pages))
	for _, page := range pages {
		if page != "" {
			texts = append(texts, page)
		}
	}

	var records []domain.IOCRecord
	for _, ip := range domain.ExtractIPv4Addresses(strings.Join(texts, "\n")) {
		records = append(records, domain.IOCRecord{
			Type:       domain.IPv4Address,
			Value:      ip,
			AdvisoryID: advisoryID,
			Source:     domain.SourceDocument,
		})
	}
	return records, nil
}
