// Package parser extracts IOC records from advisory artifacts.
package parser

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/hive-corporation/ransomwatch/internal/core/domain"
)

// clausePattern matches [<object-type>:value = '<v>'] and
// [<object-type>:hashes.<algo> = '<v>'] clauses. Anything else in a pattern is ignored.
var clausePattern = regexp.MustCompile(`\[(\S+?)(?::value|:hashes\.\S+?)\s*=\s*'([^']+)'\]`)

// StructuredParser reads indicator patterns out of STIX-style JSON.
type StructuredParser struct{}

func NewStructuredParser() *StructuredParser {
	return &StructuredParser{}
}

// Source reports the source tag of the records this parser produces.
func (p *StructuredParser) Source() domain.Source {
	return domain.SourceStructured
}

// Parse returns one record per distinct (type, value) found in the patterns of
// the document's indicator objects, in document order.
func (p *StructuredParser) Parse(data []byte, advisoryID string) ([]domain.IOCRecord, error) {
	objects, err := topLevelObjects(data)
	if err != nil {
		return nil, err
	}

	var records []domain.IOCRecord
	for _, raw := range objects {
		var obj struct {
			Type    string `json:"type"`
			Pattern string `json:"pattern"`
		}
		// Objects of an unexpected shape cannot be indicators
		if err := json.Unmarshal(raw, &obj); err != nil {
			continue
		}
		if obj.Type != "indicator" || obj.Pattern == "" {
			continue
		}

		for _, m := range clausePattern.FindAllStringSubmatch(obj.Pattern, -1) {
			iocType := domain.IOCTypeForObject(m[1])
			records = append(records, domain.IOCRecord{
				Type:       iocType,
				Value:      domain.NormalizeIOCValue(m[2], iocType),
				AdvisoryID: advisoryID,
				Source:     domain.SourceStructured,
			})
		}
	}

	return domain.DedupeIOCs(records), nil
}

func topLevelObjects(data []byte) ([]json.RawMessage, error) {
	var top any
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	var objects []json.RawMessage
	switch top.(type) {
	case []any:
		if err := json.Unmarshal(data, &objects); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
	case map[string]any:
		var bundle struct {
			Objects *[]json.RawMessage `json:"objects"`
		}
		if err := json.Unmarshal(data, &bundle); err != nil || bundle.Objects == nil {
			return nil, fmt.Errorf("%w: no objects list", ErrMalformedDocument)
		}
		objects = *bundle.Objects
	default:
		return nil, fmt.Errorf("%w: top level is not an object list", ErrMalformedDocument)
	}
	return objects, nil
}
