package domain

import (
	"database/sql/driver"
	"fmt"
)

// IOCKind enumerates the indicator kinds the index understands.
type IOCKind int

const (
	KindUnrecognized IOCKind = iota
	KindIPv4
	KindIPv6
	KindDomain
	KindURL
	KindFileHash
)

// IOCType is a closed set of indicator kinds plus an explicit unrecognized variant
// that keeps the raw tag, so object types we do not know yet still round-trip.
type IOCType struct {
	kind IOCKind
	tag  string
}

var (
	IPv4Address = IOCType{kind: KindIPv4, tag: "ipv4-addr"}
	IPv6Address = IOCType{kind: KindIPv6, tag: "ipv6-addr"}
	DomainName  = IOCType{kind: KindDomain, tag: "domain-name"}
	URL         = IOCType{kind: KindURL, tag: "url"}
	FileHash    = IOCType{kind: KindFileHash, tag: "file:hashes"}
)

var knownTypes = map[string]IOCType{
	IPv4Address.tag: IPv4Address,
	IPv6Address.tag: IPv6Address,
	DomainName.tag:  DomainName,
	URL.tag:         URL,
	FileHash.tag:    FileHash,
}

// objectTypes maps STIX cyber-observable object types to index types
var objectTypes = map[string]IOCType{
	"ipv4-addr":   IPv4Address,
	"ipv6-addr":   IPv6Address,
	"domain-name": DomainName,
	"url":         URL,
	"file":        FileHash,
}

// UnrecognizedIOCType wraps a tag that is not one of the known kinds.
func UnrecognizedIOCType(tag string) IOCType {
	return IOCType{kind: KindUnrecognized, tag: tag}
}

// ParseIOCType returns the type stored under tag. Unknown tags are preserved.
func ParseIOCType(tag string) IOCType {
	if t, ok := knownTypes[tag]; ok {
		return t
	}
	return UnrecognizedIOCType(tag)
}

// IOCTypeForObject maps a STIX object-type token (the part before ":value" or
// ":hashes") to an IOCType. Unknown tokens pass through as unrecognized.
func IOCTypeForObject(objectType string) IOCType {
	if t, ok := objectTypes[objectType]; ok {
		return t
	}
	return UnrecognizedIOCType(objectType)
}

func (t IOCType) Kind() IOCKind { return t.kind }

func (t IOCType) String() string { return t.tag }

func (t IOCType) IsZero() bool { return t.tag == "" }

// Recognized reports whether t is one of the five known kinds.
func (t IOCType) Recognized() bool { return t.kind != KindUnrecognized }

// IsIP reports whether t is an IPv4 or IPv6 address type.
func (t IOCType) IsIP() bool { return t.kind == KindIPv4 || t.kind == KindIPv6 }

// Value implements driver.Valuer so the type can be bound directly as a query argument.
func (t IOCType) Value() (driver.Value, error) {
	return t.tag, nil
}

// Scan implements sql.Scanner.
func (t *IOCType) Scan(src any) error {
	switch v := src.(type) {
	case string:
		*t = ParseIOCType(v)
	case []byte:
		*t = ParseIOCType(string(v))
	case nil:
		*t = IOCType{}
	default:
		return fmt.Errorf("cannot scan %T into IOCType", src)
	}
	return nil
}

func (t IOCType) MarshalText() ([]byte, error) {
	return []byte(t.tag), nil
}

func (t *IOCType) UnmarshalText(text []byte) error {
	*t = ParseIOCType(string(text))
	return nil
}

// Source identifies which artifact of an advisory an IOC was extracted from.
type Source string

const (
	SourceStructured Source = "structured" // STIX JSON
	SourceDocument   Source = "document"   // PDF text
)

// ParseSource validates a source name. The empty string is rejected.
func ParseSource(value string) (Source, error) {
	switch Source(value) {
	case SourceStructured, SourceDocument:
		return Source(value), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSource, value)
	}
}

// IOCRecord is a single indicator extracted from one advisory artifact.
type IOCRecord struct {
	Type       IOCType `json:"type"`
	Value      string  `json:"value"`
	AdvisoryID string  `json:"advisory_id"`
	Source     Source  `json:"source"`
}

// key identifies a record within one (advisory, source) batch.
type iocKey struct {
	typ   IOCType
	value string
}

// DedupeIOCs drops records whose (type, value) pair was already seen, keeping
// first-seen order.
func DedupeIOCs(records []IOCRecord) []IOCRecord {
	seen := make(map[iocKey]struct{}, len(records))
	out := make([]IOCRecord, 0, len(records))
	for _, r := range records {
		k := iocKey{typ: r.Type, value: r.Value}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
