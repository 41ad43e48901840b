package parser

import (
	"errors"
	"testing"

	"github.com/hive-corporation/ransomwatch/internal/core/domain"
)

func TestStructuredParser_TwoClausePattern(t *testing.T) {
	data := []byte(`{"type":"bundle","objects":[
		{"type":"indicator","pattern":"[ipv4-addr:value = '1.2.3.4'] AND [domain-name:value = 'evil.example']"}
	]}`)

	records, err := NewStructuredParser().Parse(data, "aa23-061a")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	expected := []domain.IOCRecord{
		{Type: domain.IPv4Address, Value: "1.2.3.4", AdvisoryID: "aa23-061a", Source: domain.SourceStructured},
		{Type: domain.DomainName, Value: "evil.example", AdvisoryID: "aa23-061a", Source: domain.SourceStructured},
	}
	if len(records) != len(expected) {
		t.Fatalf("Expected %d records, got %d: %+v", len(expected), len(records), records)
	}
	for i := range expected {
		if records[i] != expected[i] {
			t.Errorf("Record %d: expected %+v, got %+v", i, expected[i], records[i])
		}
	}
}

func TestStructuredParser_Parse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string // type|value
	}{
		{
			name:     "bare array",
			input:    `[{"type":"indicator","pattern":"[url:value = 'http://evil.example/a b']"}]`,
			expected: []string{"url|http://evil.example/a b"},
		},
		{
			name:     "quoted hash algorithm",
			input:    `{"objects":[{"type":"indicator","pattern":"[file:hashes.'SHA-256' = 'ABCDEF']"}]}`,
			expected: []string{"file:hashes|abcdef"},
		},
		{
			name:     "unquoted hash algorithm",
			input:    `{"objects":[{"type":"indicator","pattern":"[file:hashes.MD5 = 'd41d8cd98f00b204e9800998ecf8427e']"}]}`,
			expected: []string{"file:hashes|d41d8cd98f00b204e9800998ecf8427e"},
		},
		{
			name:     "ipv6",
			input:    `{"objects":[{"type":"indicator","pattern":"[ipv6-addr:value = '2001:db8::1']"}]}`,
			expected: []string{"ipv6-addr|2001:db8::1"},
		},
		{
			name:     "unknown object type passes through",
			input:    `{"objects":[{"type":"indicator","pattern":"[email-addr:value = 'x@evil.example']"}]}`,
			expected: []string{"email-addr|x@evil.example"},
		},
		{
			name: "non indicators skipped",
			input: `{"objects":[
				{"type":"malware","pattern":"[ipv4-addr:value = '9.9.9.9']"},
				{"type":"indicator"},
				"not an object",
				{"type":"indicator","pattern":"[ipv4-addr:value = '5.6.7.8']"}
			]}`,
			expected: []string{"ipv4-addr|5.6.7.8"},
		},
		{
			name:     "non matching clauses skipped",
			input:    `{"objects":[{"type":"indicator","pattern":"[network-traffic:dst_ref.value = '1.1.1.1'] OR [file:name = 'x.exe']"}]}`,
			expected: nil,
		},
		{
			name: "dedup across document",
			input: `{"objects":[
				{"type":"indicator","pattern":"[ipv4-addr:value = '1.2.3.4']"},
				{"type":"indicator","pattern":"[ipv4-addr:value = '1.2.3.4'] OR [domain-name:value = '1.2.3.4']"}
			]}`,
			expected: []string{"ipv4-addr|1.2.3.4", "domain-name|1.2.3.4"},
		},
		{
			name:     "empty objects",
			input:    `{"objects":[]}`,
			expected: nil,
		},
	}

	parser := NewStructuredParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := parser.Parse([]byte(tt.input), "aa24-131a")
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}

			var got []string
			for _, r := range records {
				if r.Source != domain.SourceStructured || r.AdvisoryID != "aa24-131a" {
					t.Errorf("Unexpected record tags: %+v", r)
				}
				got = append(got, r.Type.String()+"|"+r.Value)
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("Expected %v, got %v", tt.expected, got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("Expected %v, got %v", tt.expected, got)
					break
				}
			}
		})
	}
}

func TestStructuredParser_Malformed(t *testing.T) {
	inputs := map[string]string{
		"not json":          `{"objects": [`,
		"string top level":  `"hello"`,
		"number top level":  `42`,
		"object no objects": `{"type":"bundle"}`,
		"objects not list":  `{"objects":{"type":"indicator"}}`,
		"null objects":      `{"objects":null}`,
		"empty input":       ``,
	}

	parser := NewStructuredParser()
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := parser.Parse([]byte(input), "aa24-131a")
			if !errors.Is(err, ErrMalformedDocument) {
				t.Errorf("Expected ErrMalformedDocument, got %v", err)
			}
		})
	}
}
