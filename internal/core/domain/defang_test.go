package domain

import (
	"reflect"
	"testing"
)

func TestRefang(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bracket dot", "193[.]233[.]254[.]21", "193.233.254.21"},
		{"bracket word", "evil[dot]example[dot]com", "evil.example.com"},
		{"paren word", "10(dot)0(dot)0(dot)1", "10.0.0.1"},
		{"paren dot", "10(.)0(.)0(.)1", "10.0.0.1"},
		{"mixed case", "1[DOT]2(Dot)3[.]4", "1.2.3.4"},
		{"mixed forms", "a[.]b(dot)c[dot]d(.)e", "a.b.c.d.e"},
		{"untouched", "hxxp://example.com/path", "hxxp://example.com/path"},
		{"empty", "", ""},
		{"nested", "1[[.]]2", "1.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Refang(tt.input)
			if got != tt.expected {
				t.Errorf("Refang(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRefang_Idempotent(t *testing.T) {
	inputs := []string{
		"193[.]233[.]254[.]21",
		"1[[.]]2",
		"x([dot])y",
		"[(.)]",
		"plain text 1.2.3.4",
	}

	for _, input := range inputs {
		once := Refang(input)
		twice := Refang(once)
		if once != twice {
			t.Errorf("Refang not idempotent for %q: %q then %q", input, once, twice)
		}
	}
}

func TestExtractIPv4Addresses(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"single", "C2 server at 193.233.254.21 observed", []string{"193.233.254.21"}},
		{"defanged", "connects to 45[.]61[.]136[.]47", []string{"45.61.136.47"}},
		{"boundaries", "0.0.0.0 and 255.255.255.255", []string{"0.0.0.0", "255.255.255.255"}},
		{"out of range", "999.999.999.999", nil},
		{"octet 256", "10.0.0.256", nil},
		{"five groups", "version 1.2.3.4.5 released", nil},
		{"leading digits", "11.2.3.4 vs x1.2.3.4", []string{"11.2.3.4"}},
		{"four digit octet", "1000.1.1.1", nil},
		{"dedup first seen order", "5.6.7.8 1.2.3.4 5.6.7.8 1.2.3.4", []string{"5.6.7.8", "1.2.3.4"}},
		{"trailing punctuation", "see 8.8.8.8, 8.8.4.4.", []string{"8.8.8.8", "8.8.4.4"}},
		{"no addresses", "nothing to see", nil},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractIPv4Addresses(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ExtractIPv4Addresses(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestIsDottedQuad(t *testing.T) {
	valid := []string{"1.2.3.4", "0.0.0.0", "255.255.255.255"}
	invalid := []string{"", "1.2.3", "1.2.3.4.5", "256.1.1.1", "a.b.c.d", "1..2.3"}

	for _, v := range valid {
		if !isDottedQuad(v) {
			t.Errorf("Expected %q to be valid", v)
		}
	}
	for _, v := range invalid {
		if isDottedQuad(v) {
			t.Errorf("Expected %q to be invalid", v)
		}
	}
}
