package quant

import (
	"testing"
)

func TestToPriceMicros(t *testing.T) {
	tests := []struct {
		input    float64
		expected PriceMicros
	}{
		{1.23, 1230000},
		{0.000001, 1},
		{0.0, 0},
		{-1.23, -1230000},
	}

	for _, tt := range tests {
		got := ToPriceMicros(tt.input)
		if got != tt.expected {
			t.Errorf("ToPriceMicros(%f) = %d; want %d", tt.input, got, tt.expected)
		}
	}
}

func TestPriceMicros_String(t *testing.T) {
	p := PriceMicros(1230000)
	expected := "1.230000"
	if p.String() != expected {
		t.Errorf("PriceMicros(1230000).String() = %s; want %s", p.String(), expected)
	}
}

func TestToPriceMicrosStr(t *testing.T) {
	tests := []struct {
		input    string
		expected PriceMicros
	}{
		{"1.23", 1230000},
		{"0.000001", 1},
		{"10", 10000000},
		{"-1.23", -1230000},
		{"1.2345678", 1234567}, // Truncate beyond precision
		{"", 0},
		{"null", 0},
	}

	for _, tt := range tests {
		got := ToPriceMicrosStr(tt.input)
		if got != tt.expected {
			t.Errorf("ToPriceMicrosStr(%q) = %d; want %d", tt.input, got, tt.expected)
		}
	}
}

func TestToQtySatsStr(t *testing.T) {
	tests := []struct {
		input    string
		expected QtySats
	}{
		{"1", 100000000},
		{"0.00000001", 1},
		{"100", 10000000000},
		{"40.5", 4050000000},
	}

	for _, tt := range tests {
		got := ToQtySatsStr(tt.input)
		if got != tt.expected {
			t.Errorf("ToQtySatsStr(%q) = %d; want %d", tt.input, got, tt.expected)
		}
	}
}

func TestNextSeq(t *testing.T) {
	var seq uint64
	if got := NextSeq(&seq); got != 1 {
		t.Errorf("NextSeq first call = %d; want 1", got)
	}
	if got := NextSeq(&seq); got != 2 {
		t.Errorf("NextSeq second call = %d; want 2", got)
	}
}

func TestParseTimeStamp(t *testing.T) {
	ts, err := ParseTimeStamp("1704067200000")
	if err != nil {
		t.Fatalf("ParseTimeStamp returned error: %v", err)
	}
	if ts != 1704067200000000 {
		t.Errorf("ParseTimeStamp = %d; want 1704067200000000", ts)
	}

	if _, err := ParseTimeStamp("not-a-number"); err == nil {
		t.Error("ParseTimeStamp should fail on invalid input")
	}
}
