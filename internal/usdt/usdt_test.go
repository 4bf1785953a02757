package usdt

import (
	"math/big"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		ok       bool
	}{
		{"", 0, true},
		{"0", 0, true},
		{"1", 1000000, true},
		{"1.5", 1500000, true},
		{"1.50", 1500000, true},
		{"0.000001", 1, true},
		{"60", 60000000, true},
		{"59.100000", 59100000, true},
		{"-1", 0, false},
		{"1.2.3", 0, false},
		{"abc", 0, false},
		{"1.1234567", 0, false}, // too much precision
	}

	for _, tt := range tests {
		got, ok := Parse(tt.input)
		if ok != tt.ok {
			t.Errorf("Parse(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			continue
		}
		if ok && got.Int64() != tt.expected {
			t.Errorf("Parse(%q) = %d, want %d", tt.input, got.Int64(), tt.expected)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0.000000"},
		{1, "0.000001"},
		{1500000, "1.500000"},
		{59100000, "59.100000"},
		{-900000, "-0.900000"},
	}
	for _, tt := range tests {
		if got := Format(big.NewInt(tt.input)); got != tt.expected {
			t.Errorf("Format(%d) = %q, want %q", tt.input, got, tt.expected)
		}
	}
	if got := Format(nil); got != "0.000000" {
		t.Errorf("Format(nil) = %q", got)
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, s := range []string{"0.000000", "1.000000", "123.456789", "0.000001"} {
		n, ok := Parse(s)
		if !ok {
			t.Fatalf("Parse(%q) failed", s)
		}
		if got := Format(n); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}

func TestFromFloat(t *testing.T) {
	if got := FromFloat(60); got != "60.000000" {
		t.Errorf("FromFloat(60) = %q", got)
	}
	if got := FromFloat(59.1); got != "59.100000" {
		t.Errorf("FromFloat(59.1) = %q", got)
	}
}

func TestCmp(t *testing.T) {
	if Cmp("1.5", "1.500000") != 0 {
		t.Error("equal amounts should compare equal")
	}
	if Cmp("2", "1") <= 0 {
		t.Error("2 should exceed 1")
	}
	if Cmp("0.5", "1") >= 0 {
		t.Error("0.5 should be below 1")
	}
}

func TestIsPositive(t *testing.T) {
	if !IsPositive("0.000001") {
		t.Error("smallest unit should be positive")
	}
	if IsPositive("0") || IsPositive("") || IsPositive("-1") || IsPositive("x") {
		t.Error("non-positive input accepted")
	}
}

func TestApplySpread(t *testing.T) {
	// 150 bps on 60 USDT: 0.9 fee, 59.1 net
	net, fee, ok := ApplySpread("60", 150)
	if !ok {
		t.Fatal("ApplySpread failed")
	}
	if net != "59.100000" {
		t.Errorf("net = %q, want 59.100000", net)
	}
	if fee != "0.900000" {
		t.Errorf("fee = %q, want 0.900000", fee)
	}

	if _, _, ok := ApplySpread("0", 150); ok {
		t.Error("zero amount accepted")
	}
	if _, _, ok := ApplySpread("60", -1); ok {
		t.Error("negative bps accepted")
	}
	if _, _, ok := ApplySpread("60", 10001); ok {
		t.Error("bps above denominator accepted")
	}
}

func TestApplySpreadConserves(t *testing.T) {
	amounts := []string{"0.000001", "1", "33.333333", "60", "999999.999999"}
	rates := []int{0, 1, 150, 9999, 10000}

	for _, a := range amounts {
		total, _ := Parse(a)
		for _, bps := range rates {
			net, fee, ok := ApplySpread(a, bps)
			if !ok {
				t.Fatalf("ApplySpread(%q, %d) failed", a, bps)
			}
			netN, _ := Parse(net)
			feeN, _ := Parse(fee)
			sum := new(big.Int).Add(netN, feeN)
			if sum.Cmp(total) != 0 {
				t.Errorf("ApplySpread(%q, %d): %s + %s != %s", a, bps, net, fee, a)
			}
		}
	}
}
