package id

import (
	"math/big"
	"testing"

	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
)

func TestParseDecimal(t *testing.T) {
	base, err := ParseDecimal("1.25", 6)
	if err != nil {
		t.Fatalf("ParseDecimal failed: %v", err)
	}
	if base.String() != "1250000" {
		t.Fatalf("unexpected base units: %s", base)
	}

	base, err = ParseDecimal("0.01", 18)
	if err != nil {
		t.Fatalf("ParseDecimal failed: %v", err)
	}
	if base.String() != "10000000000000000" {
		t.Fatalf("unexpected base units: %s", base)
	}
}

func TestParseDecimalValidation(t *testing.T) {
	for _, input := range []string{"", "abc", "-1", "1.", "1e6"} {
		if _, err := ParseDecimal(input, 6); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
	_, err := ParseDecimal("1.1234567", 6)
	if !clierr.HasCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for excess precision, got %v", err)
	}
}

func TestFormatUnits(t *testing.T) {
	if got := FormatUnits(big.NewInt(1250000), 6); got != "1.25" {
		t.Fatalf("unexpected format: %s", got)
	}
	if got := FormatUnits(big.NewInt(0), 6); got != "0" {
		t.Fatalf("unexpected zero format: %s", got)
	}
	if got := FormatUnits(nil, 18); got != "0" {
		t.Fatalf("unexpected nil format: %s", got)
	}
	if got := FormatUnits(big.NewInt(5), 3); got != "0.005" {
		t.Fatalf("unexpected small format: %s", got)
	}
}

func TestFormatFixed(t *testing.T) {
	if got := FormatFixed(big.NewInt(1005000), 6, 2); got != "1.01" {
		t.Fatalf("expected rounding to 1.01, got %s", got)
	}
	if got := FormatFixed(MustParseDecimal("100", 6), 6, 2); got != "100.00" {
		t.Fatalf("unexpected fixed format: %s", got)
	}
}
