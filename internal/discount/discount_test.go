package discount

import (
	"strings"
	"testing"
)

func TestTierPercentage_StepFunction(t *testing.T) {
	tests := []struct {
		name         string
		totalCents   int64
		minimumCents int64
		want         int64
	}{
		{"below minimum", 9900, 10000, 0},
		{"meets minimum", 10000, 10000, 5},
		{"ratio 1.5", 15000, 10000, 7},
		{"just under 1.5", 14900, 10000, 5},
		{"ratio 2", 20000, 10000, 10},
		{"ratio 3", 30000, 10000, 15},
		{"well above 3", 100000, 10000, 15},
		{"zero minimum disables", 10000, 0, 0},
		{"negative minimum disables", 10000, -100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TierPercentage(tt.totalCents, tt.minimumCents); got != tt.want {
				t.Errorf("TierPercentage(%d, %d) = %d, want %d",
					tt.totalCents, tt.minimumCents, got, tt.want)
			}
		})
	}
}

func TestQualifiesFreeShipping_Boundary(t *testing.T) {
	if QualifiesFreeShipping(14900, 10000) {
		t.Error("149.00 against minimum 100.00 must not qualify for free shipping")
	}
	if !QualifiesFreeShipping(15000, 10000) {
		t.Error("150.00 against minimum 100.00 must qualify for free shipping")
	}
	if QualifiesFreeShipping(15000, 0) {
		t.Error("Zero minimum must not qualify")
	}
}

func TestAppliedAmountCents(t *testing.T) {
	if got := AppliedAmountCents(20000, 10); got != 2000 {
		t.Errorf("Expected 2000 cents saved, got %d", got)
	}
	// Fractional cents truncate.
	if got := AppliedAmountCents(999, 5); got != 49 {
		t.Errorf("Expected 49 cents saved, got %d", got)
	}
}

func TestNewCode_Shape(t *testing.T) {
	code, err := NewCode("BUDGET")
	if err != nil {
		t.Fatalf("NewCode failed: %v", err)
	}
	if !strings.HasPrefix(code, "BUDGET") {
		t.Errorf("Expected BUDGET prefix, got %s", code)
	}
	if len(code) != len("BUDGET")+8 {
		t.Errorf("Expected 8-character suffix, got %s", code)
	}
	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			t.Errorf("Unexpected character %q in code %s", r, code)
		}
	}
}

func TestNewCode_Varies(t *testing.T) {
	a, err := NewCode("FREESHIP")
	if err != nil {
		t.Fatalf("NewCode failed: %v", err)
	}
	b, err := NewCode("FREESHIP")
	if err != nil {
		t.Fatalf("NewCode failed: %v", err)
	}
	if a == b {
		t.Errorf("Two generated codes should differ, both were %s", a)
	}
}
