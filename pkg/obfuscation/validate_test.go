package obfuscation

import (
	"strings"
	"testing"

	"awgman/pkg/model"
)

// validParams returns a parameter set satisfying every constraint at the
// given MTU.
func validParams() *model.ObfuscationParams {
	return &model.ObfuscationParams{
		Jc:   6,
		Jmin: 40,
		Jmax: 70,
		S1:   50,
		S2:   60,
		H1:   12345,
		H2:   123456,
		H3:   234567,
		H4:   345678,
		MTU:  1280,
	}
}

func TestValidateAccepts(t *testing.T) {
	if v := Validate(validParams(), 1280); len(v) != 0 {
		t.Fatalf("expected no violations, got %v", v)
	}
}

// TestValidateSingleConstraints crafts one input per constraint that
// violates only that constraint and checks the violation names it.
func TestValidateSingleConstraints(t *testing.T) {
	tests := []struct {
		name   string
		mtu    int
		mutate func(p *model.ObfuscationParams)
		field  string
	}{
		{"jc zero", 1280, func(p *model.ObfuscationParams) { p.Jc = 0 }, "Jc"},
		{"jc too big", 1280, func(p *model.ObfuscationParams) { p.Jc = 129 }, "Jc"},
		{"jmin zero", 1280, func(p *model.ObfuscationParams) { p.Jmin = 0 }, "Jmin"},
		{"jmin at mtu", 1280, func(p *model.ObfuscationParams) { p.Jmin = 1280; p.Jmax = 1280 }, "Jmin"},
		{"jmax not above jmin", 1280, func(p *model.ObfuscationParams) { p.Jmax = p.Jmin }, "Jmax"},
		{"jmax above mtu", 1280, func(p *model.ObfuscationParams) { p.Jmax = 1281 }, "Jmax"},
		{"s1 zero", 1280, func(p *model.ObfuscationParams) { p.S1 = 0 }, "S1"},
		{"s1 over headroom", 1280, func(p *model.ObfuscationParams) { p.S1 = 1280 - 148 + 1 }, "S1"},
		{"s2 zero", 1280, func(p *model.ObfuscationParams) { p.S2 = 0 }, "S2"},
		{"s2 over headroom", 1280, func(p *model.ObfuscationParams) { p.S2 = 1280 - 92 + 1 }, "S2"},
		{"s2 equals s1+56", 1280, func(p *model.ObfuscationParams) { p.S1 = 50; p.S2 = 106 }, "S2"},
		{"h out of range", 1280, func(p *model.ObfuscationParams) { p.H1 = 4 }, "H1"},
		{"h duplicate", 1280, func(p *model.ObfuscationParams) { p.H3 = p.H2 }, "H3"},
		{"lone s3", 1280, func(p *model.ObfuscationParams) { p.S3 = "10" }, "S3/S4"},
		{"lone s4", 1280, func(p *model.ObfuscationParams) { p.S4 = "12" }, "S3/S4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(p)
			violations := Validate(p, tt.mtu)
			if len(violations) == 0 {
				t.Fatalf("expected a violation for %s, got none", tt.field)
			}
			found := false
			for _, v := range violations {
				if v.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected a violation naming %s, got %v", tt.field, violations)
			}
		})
	}
}

func TestValidateMTURange(t *testing.T) {
	for _, mtu := range []int{1279, 1441} {
		violations := Validate(validParams(), mtu)
		found := false
		for _, v := range violations {
			if v.Field == "MTU" {
				found = true
			}
		}
		if !found {
			t.Errorf("mtu %d: expected an MTU violation, got %v", mtu, violations)
		}
	}
}

// TestValidateReportsAll checks violations accumulate instead of
// short-circuiting on the first failure.
func TestValidateReportsAll(t *testing.T) {
	p := validParams()
	p.Jc = 0
	p.S1 = 0
	p.H1 = 1
	violations := Validate(p, 1280)
	if len(violations) < 3 {
		t.Fatalf("expected at least 3 violations, got %v", violations)
	}
}

func TestValidateBothS3S4Set(t *testing.T) {
	p := validParams()
	p.S3 = "10"
	p.S4 = "12"
	if v := Validate(p, 1280); len(v) != 0 {
		t.Fatalf("expected no violations with both S3/S4 set, got %v", v)
	}
}

// TestScenarioS1S2 covers the documented pair: S1=50 with S2=60 is fine at
// MTU 1280, S2=106 collides with S1+56.
func TestScenarioS1S2(t *testing.T) {
	p := validParams()
	p.S1, p.S2 = 50, 60
	if v := Validate(p, 1280); len(v) != 0 {
		t.Fatalf("S1=50 S2=60 should be valid, got %v", v)
	}
	p.S2 = 106
	v := Validate(p, 1280)
	if len(v) != 1 || !strings.Contains(v[0].Message, "S1+56") {
		t.Fatalf("S1=50 S2=106 should violate exactly the S1+56 rule, got %v", v)
	}
}

// TestGenerateIsValid runs the generator repeatedly and feeds each result
// back through the validator.
func TestGenerateIsValid(t *testing.T) {
	for _, mtu := range []int{1280, 1380, 1440} {
		for i := 0; i < 50; i++ {
			p := Generate(mtu)
			if v := Validate(p, mtu); len(v) != 0 {
				t.Fatalf("generated params invalid at mtu %d: %v (%+v)", mtu, v, p)
			}
			if p.MTU != mtu {
				t.Fatalf("generated params carry mtu %d, want %d", p.MTU, mtu)
			}
		}
	}
}

func TestGenerateEmptyIValues(t *testing.T) {
	p := Generate(1280)
	for i, v := range p.IValues() {
		if v != "" {
			t.Errorf("I%d should start empty, got %q", i+1, v)
		}
	}
}
