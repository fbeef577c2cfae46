package entitlements

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want Plan
	}{
		{in: "free", want: PlanFree},
		{in: "pro", want: PlanPro},
		{in: "PRO", want: PlanPro},
		{in: "lifetime", want: PlanLifetime},
		{in: "admin", want: PlanAdmin},
		{in: "invalid", want: PlanFree},
		{in: "", want: PlanFree},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRank(t *testing.T) {
	if Rank(PlanFree) >= Rank(PlanPro) {
		t.Fatalf("expected pro to outrank free")
	}
	if Rank(PlanPro) >= Rank(PlanLifetime) {
		t.Fatalf("expected lifetime to outrank pro")
	}
	if Rank(PlanLifetime) >= Rank(PlanAdmin) {
		t.Fatalf("expected admin to outrank lifetime")
	}
}

func TestIsPremium(t *testing.T) {
	if IsPremium(PlanFree) {
		t.Fatalf("expected free to be non-premium")
	}
	for _, p := range []Plan{PlanPro, PlanLifetime, PlanAdmin} {
		if !IsPremium(p) {
			t.Fatalf("expected %q to be premium", p)
		}
	}
}

func TestAllowedFeatures(t *testing.T) {
	if _, _, whatsapp := AllowedFeatures(PlanPro); whatsapp {
		t.Fatalf("pro plan should not include the whatsapp channel")
	}
	unlimited, rewriting, whatsapp := AllowedFeatures(PlanLifetime)
	if !unlimited || !rewriting || !whatsapp {
		t.Fatalf("lifetime plan should include all features")
	}
}
