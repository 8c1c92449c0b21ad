package enums

import "testing"

func TestParseUserRole(t *testing.T) {
	role, err := ParseUserRole("admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != UserRoleAdmin {
		t.Fatalf("expected admin, got %s", role)
	}
	if _, err := ParseUserRole("root"); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if UserRole("").IsValid() {
		t.Fatal("empty role must be invalid")
	}
}

func TestCheckoutPhaseTransitions(t *testing.T) {
	tests := []struct {
		from, to CheckoutPhase
		ok       bool
	}{
		{CheckoutPhasePopulated, CheckoutPhaseValidating, true},
		{CheckoutPhaseValidating, CheckoutPhaseCommitting, true},
		{CheckoutPhaseValidating, CheckoutPhaseRejected, true},
		{CheckoutPhaseCommitting, CheckoutPhaseCleared, true},
		{CheckoutPhaseCommitting, CheckoutPhaseFatal, true},
		{CheckoutPhaseValidating, CheckoutPhaseCleared, false},
		{CheckoutPhaseCleared, CheckoutPhaseValidating, false},
		{CheckoutPhaseFatal, CheckoutPhaseCleared, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Fatalf("%s -> %s: expected %v got %v", tt.from, tt.to, tt.ok, got)
		}
	}
}

func TestCheckoutPhaseTerminal(t *testing.T) {
	for _, p := range []CheckoutPhase{CheckoutPhaseCleared, CheckoutPhaseRejected, CheckoutPhaseFatal} {
		if !p.IsTerminal() {
			t.Fatalf("expected %s to be terminal", p)
		}
	}
	if CheckoutPhaseCommitting.IsTerminal() {
		t.Fatal("committing is not terminal")
	}
	if _, err := ParseCheckoutPhase("shipping"); err == nil {
		t.Fatal("expected error for unknown phase")
	}
}
