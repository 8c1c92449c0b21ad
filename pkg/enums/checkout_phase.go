package enums

import "fmt"

// CheckoutPhase tracks how far a checkout progressed.
//
//	populated -> validating -> committing -> cleared
//	validating -> rejected
//	committing -> fatal
type CheckoutPhase string

const (
	CheckoutPhasePopulated  CheckoutPhase = "populated"
	CheckoutPhaseValidating CheckoutPhase = "validating"
	CheckoutPhaseCommitting CheckoutPhase = "committing"
	CheckoutPhaseCleared    CheckoutPhase = "cleared"
	CheckoutPhaseRejected   CheckoutPhase = "rejected"
	CheckoutPhaseFatal      CheckoutPhase = "fatal"
)

var checkoutTransitions = map[CheckoutPhase][]CheckoutPhase{
	CheckoutPhasePopulated:  {CheckoutPhaseValidating, CheckoutPhaseRejected},
	CheckoutPhaseValidating: {CheckoutPhaseCommitting, CheckoutPhaseRejected},
	CheckoutPhaseCommitting: {CheckoutPhaseCleared, CheckoutPhaseRejected, CheckoutPhaseFatal},
}

// String implements fmt.Stringer.
func (p CheckoutPhase) String() string {
	return string(p)
}

// IsValid reports whether the value is a known CheckoutPhase.
func (p CheckoutPhase) IsValid() bool {
	switch p {
	case CheckoutPhasePopulated, CheckoutPhaseValidating, CheckoutPhaseCommitting,
		CheckoutPhaseCleared, CheckoutPhaseRejected, CheckoutPhaseFatal:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (p CheckoutPhase) IsTerminal() bool {
	return p == CheckoutPhaseCleared || p == CheckoutPhaseRejected || p == CheckoutPhaseFatal
}

// CanTransition reports whether next may follow p.
func (p CheckoutPhase) CanTransition(next CheckoutPhase) bool {
	for _, candidate := range checkoutTransitions[p] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseCheckoutPhase converts raw input into a CheckoutPhase.
func ParseCheckoutPhase(value string) (CheckoutPhase, error) {
	p := CheckoutPhase(value)
	if !p.IsValid() {
		return "", fmt.Errorf("invalid checkout phase %q", value)
	}
	return p, nil
}
