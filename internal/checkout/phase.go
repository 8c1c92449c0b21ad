package checkout

import "github.com/sweetshop/sweetshop-backend/pkg/enums"

// phaseTracker follows a single checkout through enums.CheckoutPhase.
// reached keeps the last non-terminal phase so failures can report where
// they happened.
type phaseTracker struct {
	current enums.CheckoutPhase
	reached enums.CheckoutPhase
}

func newPhaseTracker() *phaseTracker {
	return &phaseTracker{
		current: enums.CheckoutPhasePopulated,
		reached: enums.CheckoutPhasePopulated,
	}
}

// advance moves to next when the transition is allowed and reports whether it did.
func (p *phaseTracker) advance(next enums.CheckoutPhase) bool {
	if p.current == next {
		return true
	}
	if !p.current.CanTransition(next) {
		return false
	}
	p.current = next
	if !next.IsTerminal() {
		p.reached = next
	}
	return true
}
