package model

// CanReceivePayments reports whether checkout may hand this shop's sessions
// to the payment processor. The OnboardingComplete fallback keeps shops
// onboarded before KYC tracking existed functional.
func (s *Shop) CanReceivePayments() bool {
	return s.ChargesEnabled && (s.HasValidKyc || s.OnboardingComplete)
}

func (s *Shop) CanReceivePayouts() bool {
	return s.PayoutsEnabled && (s.HasValidKyc || s.OnboardingComplete)
}
