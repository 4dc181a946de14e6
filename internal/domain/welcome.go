package domain

// WelcomeState records whether the one-time welcome flow already ran for a
// conversation identity.
type WelcomeState struct {
	HasWelcomed bool `json:"hasWelcomed"`
}
