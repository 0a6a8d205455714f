package model

// Recipient is anyone a newsletter can be addressed to. It is either a
// persisted *Subscriber or an ephemeral TestRecipient; callers that need to
// record deliveries switch on the concrete type.
type Recipient interface {
	Address() string
	DisplayName() string
	SportPreferences() Preferences
	CapabilityToken() string
}

func (s *Subscriber) Address() string               { return s.Email }
func (s *Subscriber) DisplayName() string           { return s.Name }
func (s *Subscriber) SportPreferences() Preferences { return s.Preferences }
func (s *Subscriber) CapabilityToken() string       { return s.Token }

// TestRecipient receives a test send. It has no preferences, no token and no delivery record.
type TestRecipient struct {
	Email string
	Name  string
}

func (t TestRecipient) Address() string { return t.Email }

func (t TestRecipient) DisplayName() string {
	if t.Name == "" {
		return "Test User"
	}
	return t.Name
}

func (t TestRecipient) SportPreferences() Preferences { return Preferences{} }
func (t TestRecipient) CapabilityToken() string       { return "" }
