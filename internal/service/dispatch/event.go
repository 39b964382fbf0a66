package dispatch

// Event is one decoded inbound frame.
type Event interface {
	Type() EventType
}

type SessionConnected struct{}

func (SessionConnected) Type() EventType { return TypeSessionConnected }

// MembersUpdated carries a full membership snapshot.
type MembersUpdated struct {
	Members []MemberPayload
}

func (MembersUpdated) Type() EventType { return TypeMembersUpdated }

type ChatReceived struct {
	ChatPayload
}

func (ChatReceived) Type() EventType { return TypeChat }

type TranslationReceived struct {
	TranslationPayload
}

func (TranslationReceived) Type() EventType { return TypeTranslation }
