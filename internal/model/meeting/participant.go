package meeting

// Participant is one member of the live meeting as last reported by the backend.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Online      bool   `json:"online"`
	Avatar      string `json:"avatar,omitempty"`
}
