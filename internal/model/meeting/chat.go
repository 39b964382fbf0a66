package meeting

import "time"

// ChatEntry is one message of the conversation, in arrival order.
type ChatEntry struct {
	ID          string       `json:"id"`
	RoomID      string       `json:"roomId"`
	Sequence    int64        `json:"sequence"`
	SenderID    string       `json:"senderId"`
	DisplayName string       `json:"displayName"`
	Text        string       `json:"text"`
	Language    string       `json:"language,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	Translation *Translation `json:"translation,omitempty"`
	IsSelf      bool         `json:"isSelf"`
}

// Translation is attached to an entry at most once, after insertion.
type Translation struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	At       time.Time `json:"at"`
}

// Translated reports whether a translation has already been attached.
func (e ChatEntry) Translated() bool {
	return e.Translation != nil
}

// TranslatedText returns the attached translation or an empty string.
func (e ChatEntry) TranslatedText() string {
	if e.Translation == nil {
		return ""
	}
	return e.Translation.Text
}
