package domain

import "time"

// Chat is the escorted channel between a finder and the approved claimant.
// Exactly one chat exists per approved claim; chats are never deleted, only
// frozen or closed.
type Chat struct {
	ID             string    `json:"id"`
	ItemID         string    `json:"itemID"`
	ClaimID        string    `json:"claimID"`
	FinderID       string    `json:"finderID"`
	ClaimantID     string    `json:"claimantID"`
	FinderUnread   int       `json:"finderUnread"`
	ClaimantUnread int       `json:"claimantUnread"`
	IsFrozen       bool      `json:"isFrozen"`
	IsClosed       bool      `json:"isClosed"`
	StateReason    string    `json:"stateReason,omitempty"`
	StateActorID   string    `json:"stateActorID,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Participant reports whether userID is one of the two chat parties.
func (c Chat) Participant(userID string) bool {
	return userID == c.FinderID || userID == c.ClaimantID
}

// Other returns the counterpart of userID in the chat.
func (c Chat) Other(userID string) string {
	if userID == c.FinderID {
		return c.ClaimantID
	}
	return c.FinderID
}

// Writable reports whether new messages are accepted. Frozen chats remain
// readable; closed chats are terminal.
func (c Chat) Writable() bool {
	return !c.IsFrozen && !c.IsClosed
}

// UnreadFor returns the unread counter of the given participant.
func (c Chat) UnreadFor(userID string) int {
	if userID == c.FinderID {
		return c.FinderUnread
	}
	return c.ClaimantUnread
}

// Message is a single chat message.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatID"`
	SenderID  string    `json:"senderID"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}
