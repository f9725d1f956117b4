package trove

import (
	"encoding/json"
	"time"
)

// Resource kinds carried on the change-event stream.
const (
	ResourceItem    string = "item"
	ResourceClaim   string = "claim"
	ResourceChat    string = "chat"
	ResourceMessage string = "message"
	ResourceProfile string = "profile"
)

// Actions carried on the change-event stream.
const (
	ActionInsert string = "insert"
	ActionUpdate string = "update"
)

// Event is a row-level change notification fanned out to subscribed clients.
// Document carries a snapshot of the row at publish time; clients may use it
// optimistically but must treat a refetch as authoritative.
type Event struct {
	Resource  string          `json:"resource"`
	Action    string          `json:"action"`
	ID        string          `json:"id"`
	Document  json.RawMessage `json:"document,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// MessageDocument is the event snapshot for a message insert.
type MessageDocument struct {
	ID       string `json:"id"`
	ChatID   string `json:"chatID"`
	SenderID string `json:"senderID"`
	Body     string `json:"body"`
}

// ChatDocument is the event snapshot for a chat row update.
type ChatDocument struct {
	ID             string `json:"id"`
	ItemID         string `json:"itemID"`
	ClaimID        string `json:"claimID"`
	FinderID       string `json:"finderID"`
	ClaimantID     string `json:"claimantID"`
	FinderUnread   int    `json:"finderUnread"`
	ClaimantUnread int    `json:"claimantUnread"`
	IsFrozen       bool   `json:"isFrozen"`
	IsClosed       bool   `json:"isClosed"`
}

// ClaimDocument is the event snapshot for a claim status change.
type ClaimDocument struct {
	ID         string `json:"id"`
	ItemID     string `json:"itemID"`
	ClaimantID string `json:"claimantID"`
	Status     string `json:"status"`
	ChatID     string `json:"chatID,omitempty"`
}

// ProfileDocument is the event snapshot for a trust profile change.
type ProfileDocument struct {
	UserID     string `json:"userID"`
	TrustScore int    `json:"trustScore"`
	TrustTier  string `json:"trustTier"`
}

// NewEvent builds an Event with a marshaled document snapshot. Marshal
// failures degrade to an event without a snapshot so delivery is never
// blocked on a bad payload.
func NewEvent(resource, action, id string, document any) Event {
	e := Event{
		Resource:  resource,
		Action:    action,
		ID:        id,
		Timestamp: time.Now().UTC(),
	}
	if document != nil {
		raw, err := json.Marshal(document)
		if err == nil {
			e.Document = raw
		}
	}
	return e
}
