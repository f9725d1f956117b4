package models

import (
	"time"
)

type Chat struct {
	ID             string    `json:"id" gorm:"primaryKey;type:uuid"`
	ItemID         string    `json:"itemID" gorm:"type:uuid;index;not null"`
	Item           Item      `json:"-" gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE;"`
	ClaimID        string    `json:"claimID" gorm:"type:uuid;uniqueIndex:chat_claim_id;not null"`
	Claim          Claim     `json:"-" gorm:"foreignKey:ClaimID;constraint:OnDelete:CASCADE;"`
	FinderID       string    `json:"finderID" gorm:"type:text;index;not null"`
	ClaimantID     string    `json:"claimantID" gorm:"type:text;index;not null"`
	FinderUnread   int       `json:"finderUnread" gorm:"not null;default:0"`
	ClaimantUnread int       `json:"claimantUnread" gorm:"not null;default:0"`
	IsFrozen       bool      `json:"isFrozen" gorm:"not null;default:false"`
	IsClosed       bool      `json:"isClosed" gorm:"not null;default:false"`
	StateReason    string    `json:"stateReason" gorm:"type:text"`
	StateActorID   string    `json:"stateActorID" gorm:"type:text"`
	CDate          time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	MDate          time.Time `json:"mdate" gorm:"type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type Message struct {
	ID       string    `json:"id" gorm:"primaryKey;type:uuid"`
	ChatID   string    `json:"chatID" gorm:"type:uuid;index;not null"`
	Chat     Chat      `json:"-" gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE;"`
	SenderID string    `json:"senderID" gorm:"type:text;index;not null"`
	Body     string    `json:"body" gorm:"type:text;not null"`
	Read     bool      `json:"read" gorm:"not null;default:false;index"`
	CDate    time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
