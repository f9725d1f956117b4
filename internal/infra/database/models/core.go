package models

import (
	"time"
)

type Item struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid"`
	FinderID    string    `json:"finderID" gorm:"type:text;index;not null"`
	Title       string    `json:"title" gorm:"type:text;not null"`
	Description string    `json:"description" gorm:"type:text"`
	ImageRef    string    `json:"imageRef" gorm:"type:text"`
	Status      string    `json:"status" gorm:"type:text;not null;default:'active';index"`
	ClaimCount  int       `json:"claimCount" gorm:"not null;default:0"`
	CDate       time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	MDate       time.Time `json:"mdate" gorm:"type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type Claim struct {
	ID              string     `json:"id" gorm:"primaryKey;type:uuid"`
	ItemID          string     `json:"itemID" gorm:"type:uuid;index;not null"`
	Item            Item       `json:"-" gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE;"`
	ClaimantID      string     `json:"claimantID" gorm:"type:text;index;not null"`
	Status          string     `json:"status" gorm:"type:text;not null;default:'pending';index"`
	ProofText       string     `json:"proofText" gorm:"type:text"`
	ProofImageRef   string     `json:"proofImageRef" gorm:"type:text"`
	RejectionReason string     `json:"rejectionReason" gorm:"type:text"`
	DecidedAt       *time.Time `json:"decidedAt" gorm:"type:timestamp with time zone"`
	ChatID          *string    `json:"chatID" gorm:"type:uuid"`
	CDate           time.Time  `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
