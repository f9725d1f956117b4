package models

import (
	"time"
)

type Profile struct {
	UserID          string    `json:"userID" gorm:"primaryKey;type:text"`
	DisplayName     string    `json:"displayName" gorm:"type:text"`
	TrustScore      int       `json:"trustScore" gorm:"not null;default:50"`
	TrustTier       string    `json:"trustTier" gorm:"type:text;not null;default:'Fair Trust'"`
	ItemsFound      int       `json:"itemsFound" gorm:"not null;default:0"`
	ItemsReturned   int       `json:"itemsReturned" gorm:"not null;default:0"`
	ClaimsMade      int       `json:"claimsMade" gorm:"not null;default:0"`
	ClaimsSucceeded int       `json:"claimsSucceeded" gorm:"not null;default:0"`
	ClaimsHonored   int       `json:"claimsHonored" gorm:"not null;default:0"`
	MDate           time.Time `json:"mdate" gorm:"type:timestamp with time zone;not null;default:clock_timestamp()"`
}

// TrustLog is append-only. The partial unique index deduplicates
// reference-bound events per (user, action, reference).
type TrustLog struct {
	ID            string    `json:"id" gorm:"primaryKey;type:uuid"`
	UserID        string    `json:"userID" gorm:"type:text;index;not null;uniqueIndex:trust_log_ref,where:reference <> ''"`
	Action        string    `json:"action" gorm:"type:text;not null;uniqueIndex:trust_log_ref,where:reference <> ''"`
	PointsChange  int       `json:"pointsChange" gorm:"not null"`
	PreviousScore int       `json:"previousScore" gorm:"not null"`
	NewScore      int       `json:"newScore" gorm:"not null"`
	Reference     string    `json:"reference" gorm:"type:text;not null;default:'';uniqueIndex:trust_log_ref,where:reference <> ''"`
	ActorID       string    `json:"actorID" gorm:"type:text"`
	Reason        string    `json:"reason" gorm:"type:text"`
	CDate         time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
