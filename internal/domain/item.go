package domain

import "time"

// Item is a found item posted by a finder. Status is mutated only by the
// claim workflow; metadata edits stop once a claim is approved.
type Item struct {
	ID          string     `json:"id"`
	FinderID    string     `json:"finderID"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ImageRef    string     `json:"imageRef,omitempty"`
	ImageURL    string     `json:"imageURL,omitempty"`
	Status      ItemStatus `json:"status"`
	ClaimCount  int        `json:"claimCount"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Claimable reports whether new claims may be submitted against the item.
func (i Item) Claimable() bool {
	return i.Status == ItemActive
}
