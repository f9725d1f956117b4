package client

import (
	"encoding/json"
	"time"

	"github.com/trovehq/trove"
)

// View is a single-user projection of the realtime stream: unread badges,
// claim banners, and the trust score display. It is not safe for concurrent
// use; feed it from one goroutine.
//
// The stream is best-effort. Message inserts only nudge a pending delta;
// every chat snapshot event is authoritative and resets the delta, so the
// view converges even when inserts are duplicated, reordered, or lost.
type View struct {
	selfID string

	chats map[string]*chatView

	// seen bounds double-counting of redelivered message inserts.
	seen    map[string]bool
	seenIDs []string

	claimBanners map[string]string

	trustScore int
	trustTier  string
	hasScore   bool
}

type chatView struct {
	confirmed    int
	pendingDelta int
	snapshotAt   time.Time
	frozen       bool
	closed       bool
}

const seenLimit = 1024

func NewView(selfID string) *View {
	return &View{
		selfID:       selfID,
		chats:        map[string]*chatView{},
		seen:         map[string]bool{},
		claimBanners: map[string]string{},
	}
}

// Apply folds one event into the view. Unknown resources and malformed
// documents are ignored; the stream is advisory, not a source of truth.
func (v *View) Apply(event trove.Event) {
	switch event.Resource {
	case trove.ResourceMessage:
		v.applyMessage(event)
	case trove.ResourceChat:
		v.applyChat(event)
	case trove.ResourceClaim:
		v.applyClaim(event)
	case trove.ResourceProfile:
		v.applyProfile(event)
	}
}

func (v *View) applyMessage(event trove.Event) {
	if event.Action != trove.ActionInsert {
		return
	}
	if v.seen[event.ID] {
		return
	}
	v.remember(event.ID)

	var doc trove.MessageDocument
	if err := json.Unmarshal(event.Document, &doc); err != nil {
		return
	}
	if doc.SenderID == v.selfID {
		return
	}

	chat := v.chat(doc.ChatID)
	chat.pendingDelta++
}

func (v *View) applyChat(event trove.Event) {
	var doc trove.ChatDocument
	if err := json.Unmarshal(event.Document, &doc); err != nil {
		return
	}

	chat := v.chat(doc.ID)
	// Snapshots can arrive out of order; an older one must not clobber a
	// newer confirmed count.
	if !event.Timestamp.IsZero() && event.Timestamp.Before(chat.snapshotAt) {
		return
	}
	chat.snapshotAt = event.Timestamp

	if v.selfID == doc.FinderID {
		chat.confirmed = doc.FinderUnread
	} else {
		chat.confirmed = doc.ClaimantUnread
	}
	chat.pendingDelta = 0
	chat.frozen = doc.IsFrozen
	chat.closed = doc.IsClosed
}

func (v *View) applyClaim(event trove.Event) {
	var doc trove.ClaimDocument
	if err := json.Unmarshal(event.Document, &doc); err != nil {
		return
	}

	switch doc.Status {
	case "approved":
		if doc.ClaimantID == v.selfID {
			v.claimBanners[doc.ID] = "Your claim was approved. A chat with the finder is open."
		} else {
			v.claimBanners[doc.ID] = "Claim approved."
		}
	case "rejected":
		if doc.ClaimantID == v.selfID {
			v.claimBanners[doc.ID] = "Your claim was not approved."
		} else {
			v.claimBanners[doc.ID] = "Claim rejected."
		}
	case "withdrawn":
		v.claimBanners[doc.ID] = "Claim withdrawn."
	default:
		v.claimBanners[doc.ID] = "Claim submitted, pending review."
	}
}

func (v *View) applyProfile(event trove.Event) {
	var doc trove.ProfileDocument
	if err := json.Unmarshal(event.Document, &doc); err != nil {
		return
	}
	if doc.UserID != v.selfID {
		return
	}
	v.trustScore = doc.TrustScore
	v.trustTier = doc.TrustTier
	v.hasScore = true
}

// Unread returns the displayed badge count for a chat. Never negative.
func (v *View) Unread(chatID string) int {
	chat, ok := v.chats[chatID]
	if !ok {
		return 0
	}
	n := chat.confirmed + chat.pendingDelta
	if n < 0 {
		return 0
	}
	return n
}

// ChatWritable reports whether the view believes the chat accepts messages.
func (v *View) ChatWritable(chatID string) bool {
	chat, ok := v.chats[chatID]
	if !ok {
		return true
	}
	return !chat.frozen && !chat.closed
}

// ClaimBanner returns the banner text for a claim, if any.
func (v *View) ClaimBanner(claimID string) (string, bool) {
	banner, ok := v.claimBanners[claimID]
	return banner, ok
}

// TrustScore returns the last seen own score and whether one was seen.
func (v *View) TrustScore() (int, string, bool) {
	return v.trustScore, v.trustTier, v.hasScore
}

func (v *View) chat(chatID string) *chatView {
	chat, ok := v.chats[chatID]
	if !ok {
		chat = &chatView{}
		v.chats[chatID] = chat
	}
	return chat
}

func (v *View) remember(eventID string) {
	v.seen[eventID] = true
	v.seenIDs = append(v.seenIDs, eventID)
	if len(v.seenIDs) > seenLimit {
		delete(v.seen, v.seenIDs[0])
		v.seenIDs = v.seenIDs[1:]
	}
}
