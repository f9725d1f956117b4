package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/trovehq/trove"
	"github.com/trovehq/trove/internal/domain"
)

const maxMessageBodyLen = 4000

// ChatRepository defines storage operations for chats and messages.
type ChatRepository interface {
	Provision(ctx context.Context, chat domain.Chat) (domain.Chat, error)
	Get(ctx context.Context, chatID string) (domain.Chat, error)
	CreateMessage(ctx context.Context, msg domain.Message) (domain.Message, domain.Chat, error)
	MarkRead(ctx context.Context, chatID string, userID string) (domain.Chat, error)
	SetFrozen(ctx context.Context, chatID string, frozen bool, actorID string, reason string) (domain.Chat, error)
	Close(ctx context.Context, chatID string, actorID string, reason string) (domain.Chat, error)
	ListMessages(ctx context.Context, chatID string, limit int) ([]domain.Message, error)
	CountUnread(ctx context.Context, chatID string, userID string) (int, error)
	ListUnprovisioned(ctx context.Context, limit int) ([]domain.Claim, error)
}

// ItemLoader is the slice of the claim store the chat flow needs when
// reconciling missed provisioning.
type ItemLoader interface {
	GetItem(ctx context.Context, itemID string) (domain.Item, error)
}

type ChatUsecase struct {
	repo   ChatRepository
	items  ItemLoader
	signal EventPublisher
}

func NewChatUsecase(repo ChatRepository, items ItemLoader, signal EventPublisher) *ChatUsecase {
	return &ChatUsecase{repo: repo, items: items, signal: signal}
}

// Get returns the chat if the requester participates in it. The requester's
// unread counter is recounted from the message rows: clients treat this read
// as authoritative, so it must not serve a drifted cache column.
func (uc *ChatUsecase) Get(ctx context.Context, chatID string, requesterID string) (domain.Chat, error) {
	chat, err := uc.repo.Get(ctx, chatID)
	if err != nil {
		return domain.Chat{}, err
	}
	if !chat.Participant(requesterID) {
		return domain.Chat{}, domain.ForbiddenError{Actor: requesterID, Operation: "read this chat"}
	}

	unread, err := uc.repo.CountUnread(ctx, chatID, requesterID)
	if err != nil {
		return domain.Chat{}, err
	}
	if requesterID == chat.FinderID {
		chat.FinderUnread = unread
	} else {
		chat.ClaimantUnread = unread
	}

	return chat, nil
}

// SendMessage appends a message and bumps the recipient's unread counter.
func (uc *ChatUsecase) SendMessage(ctx context.Context, chatID string, senderID string, body string) (domain.Message, error) {
	if body == "" {
		return domain.Message{}, domain.InvalidInputError{Field: "body", Reason: "must not be empty"}
	}
	if len(body) > maxMessageBodyLen {
		return domain.Message{}, domain.InvalidInputError{Field: "body", Reason: "too long"}
	}

	msg, chat, err := uc.repo.CreateMessage(ctx, domain.Message{
		ID:       uuid.NewString(),
		ChatID:   chatID,
		SenderID: senderID,
		Body:     body,
	})
	if err != nil {
		return domain.Message{}, err
	}

	uc.signal.PublishToUsers(ctx, []string{chat.FinderID, chat.ClaimantID},
		trove.NewEvent(trove.ResourceMessage, trove.ActionInsert, msg.ID, trove.MessageDocument{
			ID:       msg.ID,
			ChatID:   msg.ChatID,
			SenderID: msg.SenderID,
			Body:     msg.Body,
		}))
	uc.signal.PublishToUsers(ctx, []string{chat.Other(senderID)},
		trove.NewEvent(trove.ResourceChat, trove.ActionUpdate, chat.ID, chatDocument(chat)))

	return msg, nil
}

// MarkRead zeroes the requester's unread counter. Safe to repeat, and
// allowed on frozen or closed chats.
func (uc *ChatUsecase) MarkRead(ctx context.Context, chatID string, userID string) (domain.Chat, error) {
	chat, err := uc.repo.MarkRead(ctx, chatID, userID)
	if err != nil {
		return domain.Chat{}, err
	}

	uc.signal.PublishToUsers(ctx, []string{userID},
		trove.NewEvent(trove.ResourceChat, trove.ActionUpdate, chat.ID, chatDocument(chat)))

	return chat, nil
}

// ListMessages returns the chat transcript, oldest first, to participants
// only. Frozen and closed chats stay readable.
func (uc *ChatUsecase) ListMessages(ctx context.Context, chatID string, requesterID string, limit int) ([]domain.Message, error) {
	chat, err := uc.repo.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.Participant(requesterID) {
		return nil, domain.ForbiddenError{Actor: requesterID, Operation: "read this chat"}
	}
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	return uc.repo.ListMessages(ctx, chatID, limit)
}

// Freeze suspends message sending without hiding history. Admin only.
func (uc *ChatUsecase) Freeze(ctx context.Context, chatID string, actorID string, isAdmin bool, reason string) (domain.Chat, error) {
	return uc.setFrozen(ctx, chatID, true, actorID, isAdmin, reason)
}

// Unfreeze restores message sending on a frozen chat. Admin only.
func (uc *ChatUsecase) Unfreeze(ctx context.Context, chatID string, actorID string, isAdmin bool, reason string) (domain.Chat, error) {
	return uc.setFrozen(ctx, chatID, false, actorID, isAdmin, reason)
}

func (uc *ChatUsecase) setFrozen(ctx context.Context, chatID string, frozen bool, actorID string, isAdmin bool, reason string) (domain.Chat, error) {
	if !isAdmin {
		return domain.Chat{}, domain.ForbiddenError{Actor: actorID, Operation: "moderate chats"}
	}

	chat, err := uc.repo.SetFrozen(ctx, chatID, frozen, actorID, reason)
	if err != nil {
		return domain.Chat{}, err
	}

	uc.signal.PublishToUsers(ctx, []string{chat.FinderID, chat.ClaimantID},
		trove.NewEvent(trove.ResourceChat, trove.ActionUpdate, chat.ID, chatDocument(chat)))

	return chat, nil
}

// Close terminates the chat permanently. Admin only.
func (uc *ChatUsecase) Close(ctx context.Context, chatID string, actorID string, isAdmin bool, reason string) (domain.Chat, error) {
	if !isAdmin {
		return domain.Chat{}, domain.ForbiddenError{Actor: actorID, Operation: "moderate chats"}
	}

	chat, err := uc.repo.Close(ctx, chatID, actorID, reason)
	if err != nil {
		return domain.Chat{}, err
	}

	uc.signal.PublishToUsers(ctx, []string{chat.FinderID, chat.ClaimantID},
		trove.NewEvent(trove.ResourceChat, trove.ActionUpdate, chat.ID, chatDocument(chat)))

	return chat, nil
}

// Reconcile provisions chats for approved claims whose creation was missed,
// e.g. by a crash between the approval commit and the follow-up work in an
// older deployment. Returns how many chats were created.
func (uc *ChatUsecase) Reconcile(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	orphans, err := uc.repo.ListUnprovisioned(ctx, limit)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, claim := range orphans {
		item, err := uc.items.GetItem(ctx, claim.ItemID)
		if err != nil {
			slog.WarnContext(ctx, "skipping orphan claim",
				slog.String("module", "chat"),
				slog.String("claimID", claim.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		chat, err := uc.repo.Provision(ctx, domain.Chat{
			ID:         uuid.NewString(),
			ItemID:     claim.ItemID,
			ClaimID:    claim.ID,
			FinderID:   item.FinderID,
			ClaimantID: claim.ClaimantID,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to provision chat",
				slog.String("module", "chat"),
				slog.String("claimID", claim.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		created++

		uc.signal.PublishToUsers(ctx, []string{chat.FinderID, chat.ClaimantID},
			trove.NewEvent(trove.ResourceChat, trove.ActionInsert, chat.ID, chatDocument(chat)))
	}

	return created, nil
}
