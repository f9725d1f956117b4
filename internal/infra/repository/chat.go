package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trovehq/trove/internal/domain"
	"github.com/trovehq/trove/internal/infra/database/models"
	"github.com/trovehq/trove/internal/usecase"
)

type ChatRepository struct {
	db *gorm.DB
}

var _ usecase.ChatRepository = (*ChatRepository)(nil)

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// Provision creates the chat for an approved claim, or returns the existing
// one. Also backfills the claim's chat reference, which makes the
// reconciliation pass re-runnable.
func (r *ChatRepository) Provision(ctx context.Context, chat domain.Chat) (domain.Chat, error) {
	var row models.Chat
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		row, err = provisionChatTx(tx, models.Chat{
			ID:         chat.ID,
			ItemID:     chat.ItemID,
			ClaimID:    chat.ClaimID,
			FinderID:   chat.FinderID,
			ClaimantID: chat.ClaimantID,
		})
		if err != nil {
			return err
		}
		return tx.Model(&models.Claim{}).
			Where("id = ? AND chat_id IS NULL", chat.ClaimID).
			Update("chat_id", row.ID).Error
	})
	if err != nil {
		return domain.Chat{}, err
	}
	return chatToDomain(row), nil
}

func (r *ChatRepository) Get(ctx context.Context, chatID string) (domain.Chat, error) {
	var row models.Chat
	err := r.db.WithContext(ctx).
		Where("id = ?", chatID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Chat{}, domain.NotFoundError{Resource: "chat"}
	}
	if err != nil {
		return domain.Chat{}, err
	}
	return chatToDomain(row), nil
}

// CreateMessage persists the message and increments the counterpart's unread
// counter in one transaction. The chat row is locked first so the
// availability check and the increment observe the same state.
func (r *ChatRepository) CreateMessage(ctx context.Context, msg domain.Message) (domain.Message, domain.Chat, error) {
	var chatRow models.Chat
	var msgRow models.Message

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", msg.ChatID).
			Take(&chatRow).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.NotFoundError{Resource: "chat"}
		}
		if err != nil {
			return err
		}

		chat := chatToDomain(chatRow)
		if !chat.Participant(msg.SenderID) {
			return domain.ForbiddenError{Actor: msg.SenderID, Operation: "send messages in this chat"}
		}
		if !chat.Writable() {
			return domain.ChatUnavailableError{ChatID: chat.ID, Reason: chatUnavailableReason(chat)}
		}

		msgRow = models.Message{
			ID:       msg.ID,
			ChatID:   msg.ChatID,
			SenderID: msg.SenderID,
			Body:     msg.Body,
		}
		if err := tx.Create(&msgRow).Error; err != nil {
			return err
		}

		counter := "claimant_unread"
		if chat.Other(msg.SenderID) == chat.FinderID {
			counter = "finder_unread"
		}
		res := tx.Model(&models.Chat{}).
			Where("id = ? AND is_frozen = false AND is_closed = false", msg.ChatID).
			Updates(map[string]any{
				counter:  gorm.Expr(counter + " + 1"),
				"m_date": gorm.Expr("clock_timestamp()"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ChatUnavailableError{ChatID: chat.ID, Reason: "chat state changed"}
		}

		return tx.Where("id = ?", msg.ChatID).Take(&chatRow).Error
	})
	if err != nil {
		return domain.Message{}, domain.Chat{}, err
	}

	var created models.Message
	if err := r.db.WithContext(ctx).Where("id = ?", msgRow.ID).Take(&created).Error; err == nil {
		msgRow = created
	}
	return messageToDomain(msgRow), chatToDomain(chatRow), nil
}

// MarkRead zeroes the participant's unread counter and flags their incoming
// messages read. Safe to call when there is nothing to mark; read-only
// reconciliation is permitted even on frozen or closed chats.
func (r *ChatRepository) MarkRead(ctx context.Context, chatID string, userID string) (domain.Chat, error) {
	var chatRow models.Chat
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", chatID).
			Take(&chatRow).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.NotFoundError{Resource: "chat"}
		}
		if err != nil {
			return err
		}

		chat := chatToDomain(chatRow)
		if !chat.Participant(userID) {
			return domain.ForbiddenError{Actor: userID, Operation: "read this chat"}
		}

		err = tx.Model(&models.Message{}).
			Where("chat_id = ? AND sender_id <> ? AND read = false", chatID, userID).
			Update("read", true).Error
		if err != nil {
			return err
		}

		counter := "finder_unread"
		if userID == chat.ClaimantID {
			counter = "claimant_unread"
		}
		err = tx.Model(&models.Chat{}).
			Where("id = ?", chatID).
			Updates(map[string]any{
				counter:  0,
				"m_date": gorm.Expr("clock_timestamp()"),
			}).Error
		if err != nil {
			return err
		}

		return tx.Where("id = ?", chatID).Take(&chatRow).Error
	})
	if err != nil {
		return domain.Chat{}, err
	}
	return chatToDomain(chatRow), nil
}

// SetFrozen toggles the frozen flag. Closed chats cannot change state.
func (r *ChatRepository) SetFrozen(ctx context.Context, chatID string, frozen bool, actorID string, reason string) (domain.Chat, error) {
	var chatRow models.Chat
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Chat{}).
			Where("id = ? AND is_closed = false", chatID).
			Updates(map[string]any{
				"is_frozen":      frozen,
				"state_reason":   reason,
				"state_actor_id": actorID,
				"m_date":         gorm.Expr("clock_timestamp()"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Where("id = ?", chatID).Take(&chatRow).Error; errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFoundError{Resource: "chat"}
			}
			return domain.InvalidStateError{Entity: "chat", State: "closed"}
		}
		return tx.Where("id = ?", chatID).Take(&chatRow).Error
	})
	if err != nil {
		return domain.Chat{}, err
	}
	return chatToDomain(chatRow), nil
}

// Close is terminal; closed chats reject both messages and unfreezing.
func (r *ChatRepository) Close(ctx context.Context, chatID string, actorID string, reason string) (domain.Chat, error) {
	var chatRow models.Chat
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Chat{}).
			Where("id = ? AND is_closed = false", chatID).
			Updates(map[string]any{
				"is_closed":      true,
				"is_frozen":      false,
				"state_reason":   reason,
				"state_actor_id": actorID,
				"m_date":         gorm.Expr("clock_timestamp()"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Where("id = ?", chatID).Take(&chatRow).Error; errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFoundError{Resource: "chat"}
			}
			return domain.InvalidStateError{Entity: "chat", State: "closed"}
		}
		return tx.Where("id = ?", chatID).Take(&chatRow).Error
	})
	if err != nil {
		return domain.Chat{}, err
	}
	return chatToDomain(chatRow), nil
}

func (r *ChatRepository) ListMessages(ctx context.Context, chatID string, limit int) ([]domain.Message, error) {
	var rows []models.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("c_date ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	messages := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, messageToDomain(row))
	}
	return messages, nil
}

// CountUnread recomputes the participant's unread count from the message
// rows. This is the source of truth the counters must agree with.
func (r *ChatRepository) CountUnread(ctx context.Context, chatID string, userID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("chat_id = ? AND sender_id <> ? AND read = false", chatID, userID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// ListUnprovisioned finds approved claims that have no chat reference yet,
// feeding the reconciliation pass.
func (r *ChatRepository) ListUnprovisioned(ctx context.Context, limit int) ([]domain.Claim, error) {
	var rows []models.Claim
	err := r.db.WithContext(ctx).
		Where("status = ? AND chat_id IS NULL", string(domain.ClaimApproved)).
		Order("c_date ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	claims := make([]domain.Claim, 0, len(rows))
	for _, row := range rows {
		claims = append(claims, claimToDomain(row))
	}
	return claims, nil
}

// provisionChatTx inserts the chat guarded by the unique claim reference.
// A second call with the same claim returns the row created by the first.
func provisionChatTx(tx *gorm.DB, chat models.Chat) (models.Chat, error) {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "claim_id"}},
		DoNothing: true,
	}).Create(&chat).Error
	if err != nil {
		return models.Chat{}, err
	}

	var row models.Chat
	err = tx.Where("claim_id = ?", chat.ClaimID).Take(&row).Error
	if err != nil {
		return models.Chat{}, err
	}
	return row, nil
}

func chatUnavailableReason(chat domain.Chat) string {
	if chat.IsClosed {
		return "chat is closed"
	}
	return "chat is frozen"
}

func chatToDomain(row models.Chat) domain.Chat {
	return domain.Chat{
		ID:             row.ID,
		ItemID:         row.ItemID,
		ClaimID:        row.ClaimID,
		FinderID:       row.FinderID,
		ClaimantID:     row.ClaimantID,
		FinderUnread:   row.FinderUnread,
		ClaimantUnread: row.ClaimantUnread,
		IsFrozen:       row.IsFrozen,
		IsClosed:       row.IsClosed,
		StateReason:    row.StateReason,
		StateActorID:   row.StateActorID,
		CreatedAt:      row.CDate,
		UpdatedAt:      row.MDate,
	}
}

func messageToDomain(row models.Message) domain.Message {
	return domain.Message{
		ID:        row.ID,
		ChatID:    row.ChatID,
		SenderID:  row.SenderID,
		Body:      row.Body,
		Read:      row.Read,
		CreatedAt: row.CDate,
	}
}
