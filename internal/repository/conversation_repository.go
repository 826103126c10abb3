package repository

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"sentientos/internal/model"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create assigns a chat id when the caller did not supply one.
func (r *ConversationRepository) Create(conversation *model.Conversation) error {
	if conversation.ChatID == "" {
		conversation.ChatID = uuid.NewString()
	}
	if err := r.db.Create(conversation).Error; err != nil {
		return fmt.Errorf("create conversation failed: %w", err)
	}
	return nil
}

// ListByEmail returns the owner's conversations, newest first.
func (r *ConversationRepository) ListByEmail(email string) ([]model.Conversation, error) {
	var conversations []model.Conversation
	if err := r.db.Where("email = ?", email).Order("created_at DESC").Find(&conversations).Error; err != nil {
		return nil, fmt.Errorf("list conversations failed: %w", err)
	}
	return conversations, nil
}

func (r *ConversationRepository) LatestByEmail(email string) (*model.Conversation, error) {
	var conversation model.Conversation
	if err := r.db.Where("email = ?", email).Order("created_at DESC").First(&conversation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest conversation failed: %w", err)
	}
	return &conversation, nil
}

func (r *ConversationRepository) GetByIDAndEmail(chatID, email string) (*model.Conversation, error) {
	var conversation model.Conversation
	if err := r.db.Where("chat_id = ? AND email = ?", chatID, email).First(&conversation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation failed: %w", err)
	}
	return &conversation, nil
}

func (r *ConversationRepository) UpdateTitle(chatID, title string) error {
	if err := r.db.Model(&model.Conversation{}).Where("chat_id = ?", chatID).Update("title", title).Error; err != nil {
		return fmt.Errorf("update conversation title failed: %w", err)
	}
	return nil
}

// DeleteByIDAndEmail removes the conversation; its messages go with it via
// the ON DELETE CASCADE foreign key.
func (r *ConversationRepository) DeleteByIDAndEmail(chatID, email string) error {
	if err := r.db.Where("chat_id = ? AND email = ?", chatID, email).Delete(&model.Conversation{}).Error; err != nil {
		return fmt.Errorf("delete conversation failed: %w", err)
	}
	return nil
}
