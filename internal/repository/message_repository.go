package repository

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"sentientos/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create returns the driver error unchanged in the chain so callers can
// test it with IsForeignKeyViolation.
func (r *MessageRepository) Create(message *model.Message) error {
	if message.MsgID == "" {
		message.MsgID = uuid.NewString()
	}
	if err := r.db.Create(message).Error; err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

// ListByChatID returns the transcript in creation order.
func (r *MessageRepository) ListByChatID(chatID string) ([]model.Message, error) {
	var messages []model.Message
	if err := r.db.Where("chat_id = ?", chatID).Order("created_at ASC").Order("msg_id ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return messages, nil
}

func (r *MessageRepository) GetByID(msgID string) (*model.Message, error) {
	var message model.Message
	if err := r.db.Where("msg_id = ?", msgID).First(&message).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message failed: %w", err)
	}
	return &message, nil
}

func (r *MessageRepository) CountByChatID(chatID string) (int64, error) {
	var count int64
	if err := r.db.Model(&model.Message{}).Where("chat_id = ?", chatID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count messages failed: %w", err)
	}
	return count, nil
}
