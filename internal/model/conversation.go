package model

import "time"

const (
	DefaultConversationTitle  = "New Sequence"
	RestoredConversationTitle = "Restored Sequence"
)

type Conversation struct {
	ChatID    string    `gorm:"primaryKey;size:36" json:"chat_id"`
	Email     string    `gorm:"size:255;not null;index" json:"email"`
	Title     string    `gorm:"size:256;not null" json:"title"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	// Deleting a conversation removes its messages in the database itself.
	Messages []Message `gorm:"foreignKey:ChatID;references:ChatID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Conversation) TableName() string {
	return "chat_sessions"
}
