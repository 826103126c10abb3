package model

import "time"

// Profile is keyed by email. IsPremium is flipped by billing, never by the chat flow.
type Profile struct {
	Email     string    `gorm:"primaryKey;size:255" json:"email"`
	IsPremium bool      `gorm:"not null;default:false" json:"is_premium"`
	CreatedAt time.Time `json:"created_at"`
}

func (Profile) TableName() string {
	return "profiles"
}
