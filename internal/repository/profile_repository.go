package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sentientos/internal/model"
)

type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Ensure creates a non-premium profile for email unless one exists.
func (r *ProfileRepository) Ensure(email string) error {
	profile := &model.Profile{Email: email}
	if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(profile).Error; err != nil {
		return fmt.Errorf("ensure profile failed: %w", err)
	}
	return nil
}

func (r *ProfileRepository) GetByEmail(email string) (*model.Profile, error) {
	var profile model.Profile
	if err := r.db.Where("email = ?", email).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query profile by email failed: %w", err)
	}
	return &profile, nil
}

// SetPremium upserts the premium flag for email.
func (r *ProfileRepository) SetPremium(email string, premium bool) error {
	profile := &model.Profile{Email: email, IsPremium: premium}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_premium"}),
	}).Create(profile).Error
	if err != nil {
		return fmt.Errorf("set profile premium failed: %w", err)
	}
	return nil
}
