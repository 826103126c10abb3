package model

// PremiumEvent is the billing queue payload.
type PremiumEvent struct {
	Email     string `json:"email"`
	IsPremium bool   `json:"is_premium"`
}
