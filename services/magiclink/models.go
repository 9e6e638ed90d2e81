package magiclink

import (
	"time"
)

type MagicLinkToken struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	Email     string     `json:"email" gorm:"size:255;not null;index"`
	TokenHash string     `json:"-" gorm:"size:64;not null;index"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null;index"`
	Used      bool       `json:"used" gorm:"not null;default:false"`
	UsedAt    *time.Time `json:"used_at"`
	UserAgent string     `json:"user_agent" gorm:"size:512"`
	IPAddress string     `json:"ip_address" gorm:"size:45"`
	UserID    *uint      `json:"user_id" gorm:"index"`
}

func (MagicLinkToken) TableName() string {
	return "magic_link_tokens"
}

func (t *MagicLinkToken) IsValidAt(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}

type CreateRequest struct {
	Email     string
	IPAddress string
	UserAgent string
}

type Link struct {
	ID        uint
	Email     string
	Token     string
	URL       string
	ExpiresAt time.Time
}
