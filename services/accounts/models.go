package accounts

import "time"

type Account struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	Email       string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	Name        string     `json:"name" gorm:"size:255"`
	Active      bool       `json:"active" gorm:"not null;default:true"`
	LastLoginAt *time.Time `json:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}
