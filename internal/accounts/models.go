package accounts

import (
	"time"

	"gorm.io/gorm"
)

// Auto-trade outcome modes
const (
	ModeRandom     = "Random"
	ModeAlwaysWin  = "Always_Win"
	ModeAlwaysLose = "Always_Lose"
)

// Auto-trade payout magnitude classes
const (
	MagnitudeTen      = "Ten"
	MagnitudeHundred  = "Hundred"
	MagnitudeThousand = "Thousand"
	MagnitudeMillion  = "Million"
	MagnitudeRandom   = "Random"
)

type User struct {
	ID            uint           `gorm:"primaryKey" json:"-"`
	UserID        string         `gorm:"uniqueIndex" json:"user_id"`
	Email         string         `gorm:"uniqueIndex" json:"email"`
	Name          string         `json:"name"`
	Role          string         `json:"role"` // user or admin
	APIKey        string         `gorm:"uniqueIndex" json:"api_key"`
	APISecretHash string         `json:"-"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// AutoTradeSettings decides how a user's expired trades resolve
type AutoTradeSettings struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	UserID    string    `gorm:"uniqueIndex" json:"user_id"`
	Active    bool      `json:"active"`
	Mode      string    `json:"mode"`      // Random, Always_Win, Always_Lose
	Magnitude string    `json:"magnitude"` // Ten, Hundred, Thousand, Million, Random
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultAutoTradeSettings is used for users who never saved settings.
func DefaultAutoTradeSettings(userID string) AutoTradeSettings {
	return AutoTradeSettings{
		UserID:    userID,
		Active:    false,
		Mode:      ModeRandom,
		Magnitude: MagnitudeTen,
	}
}

type RegisterUserRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// RegisterUserResponse carries the API secret in clear text. It is only
// ever returned once.
type RegisterUserResponse struct {
	User      *User  `json:"user"`
	APISecret string `json:"api_secret"`
}

type UpdateProfileRequest struct {
	Email string `json:"email" binding:"omitempty,email"`
	Name  string `json:"name"`
}

type RotateSecretResponse struct {
	APIKey    string    `json:"api_key"`
	APISecret string    `json:"api_secret"`
	RotatedAt time.Time `json:"rotated_at"`
}

type UpdateAutoTradeRequest struct {
	Active    *bool  `json:"active"`
	Mode      string `json:"mode"`
	Magnitude string `json:"magnitude"`
}
