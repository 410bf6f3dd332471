package accounts

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateUser(user *User) error {
	return d.db.Create(user).Error
}

func (d *Database) GetUser(userID string) (*User, error) {
	var user User
	if err := d.db.Where("user_id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return &user, nil
}

func (d *Database) GetUserByAPIKey(apiKey string) (*User, error) {
	var user User
	if err := d.db.Where("api_key = ?", apiKey).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return &user, nil
}

func (d *Database) UpdateUser(user *User) error {
	return d.db.Save(user).Error
}

func (d *Database) ListUsers() ([]User, error) {
	var users []User
	if err := d.db.Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// GetAutoTradeSettings returns the stored settings or the defaults when the
// user never saved any.
func (d *Database) GetAutoTradeSettings(userID string) (*AutoTradeSettings, error) {
	var settings AutoTradeSettings
	err := d.db.Where("user_id = ?", userID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		defaults := DefaultAutoTradeSettings(userID)
		return &defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch auto-trade settings: %w", err)
	}
	return &settings, nil
}

// SaveAutoTradeSettings upserts on user_id
func (d *Database) SaveAutoTradeSettings(settings *AutoTradeSettings) error {
	return d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"active", "mode", "magnitude", "updated_at"}),
	}).Create(settings).Error
}
