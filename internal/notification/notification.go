package notification

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/tradedesk-api/internal/types"
	"github.com/ksred/tradedesk-api/pkg/middleware"
	"github.com/ksred/tradedesk-api/pkg/response"
	"gorm.io/gorm"
)

var ErrNotificationNotFound = fmt.Errorf("notification %w", types.ErrNotFound)

type Notification struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	NotificationID string    `gorm:"uniqueIndex" json:"notification_id"`
	UserID         string    `gorm:"index" json:"user_id"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	IsRead         bool      `gorm:"index" json:"read"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Create inserts a notification using tx, so callers can make it part of
// the transaction that caused it.
func Create(tx *gorm.DB, userID, title, message string) (*Notification, error) {
	n := &Notification{
		NotificationID: "NTF_" + uuid.New().String(),
		UserID:         userID,
		Title:          title,
		Message:        message,
	}
	if err := tx.Create(n).Error; err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	return n, nil
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Notify(userID, title, message string) (*Notification, error) {
	return Create(s.db, userID, title, message)
}

// List returns the user's notifications, newest first
func (s *Service) List(userID string, unreadOnly bool) ([]Notification, error) {
	var notifications []Notification
	query := s.db.Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if err := query.Order("created_at DESC").Order("id DESC").Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func (s *Service) MarkRead(userID, notificationID string) error {
	result := s.db.Model(&Notification{}).
		Where("notification_id = ? AND user_id = ?", notificationID, userID).
		Updates(map[string]interface{}{
			"is_read":    true,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *Service) MarkAllRead(userID string) (int64, error) {
	result := s.db.Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{
			"is_read":    true,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// GinHandlers contains HTTP handlers for notification endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		notifications, err := h.service.List(middleware.UserID(c), c.Query("unread") == "true")
		response.Handle(c, notifications, err)
	}
}

func (h *GinHandlers) MarkReadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.service.MarkRead(middleware.UserID(c), c.Param("notification_id")); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"message": "notification marked as read"})
	}
}

func (h *GinHandlers) MarkAllReadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		updated, err := h.service.MarkAllRead(middleware.UserID(c))
		response.Handle(c, gin.H{"updated": updated}, err)
	}
}
