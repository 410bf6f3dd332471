package accounts

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/tradedesk-api/internal/types"
	"github.com/ksred/tradedesk-api/pkg/middleware"
	"github.com/ksred/tradedesk-api/pkg/response"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = fmt.Errorf("user %w", types.ErrNotFound)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid API credentials", types.ErrUnauthorized)
	ErrInvalidRole        = fmt.Errorf("%w: role must be user or admin", types.ErrValidation)
	ErrInvalidMode        = fmt.Errorf("%w: mode must be Random, Always_Win or Always_Lose", types.ErrValidation)
	ErrInvalidMagnitude   = fmt.Errorf("%w: magnitude must be Ten, Hundred, Thousand, Million or Random", types.ErrValidation)
)

// Service manages users, their profile and security settings, and their
// auto-trade settings
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// RegisterUser creates a user with API credentials. Missing key or secret
// are generated; the secret is stored only as a bcrypt hash.
func (s *Service) RegisterUser(req RegisterUserRequest) (*RegisterUserResponse, error) {
	role := req.Role
	if role == "" {
		role = types.RoleUser
	}
	if role != types.RoleUser && role != types.RoleAdmin {
		return nil, ErrInvalidRole
	}

	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = "key_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	secret := req.APISecret
	if secret == "" {
		secret = newSecret()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash API secret: %w", err)
	}

	user := &User{
		UserID:        "USR_" + uuid.New().String(),
		Email:         strings.ToLower(strings.TrimSpace(req.Email)),
		Name:          req.Name,
		Role:          role,
		APIKey:        apiKey,
		APISecretHash: string(hash),
	}
	if err := s.db.CreateUser(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().
		Str("service", "accounts").
		Str("user_id", user.UserID).
		Str("role", user.Role).
		Msg("registered user")

	return &RegisterUserResponse{User: user, APISecret: secret}, nil
}

// EnsureUser registers the user unless one already holds the API key.
// It is used to bootstrap the first admin.
func (s *Service) EnsureUser(req RegisterUserRequest) (*User, error) {
	existing, err := s.db.GetUserByAPIKey(req.APIKey)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	created, err := s.RegisterUser(req)
	if err != nil {
		return nil, err
	}
	return created.User, nil
}

// Authenticate checks an API key and secret pair
func (s *Service) Authenticate(apiKey, apiSecret string) (*User, error) {
	user, err := s.db.GetUserByAPIKey(apiKey)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.APISecretHash), []byte(apiSecret)) != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) GetUser(userID string) (*User, error) {
	return s.db.GetUser(userID)
}

func (s *Service) ListUsers() ([]User, error) {
	return s.db.ListUsers()
}

// UpdateProfile changes the editable profile fields. Empty fields are left
// as they are.
func (s *Service) UpdateProfile(userID string, req UpdateProfileRequest) (*User, error) {
	user, err := s.db.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if req.Email != "" {
		user.Email = strings.ToLower(strings.TrimSpace(req.Email))
	}
	if req.Name != "" {
		user.Name = req.Name
	}
	if err := s.db.UpdateUser(user); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

// RotateSecret replaces the user's API secret. Tokens already issued stay
// valid until they expire.
func (s *Service) RotateSecret(userID string) (*RotateSecretResponse, error) {
	user, err := s.db.GetUser(userID)
	if err != nil {
		return nil, err
	}

	secret := newSecret()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash API secret: %w", err)
	}
	user.APISecretHash = string(hash)
	if err := s.db.UpdateUser(user); err != nil {
		return nil, fmt.Errorf("failed to rotate secret: %w", err)
	}

	log.Info().Str("service", "accounts").Str("user_id", userID).Msg("rotated API secret")

	return &RotateSecretResponse{
		APIKey:    user.APIKey,
		APISecret: secret,
		RotatedAt: time.Now(),
	}, nil
}

func (s *Service) GetAutoTradeSettings(userID string) (*AutoTradeSettings, error) {
	return s.db.GetAutoTradeSettings(userID)
}

// UpdateAutoTradeSettings merges the request into the current settings
func (s *Service) UpdateAutoTradeSettings(userID string, req UpdateAutoTradeRequest) (*AutoTradeSettings, error) {
	if _, err := s.db.GetUser(userID); err != nil {
		return nil, err
	}

	settings, err := s.db.GetAutoTradeSettings(userID)
	if err != nil {
		return nil, err
	}

	if req.Active != nil {
		settings.Active = *req.Active
	}
	if req.Mode != "" {
		if !ValidMode(req.Mode) {
			return nil, ErrInvalidMode
		}
		settings.Mode = req.Mode
	}
	if req.Magnitude != "" {
		if !ValidMagnitude(req.Magnitude) {
			return nil, ErrInvalidMagnitude
		}
		settings.Magnitude = req.Magnitude
	}
	settings.UpdatedAt = time.Now()

	if err := s.db.SaveAutoTradeSettings(settings); err != nil {
		return nil, fmt.Errorf("failed to save auto-trade settings: %w", err)
	}

	log.Info().
		Str("service", "accounts").
		Str("user_id", userID).
		Bool("active", settings.Active).
		Str("mode", settings.Mode).
		Str("magnitude", settings.Magnitude).
		Msg("updated auto-trade settings")

	return settings, nil
}

func ValidMode(mode string) bool {
	switch mode {
	case ModeRandom, ModeAlwaysWin, ModeAlwaysLose:
		return true
	}
	return false
}

func ValidMagnitude(magnitude string) bool {
	switch magnitude {
	case MagnitudeTen, MagnitudeHundred, MagnitudeThousand, MagnitudeMillion, MagnitudeRandom:
		return true
	}
	return false
}

func newSecret() string {
	return strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
}

// GinHandlers contains HTTP handlers for account endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) GetProfileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.service.GetUser(middleware.UserID(c))
		response.Handle(c, user, err)
	}
}

func (h *GinHandlers) UpdateProfileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		user, err := h.service.UpdateProfile(middleware.UserID(c), req)
		response.Handle(c, user, err)
	}
}

func (h *GinHandlers) RotateSecretHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rotated, err := h.service.RotateSecret(middleware.UserID(c))
		response.Handle(c, rotated, err)
	}
}

func (h *GinHandlers) GetAutoTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		settings, err := h.service.GetAutoTradeSettings(middleware.UserID(c))
		response.Handle(c, settings, err)
	}
}

func (h *GinHandlers) UpdateAutoTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateAutoTradeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		settings, err := h.service.UpdateAutoTradeSettings(middleware.UserID(c), req)
		response.Handle(c, settings, err)
	}
}

// RegisterUserHandler is admin only
func (h *GinHandlers) RegisterUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		registered, err := h.service.RegisterUser(req)
		response.Handle(c, registered, err)
	}
}

func (h *GinHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := h.service.ListUsers()
		response.Handle(c, users, err)
	}
}

// AdminUpdateAutoTradeHandler lets an admin change any user's settings
func (h *GinHandlers) AdminUpdateAutoTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateAutoTradeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		settings, err := h.service.UpdateAutoTradeSettings(c.Param("user_id"), req)
		response.Handle(c, settings, err)
	}
}
