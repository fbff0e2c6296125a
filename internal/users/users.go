package users

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/ksred/minimarbles/internal/metrics"
	"github.com/ksred/minimarbles/internal/types"
	"github.com/ksred/minimarbles/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const maxNameLength = 100

var (
	ErrNameRequired    = fmt.Errorf("%w: name is required", types.ErrValidation)
	ErrNameTooLong     = fmt.Errorf("%w: name must be at most %d characters", types.ErrValidation, maxNameLength)
	ErrNegativeBalance = fmt.Errorf("%w: balance must not be negative", types.ErrValidation)
	ErrUserNotFound    = fmt.Errorf("%w: user", types.ErrNotFound)
)

// Service handles user registration and lookups
type Service struct {
	db *Database
}

// NewService creates a new user service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// CreateUser registers a user with the default starting balance
func (s *Service) CreateUser(name string) (*types.User, error) {
	return s.CreateUserWithBalance(name, types.DefaultBalance)
}

// CreateUserWithBalance registers a user with an explicit starting balance
func (s *Service) CreateUserWithBalance(name string, balance int64) (*types.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, ErrNameTooLong
	}
	if balance < 0 {
		return nil, ErrNegativeBalance
	}

	user := &types.User{
		Name:    name,
		Balance: balance,
	}
	if err := s.db.CreateUser(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	metrics.UsersCreated.Inc()
	log.Info().
		Str("service", "users").
		Str("user_id", user.ID).
		Int64("balance", user.Balance).
		Msg("user created")

	return user, nil
}

// GetUser retrieves a user by id
func (s *Service) GetUser(userID string) (*types.User, error) {
	user, err := s.db.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ListUsers returns every user, oldest first
func (s *Service) ListUsers() ([]types.User, error) {
	return s.db.ListUsers()
}

// TotalBalance returns the sum of all balances. Settlement never changes it.
func (s *Service) TotalBalance() (int64, error) {
	return s.db.TotalBalance()
}

// GinHandlers contains HTTP handlers for user endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for user endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

type createUserRequest struct {
	Name    string `json:"name" binding:"required"`
	Balance *int64 `json:"balance"`
}

// CreateUserHandler handles POST /users. Balance is optional and defaults to 1000.
func (h *GinHandlers) CreateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request createUserRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		balance := types.DefaultBalance
		if request.Balance != nil {
			balance = *request.Balance
		}

		user, err := h.service.CreateUserWithBalance(request.Name, balance)
		response.Handle(c, user, err)
	}
}

// ListUsersHandler handles GET /users
func (h *GinHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := h.service.ListUsers()
		response.Handle(c, users, err)
	}
}

// GetUserHandler handles GET /users/:user_id
func (h *GinHandlers) GetUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.service.GetUser(c.Param("user_id"))
		response.Handle(c, user, err)
	}
}
