package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidPIN indicates the supplied PIN did not match the stored hash.
var ErrInvalidPIN = errors.New("invalid pin")

// Service manages account holders and their step-up credentials.
type Service struct {
	repo Repository
}

// NewService builds an identity service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RegisterInput captures data required to register an account holder.
type RegisterInput struct {
	Phone string
	PIN   string
}

// Register creates a user with a bcrypt-hashed step-up PIN.
func (s *Service) Register(ctx context.Context, input RegisterInput) (User, error) {
	if len(input.PIN) < 4 {
		return User{}, errors.New("pin must be at least 4 digits")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.PIN), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user := User{
		ID:            uuid.NewString(),
		Phone:         input.Phone,
		PINHash:       hash,
		StepUpEnabled: true,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Get fetches a user by identifier.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// VerifyPIN proves fresh user intent ahead of a money-moving operation.
func (s *Service) VerifyPIN(ctx context.Context, userID, pin string) (User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PINHash, []byte(pin)); err != nil {
		return User{}, ErrInvalidPIN
	}
	return user, nil
}
