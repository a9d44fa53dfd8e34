// Package authpw provides email/password authentication for profiles.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"slatework/api/internal/rbac"
	"slatework/api/internal/store"
	"slatework/api/internal/util"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ProfileStore defines the storage interface for auth
type ProfileStore interface {
	GetProfileByEmail(ctx context.Context, email string) (store.Profile, error)
	CreateProfile(ctx context.Context, profile store.Profile) error
}

type Service struct {
	store ProfileStore
}

func NewService(store ProfileStore) *Service {
	return &Service{store: store}
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Email    string
	Password string
	FullName string
	Role     string
}

// SignUp creates a new profile with a bcrypt-hashed password.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.Profile, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" || strings.TrimSpace(req.FullName) == "" {
		return store.Profile{}, errors.New("email, password, and full name are required")
	}
	if len(req.Password) < 8 {
		return store.Profile{}, errors.New("password must be at least 8 characters")
	}

	if _, err := s.store.GetProfileByEmail(ctx, email); err == nil {
		return store.Profile{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.Profile{}, fmt.Errorf("hash password: %w", err)
	}

	// New accounts default to member; viewer is reserved for explicit grants.
	role := rbac.Normalize(req.Role)
	if strings.TrimSpace(req.Role) == "" {
		role = rbac.RoleMember
	}

	profile := store.Profile{
		ID:           util.NewID("usr"),
		Email:        email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FullName),
		Initials:     Initials(req.FullName),
		Role:         string(role),
	}
	if err := s.store.CreateProfile(ctx, profile); err != nil {
		return store.Profile{}, fmt.Errorf("create profile: %w", err)
	}
	return profile, nil
}

// SignIn authenticates a profile by email and password.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.Profile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return store.Profile{}, ErrInvalidCredentials
	}

	profile, err := s.store.GetProfileByEmail(ctx, email)
	if err != nil {
		return store.Profile{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		return store.Profile{}, ErrInvalidCredentials
	}
	return profile, nil
}

// Initials derives up to two uppercase initials from a full name.
func Initials(fullName string) string {
	fields := strings.Fields(fullName)
	switch len(fields) {
	case 0:
		return ""
	case 1:
		return strings.ToUpper(firstRune(fields[0]))
	default:
		return strings.ToUpper(firstRune(fields[0]) + firstRune(fields[len(fields)-1]))
	}
}

func firstRune(s string) string {
	r, _ := utf8.DecodeRuneInString(s)
	return string(r)
}
