// Package store persists user accounts in Postgres via gorm. Room state is
// deliberately not persisted; rooms live and die with the process.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/valeofeternity/vale-rooms/pkg/contract"
)

var (
	ErrUsernameTaken      = errors.New("store: username already taken")
	ErrInvalidCredentials = errors.New("store: invalid username or password")
)

// User is the persisted account record.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username     string    `gorm:"uniqueIndex;not null"`
	Email        string    `gorm:"not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Store struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the users table.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Create registers a new account and returns its identity.
func (s *Store) Create(ctx context.Context, username, email, password string) (contract.Identity, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return contract.Identity{}, fmt.Errorf("store: lookup: %w", err)
	}
	if count > 0 {
		return contract.Identity{}, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return contract.Identity{}, fmt.Errorf("store: hash password: %w", err)
	}

	u := User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		return contract.Identity{}, fmt.Errorf("store: create user: %w", err)
	}
	return contract.Identity{UserID: u.ID.String(), Username: u.Username}, nil
}

// Authenticate checks username/password and returns the identity.
// Unknown username and wrong password are indistinguishable to the caller.
func (s *Store) Authenticate(ctx context.Context, username, password string) (contract.Identity, error) {
	var u User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return contract.Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return contract.Identity{}, fmt.Errorf("store: lookup: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return contract.Identity{}, ErrInvalidCredentials
	}
	return contract.Identity{UserID: u.ID.String(), Username: u.Username}, nil
}
