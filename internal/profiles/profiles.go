package profiles

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var ErrUnknownUser = errors.New("unknown user")

// Resolver looks up the display name for a user id. The lobby treats a miss
// as fatal for that player's join only.
type Resolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

type User struct {
	ID          string `gorm:"primaryKey;column:id"`
	DisplayName string `gorm:"column:display_name"`
}

func (User) TableName() string { return "users" }

// Store is the Postgres-backed Resolver.
type Store struct {
	db *gorm.DB
}

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open profile store: %w", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, fmt.Errorf("migrate profile store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) DisplayName(ctx context.Context, userID string) (string, error) {
	var u User
	err := s.db.WithContext(ctx).First(&u, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%s: %w", userID, ErrUnknownUser)
	}
	if err != nil {
		return "", err
	}
	return u.DisplayName, nil
}
