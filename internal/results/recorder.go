// Package results archives finished matches. Live session state is never
// persisted; only the outcome row written at match end.
package results

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/cardclash/battle-backend/internal/match"
)

// MatchResult is the archive row for one finished match.
type MatchResult struct {
	ID        uint   `gorm:"primaryKey"`
	Code      string `gorm:"index"`
	Winner    string
	Reason    string
	Turns     int
	StartedAt time.Time
	EndedAt   time.Time
	CreatedAt time.Time
}

// Store is the gorm-backed recorder.
type Store struct {
	db *gorm.DB
}

func NewStore(databaseURL string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open results database: %w", err)
	}
	if err := db.AutoMigrate(&MatchResult{}); err != nil {
		return nil, fmt.Errorf("migrate results schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) RecordResult(ctx context.Context, res match.Result) error {
	row := MatchResult{
		Code:      res.Code,
		Winner:    string(res.Winner),
		Reason:    string(res.Reason),
		Turns:     res.Turns,
		StartedAt: res.StartedAt,
		EndedAt:   res.EndedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert match result: %w", err)
	}
	return nil
}

// Noop is used when no DATABASE_URL is configured.
type Noop struct{}

func (Noop) RecordResult(context.Context, match.Result) error { return nil }
