// Package store persists generated content records through GORM, backed by
// postgres in production and in-memory sqlite in tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/studyhive/contentgen/content"
)

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = errors.New("record not found")

// Config selects the database backend.
type Config struct {
	// Driver is "postgres" or "sqlite".
	Driver string `yaml:"driver"`
	// DSN is the driver-specific connection string. For sqlite an empty DSN
	// means an in-memory database.
	DSN string `yaml:"dsn"`
}

// recordRow is the persisted shape of a content.Record.
type recordRow struct {
	ID         string `gorm:"primaryKey"`
	Kind       string `gorm:"index:idx_kind_hash"`
	Topic      string
	PromptHash string `gorm:"index:idx_kind_hash"`
	Payload    []byte
	CreatedAt  time.Time
}

func (recordRow) TableName() string { return "content_records" }

// Store wraps the database handle.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects per config and migrates the schema.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	logger.Info("record store ready", zap.String("driver", cfg.Driver))

	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "store")),
	}, nil
}

// Save persists one record.
func (s *Store) Save(ctx context.Context, rec *content.Record) error {
	row := recordRow{
		ID:         rec.ID,
		Kind:       string(rec.Kind),
		Topic:      rec.Topic,
		PromptHash: rec.PromptHash,
		Payload:    rec.Payload,
		CreatedAt:  rec.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.logger.Error("save record failed", zap.String("id", rec.ID), zap.Error(err))
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// FindByPromptHash returns the newest record for a kind+prompt pair.
func (s *Store) FindByPromptHash(ctx context.Context, kind content.Kind, hash string) (*content.Record, error) {
	var row recordRow
	err := s.db.WithContext(ctx).
		Where("kind = ? AND prompt_hash = ?", string(kind), hash).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find record: %w", err)
	}

	return &content.Record{
		ID:         row.ID,
		Kind:       content.Kind(row.Kind),
		Topic:      row.Topic,
		PromptHash: row.PromptHash,
		Payload:    row.Payload,
		CreatedAt:  row.CreatedAt,
	}, nil
}

// Get returns a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*content.Record, error) {
	var row recordRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}

	return &content.Record{
		ID:         row.ID,
		Kind:       content.Kind(row.Kind),
		Topic:      row.Topic,
		PromptHash: row.PromptHash,
		Payload:    row.Payload,
		CreatedAt:  row.CreatedAt,
	}, nil
}
