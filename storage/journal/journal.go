// Package journal persists every settlement attempt made by the coordinator so
// operators can reconstruct what was closed, submitted and executed per pool.
package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Outcome classifies how an attempt ended.
type Outcome string

const (
	OutcomeConfirmed Outcome = "CONFIRMED"
	OutcomeRejected  Outcome = "REJECTED"
	OutcomePending   Outcome = "PENDING"
	OutcomeFailed    Outcome = "FAILED"
)

// Attempt is one ledger write issued for a pool epoch.
type Attempt struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	PoolID       string    `gorm:"index:idx_attempt_pool_epoch"`
	EpochID      uint64    `gorm:"index:idx_attempt_pool_epoch"`
	Phase        string
	Action       string  `gorm:"index"`
	Outcome      Outcome `gorm:"index"`
	TxHash       string
	BlockNumber  uint64
	SeniorRedeem string
	JuniorRedeem string
	JuniorSupply string
	SeniorSupply string
	Code         *int64
	Error        string
	CreatedAt    time.Time `gorm:"index"`
}

// BeforeCreate assigns an id when the caller did not.
func (a *Attempt) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Journal records attempts in a SQL database.
type Journal struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to the DSN. postgres:// and postgresql:// URLs use the
// Postgres driver; everything else is treated as a SQLite DSN.
func Open(dsn string) (*Journal, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("journal: dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("journal: db required")
	}
	if err := db.AutoMigrate(&Attempt{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Record stores the attempt, stamping CreatedAt when unset.
func (j *Journal) Record(ctx context.Context, attempt Attempt) error {
	if j == nil {
		return nil
	}
	if strings.TrimSpace(attempt.PoolID) == "" {
		return fmt.Errorf("journal: pool id required")
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = j.now().UTC()
	}
	if err := j.db.WithContext(ctx).Create(&attempt).Error; err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// Recent returns up to limit attempts for the pool, newest first.
func (j *Journal) Recent(ctx context.Context, poolID string, limit int) ([]Attempt, error) {
	if j == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	var attempts []Attempt
	err := j.db.WithContext(ctx).
		Where("pool_id = ?", poolID).
		Order("created_at DESC").
		Limit(limit).
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	return attempts, nil
}

// LastConfirmed returns the newest confirmed attempt of the action for the
// pool epoch.
func (j *Journal) LastConfirmed(ctx context.Context, poolID string, epochID uint64, action string) (Attempt, bool, error) {
	if j == nil {
		return Attempt{}, false, nil
	}
	var attempt Attempt
	err := j.db.WithContext(ctx).
		Where("pool_id = ? AND epoch_id = ? AND action = ? AND outcome = ?", poolID, epochID, action, OutcomeConfirmed).
		Order("created_at DESC").
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Attempt{}, false, nil
	}
	if err != nil {
		return Attempt{}, false, fmt.Errorf("journal: last confirmed: %w", err)
	}
	return attempt, true, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
