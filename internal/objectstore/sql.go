package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"photoshare/internal/apperr"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Blob is the single table backing SQLBackend. Each row is one document.
type Blob struct {
	Container   string `gorm:"primaryKey;type:varchar(64)"`
	Key         string `gorm:"primaryKey;column:blob_key;type:varchar(255)"`
	Payload     []byte
	ContentType string `gorm:"type:varchar(128)"`
	Version     string `gorm:"type:varchar(36);not null"`
	UpdatedAt   time.Time
}

// TableName pins the table name regardless of naming strategy.
func (Blob) TableName() string {
	return "blobs"
}

// SQLBackend is a GORM implementation of Backend. Conditional writes are a
// single UPDATE filtered on the expected version, or an INSERT that does
// nothing on a primary-key conflict.
type SQLBackend struct {
	db *gorm.DB
}

// OpenSQL opens driver ("sqlite" or "postgres") at dsn and migrates the blob table.
func OpenSQL(driver, dsn string) (*SQLBackend, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == "sqlite" {
		// sqlite allows a single writer; serialize through one connection
		// instead of surfacing "database is locked" as storage errors.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return NewSQLBackend(db)
}

// NewSQLBackend creates a new SQLBackend over an open connection.
func NewSQLBackend(db *gorm.DB) (*SQLBackend, error) {
	if err := db.AutoMigrate(&Blob{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate blob table: %w", err)
	}
	return &SQLBackend{db: db}, nil
}

// EnsureContainer is a no-op; containers are a column of the blob table.
func (b *SQLBackend) EnsureContainer(context.Context, string) error {
	return nil
}

// Get retrieves a blob by container and key.
func (b *SQLBackend) Get(ctx context.Context, container, key string) (*Object, error) {
	var blob Blob
	err := b.db.WithContext(ctx).First(&blob, "container = ? AND blob_key = ?", container, key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("blob %s/%s: %w", container, key, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get blob %s/%s: %w", container, key, err)
	}
	return &Object{
		Key:         blob.Key,
		Data:        blob.Payload,
		ContentType: blob.ContentType,
		Version:     Version(blob.Version),
	}, nil
}

// Put writes a blob, honouring opts' precondition.
func (b *SQLBackend) Put(ctx context.Context, container, key string, data []byte, opts PutOptions) (Version, error) {
	blob := Blob{
		Container:   container,
		Key:         key,
		Payload:     data,
		ContentType: opts.ContentType,
		Version:     uuid.New().String(),
		UpdatedAt:   time.Now(),
	}
	db := b.db.WithContext(ctx)

	switch {
	case !opts.Conditional:
		err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&blob).Error
		if err != nil {
			return "", fmt.Errorf("failed to save blob %s/%s: %w", container, key, err)
		}

	case opts.Expected == Absent:
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&blob)
		if res.Error != nil {
			return "", fmt.Errorf("failed to create blob %s/%s: %w", container, key, res.Error)
		}
		if res.RowsAffected == 0 {
			return "", ErrVersionConflict
		}

	default:
		res := db.Model(&Blob{}).
			Where("container = ? AND blob_key = ? AND version = ?", container, key, string(opts.Expected)).
			Updates(map[string]any{
				"payload":      blob.Payload,
				"content_type": blob.ContentType,
				"version":      blob.Version,
				"updated_at":   blob.UpdatedAt,
			})
		if res.Error != nil {
			return "", fmt.Errorf("failed to update blob %s/%s: %w", container, key, res.Error)
		}
		if res.RowsAffected == 0 {
			// Either the version moved on or the row is gone; the next read tells which.
			return "", ErrVersionConflict
		}
	}
	return Version(blob.Version), nil
}

// Delete deletes a blob by container and key.
func (b *SQLBackend) Delete(ctx context.Context, container, key string) error {
	res := b.db.WithContext(ctx).Delete(&Blob{}, "container = ? AND blob_key = ?", container, key)
	if res.Error != nil {
		return fmt.Errorf("failed to delete blob %s/%s: %w", container, key, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("blob %s/%s: %w", container, key, apperr.ErrNotFound)
	}
	return nil
}

// List plucks the container's keys and loads each row as it is reached.
func (b *SQLBackend) List(ctx context.Context, container string) ObjectIterator {
	var keys []string
	err := b.db.WithContext(ctx).Model(&Blob{}).
		Where("container = ?", container).
		Order("blob_key").
		Pluck("blob_key", &keys).Error
	if err != nil {
		err = fmt.Errorf("failed to list blobs in %s: %w", container, err)
	}
	return newKeySnapshotIterator(b, container, keys, err)
}

// Close closes the underlying connection pool.
func (b *SQLBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
