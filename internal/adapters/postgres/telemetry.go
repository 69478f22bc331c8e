package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/melih/lighthouse-boot/internal/core/domain"
)

// Open connects to the database at dsn.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// TelemetryRepository reads vehicle_data rows.
type TelemetryRepository struct {
	db *gorm.DB
}

func NewTelemetryRepository(db *gorm.DB) *TelemetryRepository {
	return &TelemetryRepository{db: db}
}

// Latest returns the newest sample, or domain.ErrNoTelemetry on an empty table.
func (r *TelemetryRepository) Latest(ctx context.Context) (*domain.VehicleSample, error) {
	var rows []domain.VehicleSample
	err := r.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query latest telemetry: %w", err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrNoTelemetry
	}
	return &rows[0], nil
}

// Since returns samples at or after since, oldest first.
func (r *TelemetryRepository) Since(ctx context.Context, since time.Time) ([]domain.VehicleSample, error) {
	var rows []domain.VehicleSample
	err := r.db.WithContext(ctx).
		Where("timestamp >= ?", since).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry history: %w", err)
	}
	return rows, nil
}
