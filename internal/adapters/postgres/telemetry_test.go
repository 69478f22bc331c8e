package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/melih/lighthouse-boot/internal/core/domain"
)

// openTestDB connects to LIGHTHOUSE_TEST_DATABASE_URL and gives the test an
// empty vehicle_data table.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("LIGHTHOUSE_TEST_DATABASE_URL")
	if testing.Short() || dsn == "" {
		t.Skip("set LIGHTHOUSE_TEST_DATABASE_URL to run against postgres")
	}

	db, err := Open(dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrator().DropTable(&domain.VehicleSample{}))
	require.NoError(t, db.AutoMigrate(&domain.VehicleSample{}))
	t.Cleanup(func() {
		_ = db.Migrator().DropTable(&domain.VehicleSample{})
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestTelemetryRepository_Empty(t *testing.T) {
	repo := NewTelemetryRepository(openTestDB(t))

	_, err := repo.Latest(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoTelemetry)

	rows, err := repo.Since(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTelemetryRepository_LatestAndSince(t *testing.T) {
	db := openTestDB(t)
	repo := NewTelemetryRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	samples := []domain.VehicleSample{
		{Timestamp: now.Add(-2 * time.Hour), BatteryLevel: 90},
		{Timestamp: now.Add(-30 * time.Minute), BatteryLevel: 60},
		{Timestamp: now.Add(-time.Minute), BatteryLevel: 18},
	}
	require.NoError(t, db.Create(&samples).Error)

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 18.0, latest.BatteryLevel)

	rows, err := repo.Since(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 60.0, rows[0].BatteryLevel)
	assert.Equal(t, 18.0, rows[1].BatteryLevel)
}
