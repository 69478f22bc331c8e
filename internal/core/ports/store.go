package ports

import (
	"context"
	"time"

	"github.com/melih/lighthouse-boot/internal/core/domain"
)

// BuildStore persists build records. Get returns domain.ErrBuildNotFound for
// unknown IDs. Implementations must be safe for concurrent use.
type BuildStore interface {
	Save(ctx context.Context, build *domain.Build) error
	Get(ctx context.Context, id string) (*domain.Build, error)
	List(ctx context.Context) ([]*domain.Build, error)
}

// TelemetryRepository reads vehicle telemetry.
type TelemetryRepository interface {
	// Latest returns the newest sample or domain.ErrNoTelemetry.
	Latest(ctx context.Context) (*domain.VehicleSample, error)
	// Since returns samples at or after the given time, oldest first.
	Since(ctx context.Context, since time.Time) ([]domain.VehicleSample, error)
}

// AlertSender delivers low battery alerts to an external service.
type AlertSender interface {
	SendLowBattery(ctx context.Context, alert domain.LowBatteryAlert) error
}
