package domain

import (
	"errors"
	"time"
)

var ErrNoTelemetry = errors.New("no telemetry available")

// VehicleSample is one row of vehicle telemetry.
type VehicleSample struct {
	Timestamp          time.Time `json:"timestamp" gorm:"column:timestamp;primaryKey"`
	BatteryLevel       float64   `json:"battery_level" gorm:"column:battery_level"`
	BatterySOC         float64   `json:"battery_soc" gorm:"column:battery_soc"`
	BatteryVoltage     float64   `json:"battery_voltage" gorm:"column:battery_voltage"`
	BatteryCurrent     float64   `json:"battery_current" gorm:"column:battery_current"`
	BatterySOH         float64   `json:"battery_soh" gorm:"column:battery_soh"`
	BatteryTemperature float64   `json:"battery_temperature" gorm:"column:battery_temperature"`
	Speed              float64   `json:"speed" gorm:"column:speed"`
	Latitude           float64   `json:"latitude" gorm:"column:latitude"`
	Longitude          float64   `json:"longitude" gorm:"column:longitude"`
	Altitude           float64   `json:"altitude" gorm:"column:altitude"`
	Direction          float64   `json:"direction" gorm:"column:direction"`
}

func (VehicleSample) TableName() string {
	return "vehicle_data"
}

// LowBatteryAlert is the payload posted to the alert service.
type LowBatteryAlert struct {
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
	Direction         float64   `json:"direction"`
	BatteryPercentage float64   `json:"battery_percentage"`
	Timestamp         time.Time `json:"timestamp"`
}

// AlertFor builds the alert payload for s, stamped at now.
func AlertFor(s VehicleSample, now time.Time) LowBatteryAlert {
	return LowBatteryAlert{
		Latitude:          s.Latitude,
		Longitude:         s.Longitude,
		Direction:         s.Direction,
		BatteryPercentage: s.BatteryLevel,
		Timestamp:         now,
	}
}
