package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighthouse_builds_total",
			Help: "Total number of finished image builds",
		},
		[]string{"state"},
	)

	BuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lighthouse_build_duration_seconds",
			Help:    "Time taken to build an image from source",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	ContainerStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighthouse_container_starts_total",
			Help: "Total number of container start attempts",
		},
		[]string{"result"},
	)

	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighthouse_low_battery_alerts_total",
			Help: "Total number of low battery alerts posted",
		},
		[]string{"result"},
	)

	MonitorRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighthouse_monitor_refreshes_total",
			Help: "Total number of dashboard telemetry refreshes",
		},
		[]string{"result"},
	)

	BatteryLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lighthouse_vehicle_battery_level_percent",
			Help: "Battery level from the latest telemetry sample",
		},
	)
)
