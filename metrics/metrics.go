package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Monitoring loop
	MonitorCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_monitor_cycles_total",
			Help: "Total number of monitoring cycles by outcome",
		},
		[]string{"status"},
	)
	MonitorCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alert_monitor_cycle_duration_seconds",
			Help:    "Duration of monitoring cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	MonitorSkippedGroups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_monitor_skipped_groups_total",
			Help: "Symbol groups skipped because no price could be fetched",
		},
		[]string{"asset_class"},
	)
	AlertsTriggeredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_triggered_total",
			Help: "Total number of alerts transitioned to triggered",
		},
		[]string{"asset_class", "kind"},
	)

	// Price providers
	PriceProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_provider_requests_total",
			Help: "Total number of upstream price requests",
		},
		[]string{"provider", "status"},
	)
	PriceProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "price_provider_request_duration_seconds",
			Help: "Duration of upstream price requests in seconds",
		},
		[]string{"provider"},
	)
	PriceCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_cache_lookups_total",
			Help: "Price cache lookups by result",
		},
		[]string{"result"},
	)

	// Realtime hub
	HubConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_hub_connections",
			Help: "Number of live websocket connections",
		},
	)
	HubActiveUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_hub_active_users",
			Help: "Number of users with at least one live connection",
		},
	)
	HubWatchedSymbols = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_hub_watched_symbols",
			Help: "Number of symbols with at least one watcher",
		},
	)
	HubDeliveryFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_hub_delivery_failures_total",
			Help: "Sends that failed and removed the connection",
		},
	)

	// Notifications
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_notifications_total",
			Help: "Alert notifications by channel and outcome",
		},
		[]string{"channel", "status"},
	)
)

func Init() {
	prometheus.MustRegister(MonitorCyclesTotal)
	prometheus.MustRegister(MonitorCycleDuration)
	prometheus.MustRegister(MonitorSkippedGroups)
	prometheus.MustRegister(AlertsTriggeredTotal)

	prometheus.MustRegister(PriceProviderRequestsTotal)
	prometheus.MustRegister(PriceProviderRequestDuration)
	prometheus.MustRegister(PriceCacheLookups)

	prometheus.MustRegister(HubConnections)
	prometheus.MustRegister(HubActiveUsers)
	prometheus.MustRegister(HubWatchedSymbols)
	prometheus.MustRegister(HubDeliveryFailures)

	prometheus.MustRegister(NotificationsTotal)
}
