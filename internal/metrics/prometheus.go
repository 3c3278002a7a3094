package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TrackedServers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hetzner_web_tracked_servers",
		Help: "Number of servers seen in the most recent traffic snapshot",
	})

	ServerTrafficPercent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hetzner_web_server_traffic_percent",
		Help: "Cycle traffic usage per server as percent of the configured limit",
	}, []string{"server"})

	SnapshotsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hetzner_web_snapshots_total",
		Help: "Total hourly traffic snapshots recorded",
	})

	SnapshotDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hetzner_web_snapshot_duration_seconds",
		Help:    "Time to collect counters and record one snapshot",
		Buckets: prometheus.DefBuckets,
	})

	CheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hetzner_web_check_duration_seconds",
		Help:    "Time to run one traffic limit check across all servers",
		Buckets: prometheus.DefBuckets,
	})

	TrafficAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hetzner_web_traffic_alerts_total",
		Help: "Total traffic threshold alerts sent, by level",
	}, []string{"level"})

	Rebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hetzner_web_rebuilds_total",
		Help: "Total server rebuilds, by result",
	}, []string{"result"})

	DNSUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hetzner_web_dns_updates_total",
		Help: "Total DNS record sync outcomes",
	}, []string{"result"})

	BotCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hetzner_web_bot_commands_total",
		Help: "Total Telegram bot commands handled",
	}, []string{"command"})

	SSEClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hetzner_web_sse_clients",
		Help: "Current number of SSE clients connected",
	})

	HostCPUPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hetzner_web_host_cpu_percent",
		Help: "CPU usage of the watchdog host",
	})

	HostMemoryPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hetzner_web_host_memory_percent",
		Help: "Memory usage of the watchdog host",
	})
)

func SetTrackedServers(count int) {
	if count < 0 {
		count = 0
	}
	TrackedServers.Set(float64(count))
}

func SetServerTrafficPercent(server string, percent float64) {
	label := strings.TrimSpace(server)
	if label == "" {
		label = "unknown"
	}
	if percent < 0 {
		percent = 0
	}
	ServerTrafficPercent.WithLabelValues(label).Set(percent)
}

func DropServerTrafficPercent(server string) {
	label := strings.TrimSpace(server)
	if label == "" {
		return
	}
	ServerTrafficPercent.DeleteLabelValues(label)
}

func IncSnapshotRecorded() {
	SnapshotsRecorded.Inc()
}

func ObserveSnapshotDuration(duration time.Duration) {
	SnapshotDuration.Observe(duration.Seconds())
}

func ObserveCheckDuration(duration time.Duration) {
	CheckDuration.Observe(duration.Seconds())
}

func IncTrafficAlert(level int) {
	TrafficAlerts.WithLabelValues(strconv.Itoa(level)).Inc()
}

func IncRebuild(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	Rebuilds.WithLabelValues(result).Inc()
}

func AddDNSUpdates(updated, skipped, failed int) {
	if updated > 0 {
		DNSUpdates.WithLabelValues("updated").Add(float64(updated))
	}
	if skipped > 0 {
		DNSUpdates.WithLabelValues("skipped").Add(float64(skipped))
	}
	if failed > 0 {
		DNSUpdates.WithLabelValues("failed").Add(float64(failed))
	}
}

func IncBotCommand(command string) {
	label := strings.TrimPrefix(strings.TrimSpace(command), "/")
	if label == "" {
		label = "unknown"
	}
	BotCommands.WithLabelValues(label).Inc()
}

func SetSSEClients(count int) {
	if count < 0 {
		count = 0
	}
	SSEClients.Set(float64(count))
}

func SetHostCPUPercent(percent float64) {
	if percent < 0 {
		percent = 0
	}
	HostCPUPercent.Set(percent)
}

func SetHostMemoryPercent(percent float64) {
	if percent < 0 {
		percent = 0
	}
	HostMemoryPercent.Set(percent)
}
