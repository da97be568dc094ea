package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callplane_commands_total",
			Help: "Host commands handled, by type and result code",
		},
		[]string{"cmd", "code"},
	)

	commandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "callplane_command_duration_seconds",
			Help:    "Time from command receipt to correlated response",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"cmd"},
	)

	pendingCommands = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callplane_pending_commands",
			Help: "Correlated commands awaiting a response",
		},
	)

	commandTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "callplane_command_timeouts_total",
			Help: "Correlated commands that expired without a response",
		},
	)

	hostLinks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callplane_host_links",
			Help: "Attached host command channels",
		},
	)

	sessionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callplane_session_state",
			Help: "Current session state (0 idle .. 5 leaving)",
		},
	)

	activeDevices = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "callplane_active_devices",
			Help: "Open devices per class",
		},
		[]string{"class"},
	)

	livenessExpiries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "callplane_liveness_expiries_total",
			Help: "Teardowns forced by host silence",
		},
	)

	activeRecordings = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callplane_active_recordings",
			Help: "Recording tasks currently writing",
		},
	)
)

func RecordCommand(cmd string, code int) {
	commandsTotal.WithLabelValues(cmd, strconv.Itoa(code)).Inc()
}

func ObserveCommandLatency(cmd string, d time.Duration) {
	commandDuration.WithLabelValues(cmd).Observe(d.Seconds())
}

func SetPendingCommands(n int) {
	pendingCommands.Set(float64(n))
}

func IncrementCommandTimeouts() {
	commandTimeouts.Inc()
}

func IncrementHostLinks() {
	hostLinks.Inc()
}

func DecrementHostLinks() {
	hostLinks.Dec()
}

func SetSessionState(state int) {
	sessionState.Set(float64(state))
}

func SetActiveDevices(class string, n int) {
	activeDevices.WithLabelValues(class).Set(float64(n))
}

func IncrementLivenessExpiries() {
	livenessExpiries.Inc()
}

func SetActiveRecordings(n int) {
	activeRecordings.Set(float64(n))
}
