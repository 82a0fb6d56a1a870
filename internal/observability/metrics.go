package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/obdctl/internal/obd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "obdctl",
			Subsystem: "driver",
			Name:      "runs_total",
			Help:      "Total command runs by outcome.",
		},
		[]string{"command", "cached", "outcome"},
	)
	cycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "obdctl",
			Subsystem: "driver",
			Name:      "cycle_duration_seconds",
			Help:      "Transmit/receive cycle duration in seconds, delay included.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"command"},
	)
	replyBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "obdctl",
			Subsystem: "driver",
			Name:      "reply_bytes",
			Help:      "Cleaned reply length in bytes.",
			Buckets:   prometheus.LinearBuckets(0, 16, 8),
		},
		[]string{"command"},
	)
)

const (
	OutcomeOK             = "ok"
	OutcomeTransportError = "transport_error"
	OutcomeDecodeError    = "decode_error"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(runsTotal, cycleDuration, replyBytes)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

// RecordRun records one Run. Cache hits are counted but their cycle
// duration is not observed again.
func RecordRun(command string, cached bool, outcome string, elapsed time.Duration, replyLen int) {
	RegisterMetrics()
	runsTotal.WithLabelValues(command, strconv.FormatBool(cached), outcome).Inc()
	if cached || outcome == OutcomeTransportError {
		return
	}
	cycleDuration.WithLabelValues(command).Observe(elapsed.Seconds())
	replyBytes.WithLabelValues(command).Observe(float64(replyLen))
}

// RunObserver feeds driver events into the metrics above.
type RunObserver struct{}

func (RunObserver) ObserveRun(ev obd.RunEvent) {
	RecordRun(ev.Command, ev.Cached, outcome(ev), ev.Elapsed, ev.ReplyLen)
}

func outcome(ev obd.RunEvent) string {
	switch {
	case ev.Err == nil:
		return OutcomeOK
	case ev.Stage == obd.StageTransport:
		return OutcomeTransportError
	default:
		return OutcomeDecodeError
	}
}
