package slicescan

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes scanner counters to Prometheus.
//
// A nil *Metrics is valid and records nothing, so sessions built without
// WithMetrics pay only a nil check per event.
type Metrics struct {
	blocksFound      *prometheus.CounterVec
	bytesScanned     prometheus.Counter
	collisions       prometheus.Counter
	corrections      prometheus.Counter
	fragmentsSaved   prometheus.Counter
	fragmentsJoined  prometheus.Counter
	guardSkips       prometheus.Counter
	fileErrors       prometheus.Counter
	fileScanDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		blocksFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slicescan_blocks_found_total",
			Help: "Blocks newly proven present, by match method",
		}, []string{"method"}),
		bytesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slicescan_bytes_scanned_total",
			Help: "Candidate bytes read by the scanner",
		}),
		collisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slicescan_crc_collisions_total",
			Help: "Windows whose CRC matched a block but whose MD5 did not",
		}),
		corrections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slicescan_corrections_total",
			Help: "Blocks recovered by single-byte correction",
		}),
		fragmentsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slicescan_fragments_saved_total",
			Help: "Partial blocks stored for reassembly",
		}),
		fragmentsJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slicescan_fragments_joined_total",
			Help: "Blocks recovered by joining two fragments",
		}),
		guardSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slicescan_guard_skips_total",
			Help: "Degenerate-run skips taken by the sliding scanner",
		}),
		fileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slicescan_file_errors_total",
			Help: "Candidate files abandoned after an I/O error",
		}),
		fileScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "slicescan_file_scan_seconds",
			Help:    "Wall time spent verifying one candidate file",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
	for _, c := range []prometheus.Collector{
		m.blocksFound, m.bytesScanned, m.collisions, m.corrections,
		m.fragmentsSaved, m.fragmentsJoined, m.guardSkips, m.fileErrors,
		m.fileScanDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) found(method Method) {
	if m != nil {
		m.blocksFound.WithLabelValues(method.String()).Inc()
	}
}

func (m *Metrics) scanned(n int) {
	if m != nil && n > 0 {
		m.bytesScanned.Add(float64(n))
	}
}

func (m *Metrics) collision() {
	if m != nil {
		m.collisions.Inc()
	}
}

func (m *Metrics) corrected() {
	if m != nil {
		m.corrections.Inc()
	}
}

func (m *Metrics) fragmentSaved() {
	if m != nil {
		m.fragmentsSaved.Inc()
	}
}

func (m *Metrics) fragmentJoined() {
	if m != nil {
		m.fragmentsJoined.Inc()
	}
}

func (m *Metrics) guardSkip() {
	if m != nil {
		m.guardSkips.Inc()
	}
}

func (m *Metrics) fileError() {
	if m != nil {
		m.fileErrors.Inc()
	}
}

func (m *Metrics) fileDone(seconds float64) {
	if m != nil {
		m.fileScanDuration.Observe(seconds)
	}
}
