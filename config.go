package flowdag

import (
	"log/slog"

	"github.com/flowdag/flowdag/assets"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
)

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger for the pipeline and its nodes.
var WithLogger = func(log *slog.Logger) Option {
	return func(p *Pipeline) {
		p.log = log
	}
}

// WithLogr adapts a logr.Logger into the pipeline's slog-based logging.
var WithLogr = func(log logr.Logger) Option {
	return func(p *Pipeline) {
		p.log = slog.New(logr.ToSlogHandler(log))
	}
}

// WithMetrics registers the pipeline's Prometheus collectors with reg and
// enables queue/port instrumentation. Registration errors surface on the
// first Start.
var WithMetrics = func(reg prometheus.Registerer) Option {
	return func(p *Pipeline) {
		m, err := newMetrics(reg)
		if err != nil {
			// Typically a duplicate registration; pipelines sharing one
			// registry must use separate ones.
			panic("flowdag: metrics registration failed: " + err.Error())
		}
		p.metrics = m
	}
}

// WithAssets sets the asset manager serving LoadResource calls.
var WithAssets = func(m *assets.Manager) Option {
	return func(p *Pipeline) {
		p.assets = m
	}
}

// NullWriter is a writer that discards all data
type NullWriter struct{}

func (NullWriter) Write([]byte) (int, error) { return 0, nil }

// NullLogger creates a logger that discards all output
func NullLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(NullWriter{}, nil))
}
