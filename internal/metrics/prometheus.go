package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "tracescope"

// Decoder counts engine outcomes per decoder. It satisfies dex.Observer.
type Decoder struct {
	registry *prometheus.Registry
	claims   *prometheus.CounterVec
	failures *prometheus.CounterVec
	partials *prometheus.CounterVec
	traces   prometheus.Counter
}

// NewDecoder registers the decoder counters on a fresh registry.
func NewDecoder() *Decoder {
	d := &Decoder{
		registry: prometheus.NewRegistry(),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Trace nodes claimed, by decoder.",
		}, []string{"decoder"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Trace nodes whose selector matched but whose payload did not decode, by decoder.",
		}, []string{"decoder"}),
		partials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_actions_total",
			Help:      "Claimed actions with a structural mismatch, by decoder.",
		}, []string{"decoder"}),
		traces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traces_total",
			Help:      "Traces decoded.",
		}),
	}
	d.registry.MustRegister(d.claims, d.failures, d.partials, d.traces)
	return d
}

func (d *Decoder) Claimed(decoder string, partial bool) {
	d.claims.WithLabelValues(decoder).Inc()
	if partial {
		d.partials.WithLabelValues(decoder).Inc()
	}
}

func (d *Decoder) DecodeFailed(decoder string) {
	d.failures.WithLabelValues(decoder).Inc()
}

func (d *Decoder) TraceDecoded() {
	d.traces.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (d *Decoder) Handler() http.Handler {
	return promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (d *Decoder) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
