package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Metrics 是 resguard 对外暴露的 Prometheus 指标
type Metrics struct {
	registry *prometheus.Registry

	Cycles           prometheus.Counter
	CollectionErrors *prometheus.CounterVec
	Actions          *prometheus.CounterVec
	Tracked          prometheus.Gauge
	CycleDuration    prometheus.Histogram
	GroupsReaped     prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resguard_cycles_total",
			Help: "Number of completed polling cycles.",
		}),
		CollectionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resguard_collection_errors_total",
			Help: "Number of skipped cycles by failing collection stage.",
		}, []string{"stage"}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resguard_actions_total",
			Help: "Number of fired actions by action type and outcome.",
		}, []string{"action", "outcome"}),
		Tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "resguard_tracked_violations",
			Help: "Number of (rule, process) pairs currently in violation.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "resguard_cycle_duration_seconds",
			Help:    "Duration of a polling cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		GroupsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resguard_cgroups_reaped_total",
			Help: "Number of cgroups removed after their process exited.",
		}),
	}
	m.registry.MustRegister(m.Cycles, m.CollectionErrors, m.Actions, m.Tracked, m.CycleDuration, m.GroupsReaped)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Serve 在 addr 上提供 /metrics，直到 ctx 被取消
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infof("serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
