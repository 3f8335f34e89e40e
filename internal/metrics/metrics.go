// Package metrics exposes Prometheus counters for the watcher pipeline.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/lpwatch/internal/logger"
)

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Instructions        *prometheus.CounterVec
	GateDecisions       *prometheus.CounterVec
	MetadataLookups     *prometheus.CounterVec
	Notifications       *prometheus.CounterVec
	CrawlerPolls        prometheus.Counter
	CrawlerTransactions prometheus.Counter
	ProcessingErrors    prometheus.Counter
}

// New registers the collectors under namespace.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Instructions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instructions_total",
			Help:      "Instructions classified, by variant.",
		}, []string{"instruction"}),
		GateDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Relevance gate outcomes, by decision.",
		}, []string{"decision"}),
		MetadataLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_lookups_total",
			Help:      "Token metadata resolutions, by result.",
		}, []string{"result"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries, by result.",
		}, []string{"result"}),
		CrawlerPolls: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawler_polls_total",
			Help:      "Signature polls issued by the crawler.",
		}),
		CrawlerTransactions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawler_transactions_total",
			Help:      "Transactions fetched by the crawler.",
		}),
		ProcessingErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processing_errors_total",
			Help:      "Instruction units whose processing returned an error.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs the /metrics endpoint on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown: %v", err)
		}
	}()

	logger.Info("Serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
