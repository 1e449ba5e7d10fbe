package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smsbot_updates_total",
		Help: "Inbound chat updates by kind and outcome",
	}, []string{"kind", "outcome"})

	GateDenialsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smsbot_gate_denials_total",
		Help: "Access gate denials, including failed membership checks",
	})

	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smsbot_orders_total",
		Help: "Orders created by provider and country",
	}, []string{"provider", "country"})

	NotificationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smsbot_notification_failures_total",
		Help: "Best-effort notifications that could not be delivered",
	}, []string{"channel"})

	HandleLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "smsbot_handle_latency_seconds",
		Help:    "Time spent handling one chat event",
		Buckets: prometheus.DefBuckets,
	})
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
