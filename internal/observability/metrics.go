// Package observability exposes Prometheus counters for discovery,
// handshakes, sessions and transfers.
package observability

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	registerOnce sync.Once

	announcements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pcbond",
			Subsystem: "discovery",
			Name:      "announcements_total",
			Help:      "Presence announcements sent and received.",
		},
		[]string{"direction"},
	)
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pcbond",
			Subsystem: "handshake",
			Name:      "total",
			Help:      "Handshakes by side and result.",
		},
		[]string{"side", "result"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pcbond",
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently open.",
		},
	)
	transfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pcbond",
			Subsystem: "transfer",
			Name:      "total",
			Help:      "Transfers by direction and result.",
		},
		[]string{"direction", "result"},
	)
	transferBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pcbond",
			Subsystem: "transfer",
			Name:      "bytes_total",
			Help:      "Payload bytes moved.",
		},
		[]string{"direction"},
	)
	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pcbond",
			Subsystem: "command",
			Name:      "total",
			Help:      "Commands executed by name and result.",
		},
		[]string{"name", "result"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(announcements, handshakes, sessionsActive, transfers, transferBytes, commands)
	})
}

func RecordAnnounceSent()     { announcements.WithLabelValues("sent").Inc() }
func RecordAnnounceReceived() { announcements.WithLabelValues("received").Inc() }

func RecordHandshake(side, result string) {
	handshakes.WithLabelValues(side, result).Inc()
}

func SessionOpened() { sessionsActive.Inc() }
func SessionClosed() { sessionsActive.Dec() }

func RecordTransfer(direction, result string, bytes int64) {
	transfers.WithLabelValues(direction, result).Inc()
	if bytes > 0 {
		transferBytes.WithLabelValues(direction).Add(float64(bytes))
	}
}

func RecordCommand(name string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	commands.WithLabelValues(name, result).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	RegisterMetrics()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("component", "metrics").Str("addr", addr).Msg("metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
