package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vehicle-control/internal/logger"
)

var (
	TopicPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vehicle_control_topic_publishes_total",
			Help: "Total number of publishes per bus topic",
		},
		[]string{"topic"},
	)

	LoopCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vehicle_control_loop_cycles_total",
			Help: "Total number of control loop cycles per node",
		},
		[]string{"node"},
	)

	LoopTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vehicle_control_loop_timeouts_total",
			Help: "Total number of poll timeouts per node",
		},
		[]string{"node"},
	)

	FailSafes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vehicle_control_failsafe_total",
			Help: "Total number of cycles forced to the safe output",
		},
		[]string{"node", "reason"},
	)

	Armed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vehicle_control_armed",
			Help: "1 when the FSM reports armed",
		},
	)

	Mode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vehicle_control_mode",
			Help: "Current FSM mode (0=unknown, 1=manual, 2=auto, 3=cmd_vel)",
		},
	)

	ArmRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vehicle_control_arm_rejections_total",
			Help: "Total number of rejected arm requests",
		},
		[]string{"reason"},
	)

	SyncDelta = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vehicle_control_sim_delta_seconds",
			Help: "Last simulated time minus board time",
		},
	)

	SyncBuffered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vehicle_control_sim_buffered",
			Help: "Sensor updates waiting for the simulated clock",
		},
	)

	SyncDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vehicle_control_sim_dropped_total",
			Help: "Buffered sensor updates dropped because the buffer was full",
		},
	)

	BridgeDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vehicle_control_bridge_dropped_total",
			Help: "Bridge messages dropped because they failed to encode or decode",
		},
		[]string{"key"},
	)
)

// Serve exposes the default registry on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, l *logger.Logger) error {
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
		if err := srv.Shutdown(shutdownCtx); err != nil {
			l.Warnf("Metrics server shutdown: %v", err)
		}
	}()

	l.Infof("Serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
