package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Session metrics
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "postetrack_sessions_active",
			Help: "Number of sessions currently active",
		},
	)

	SessionsPaused = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "postetrack_sessions_paused",
			Help: "Number of sessions currently paused",
		},
	)

	SessionsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "postetrack_sessions_started_total",
			Help: "Total sessions started",
		},
	)

	SessionsEndedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postetrack_sessions_ended_total",
			Help: "Total sessions ended",
		},
		[]string{"outcome"},
	)

	SessionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "postetrack_sessions_expired_total",
			Help: "Total sessions that ran past their planned duration",
		},
	)

	// Timer metrics
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "postetrack_ticks_total",
			Help: "Total timer ticks processed",
		},
	)

	// Billing metrics
	SessionFinalCost = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "postetrack_session_final_cost",
			Help:    "Final billed cost per terminated session",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 50},
		},
	)

	SubscriptionEconomyTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "postetrack_subscription_economy_total",
			Help: "Total amount saved through subscription benefits",
		},
	)

	// Notification metrics
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postetrack_notifications_total",
			Help: "Total notifications emitted",
		},
		[]string{"type", "priority"},
	)

	// API metrics
	APIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postetrack_api_errors_total",
			Help: "Total backend API call failures",
		},
		[]string{"operation"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		SessionsActive,
		SessionsPaused,
		SessionsStartedTotal,
		SessionsEndedTotal,
		SessionsExpiredTotal,
		TicksTotal,
		SessionFinalCost,
		SubscriptionEconomyTotal,
		NotificationsTotal,
		APIErrorsTotal,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
