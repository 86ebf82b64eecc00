package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/netcafe-labs/postetrack/internal/session"
	"github.com/rs/zerolog"
)

const (
	// DefaultWarnThreshold fires the first alert when this much time is left.
	DefaultWarnThreshold = 5 * time.Minute

	// DefaultCriticalThreshold fires the last-call alert.
	DefaultCriticalThreshold = 1 * time.Minute

	// DefaultToastDurationMs is how long non-persistent alerts stay visible.
	DefaultToastDurationMs = 10000
)

// ManagerConfig holds notification manager configuration.
type ManagerConfig struct {
	WarnThreshold     time.Duration
	CriticalThreshold time.Duration
	ToastDurationMs   int
}

// thresholdFlags records which alerts were already sent for one session.
// Detection is one-directional: a set flag never re-fires until it is
// explicitly reset by an extension or cleared when tracking stops.
type thresholdFlags struct {
	warned   bool
	critical bool
	expired  bool
}

// Manager consumes timer ticks and turns threshold crossings into
// notifications. Alerts are advisory only: the manager never pauses or
// terminates a session.
type Manager struct {
	store    *Store
	warn     time.Duration
	critical time.Duration
	toastMs  int
	flags    map[int64]*thresholdFlags
	logger   zerolog.Logger
	mu       sync.Mutex
}

// NewManager creates a notification manager writing into store.
func NewManager(store *Store, cfg ManagerConfig, logger zerolog.Logger) *Manager {
	if cfg.WarnThreshold <= 0 {
		cfg.WarnThreshold = DefaultWarnThreshold
	}
	if cfg.CriticalThreshold <= 0 {
		cfg.CriticalThreshold = DefaultCriticalThreshold
	}
	if cfg.ToastDurationMs <= 0 {
		cfg.ToastDurationMs = DefaultToastDurationMs
	}

	return &Manager{
		store:    store,
		warn:     cfg.WarnThreshold,
		critical: cfg.CriticalThreshold,
		toastMs:  cfg.ToastDurationMs,
		flags:    make(map[int64]*thresholdFlags),
		logger:   logger.With().Str("component", "notification-manager").Logger(),
	}
}

// OnTick evaluates thresholds for one tick. Unbounded sessions never alert.
func (m *Manager) OnTick(s session.Session, info session.TimeInfo) {
	if !s.Bounded() || info.Unbounded {
		return
	}

	m.mu.Lock()
	f, ok := m.flags[s.ID]
	if !ok {
		f = &thresholdFlags{}
		m.flags[s.ID] = f
	}

	fireWarn := !f.warned && info.Remaining <= m.warn && info.Remaining > m.critical && !info.IsExpired
	if fireWarn {
		f.warned = true
	}
	fireCritical := !f.critical && info.Remaining <= m.critical && info.Remaining > 0 && !info.IsExpired
	if fireCritical {
		f.critical = true
	}
	fireExpired := !f.expired && info.IsExpired
	if fireExpired {
		f.expired = true
	}
	m.mu.Unlock()

	if fireWarn {
		m.store.Add(Notification{
			Type:       TypeWarning,
			Priority:   PriorityHigh,
			Category:   "session",
			Title:      "Session ending soon",
			Message:    fmt.Sprintf("Less than %s remaining on station %d", minutesWord(m.warn), s.StationID),
			IsVisible:  true,
			CanDismiss: true,
			DurationMs: m.toastMs,
		})
		m.logger.Info().Int64("session_id", s.ID).Msg("Warning threshold crossed")
	}

	if fireCritical {
		m.store.Add(Notification{
			Type:       TypeError,
			Priority:   PriorityCritical,
			Category:   "session",
			Title:      "Session about to end",
			Message:    fmt.Sprintf("Less than %s remaining on station %d", minutesWord(m.critical), s.StationID),
			IsVisible:  true,
			CanDismiss: true,
			DurationMs: m.toastMs,
		})
		m.logger.Info().Int64("session_id", s.ID).Msg("Critical threshold crossed")
	}

	if fireExpired {
		m.store.Add(Notification{
			Type:       TypeError,
			Priority:   PriorityCritical,
			Category:   "session",
			Title:      "Session expired",
			Message:    fmt.Sprintf("Session on station %d has expired", s.StationID),
			IsVisible:  true,
			CanDismiss: true,
			DurationMs: 0, // sticky until dismissed
		})
		m.logger.Info().Int64("session_id", s.ID).Msg("Session expired")
	}
}

// ResetThresholds clears the flags whose threshold is no longer crossed.
// Called after an extension so alerts can fire again on the way back down.
func (m *Manager) ResetThresholds(sessionID int64, remaining time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.flags[sessionID]
	if !ok {
		return
	}
	if remaining > m.warn {
		f.warned = false
	}
	if remaining > m.critical {
		f.critical = false
	}
	if remaining > 0 {
		f.expired = false
	}
}

// StopTracking destroys the per-session flag record.
func (m *Manager) StopTracking(sessionID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flags, sessionID)
}

func minutesWord(d time.Duration) string {
	minutes := int(d.Minutes())
	if minutes <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
