package notify

import (
	"time"

	"github.com/google/uuid"
	"github.com/netcafe-labs/postetrack/internal/storage"
)

// Type classifies a notification.
type Type string

const (
	TypeSuccess Type = "SUCCESS"
	TypeError   Type = "ERROR"
	TypeWarning Type = "WARNING"
	TypeInfo    Type = "INFO"
)

// Priority orders notifications for display and suppression.
type Priority string

const (
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Notification is a single alert. IsVisible marks it as a live toast;
// hiding the toast keeps the record in history. IsTemporary excludes it
// from persistence entirely. A DurationMs of zero means the toast stays
// until dismissed.
type Notification struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	Priority    Priority  `json:"priority"`
	Category    string    `json:"category"`
	Message     string    `json:"message"`
	Title       string    `json:"title"`
	Timestamp   time.Time `json:"timestamp"`
	IsTemporary bool      `json:"is_temporary"`
	IsVisible   bool      `json:"is_visible"`
	IsRead      bool      `json:"is_read"`
	CanDismiss  bool      `json:"can_dismiss"`
	DurationMs  int       `json:"duration_ms"`
}

func newID() string {
	return uuid.NewString()
}

func (n Notification) record() storage.NotificationRecord {
	return storage.NotificationRecord{
		ID:         n.ID,
		Type:       string(n.Type),
		Priority:   string(n.Priority),
		Category:   n.Category,
		Message:    n.Message,
		Title:      n.Title,
		Timestamp:  n.Timestamp,
		IsRead:     n.IsRead,
		CanDismiss: n.CanDismiss,
	}
}

func fromRecord(r storage.NotificationRecord) Notification {
	return Notification{
		ID:         r.ID,
		Type:       Type(r.Type),
		Priority:   Priority(r.Priority),
		Category:   r.Category,
		Message:    r.Message,
		Title:      r.Title,
		Timestamp:  r.Timestamp,
		IsRead:     r.IsRead,
		CanDismiss: r.CanDismiss,
		// Reloaded records are history, never live toasts.
		IsVisible: false,
	}
}

// Stats summarizes the notification history.
type Stats struct {
	Total      int              `json:"total"`
	Unread     int              `json:"unread"`
	Visible    int              `json:"visible"`
	ByType     map[Type]int     `json:"by_type"`
	ByPriority map[Priority]int `json:"by_priority"`
}
