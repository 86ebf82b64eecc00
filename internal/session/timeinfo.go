package session

import "time"

// TimeInfo is the timing snapshot a clock tick derives for one session. It
// travels from the timer engine to the registry and notification manager.
type TimeInfo struct {
	Elapsed          time.Duration
	Remaining        time.Duration
	ElapsedMinutes   int
	RemainingMinutes int
	ProgressPercent  float64
	IsExpired        bool
	Unbounded        bool
}
