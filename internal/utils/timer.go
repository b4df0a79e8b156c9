package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// Timer measures an operation and logs its duration when stopped
type Timer struct {
	start         time.Time
	name          string
	log           zerolog.Logger
	slowThreshold time.Duration
}

// NewTimer creates a timer that warns when the operation exceeds slowThreshold.
// A zero threshold disables the warning.
func NewTimer(name string, slowThreshold time.Duration, log zerolog.Logger) *Timer {
	return &Timer{
		start:         time.Now(),
		name:          name,
		log:           log,
		slowThreshold: slowThreshold,
	}
}

// Stop logs the duration and returns it
func (t *Timer) Stop() time.Duration {
	duration := time.Since(t.start)

	if t.slowThreshold > 0 && duration > t.slowThreshold {
		t.log.Warn().
			Str("operation", t.name).
			Dur("duration", duration).
			Dur("threshold", t.slowThreshold).
			Msg("Slow operation detected")
		return duration
	}

	t.log.Debug().
		Str("operation", t.name).
		Dur("duration_ms", duration).
		Msg("Performance measurement")

	return duration
}
