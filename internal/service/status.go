package service

import (
	"context"
	"sync"
	"time"

	"conductbridge"
	"conductbridge/internal/logger"
)

// StatusTracker latches the device connection status. It implements
// conductip.StatusSink: the client reports every request outcome here, and
// only transitions are logged and fanned out, so a sustained outage produces
// one log line rather than one per poll.
type StatusTracker struct {
	mu       sync.Mutex
	current  conductbridge.DeviceStatus
	notifier Notifier
	log      *logger.Logger
}

func NewStatusTracker(notifier Notifier, log *logger.Logger) *StatusTracker {
	return &StatusTracker{
		current: conductbridge.DeviceStatus{
			State:     conductbridge.StateConnecting,
			Message:   "waiting for first contact with device",
			UpdatedAt: time.Now().UTC(),
		},
		notifier: notifier,
		log:      log,
	}
}

// ReportStatus records a request outcome. Identical repeated reports are
// dropped.
func (t *StatusTracker) ReportStatus(state conductbridge.StatusState, message string) {
	t.mu.Lock()
	if t.current.State == state && t.current.Message == message {
		t.mu.Unlock()
		return
	}
	t.current = conductbridge.DeviceStatus{
		State:     state,
		Message:   message,
		UpdatedAt: time.Now().UTC(),
	}
	cur := t.current
	t.mu.Unlock()

	if t.log != nil {
		if state == conductbridge.StateOk {
			t.log.Infow("device_status_changed", "state", state)
		} else {
			t.log.Warnw("device_status_changed", "state", state, "message", message)
		}
	}
	if t.notifier != nil {
		t.notifier.StatusChanged(context.Background(), cur)
	}
}

// Current returns the latched status.
func (t *StatusTracker) Current() conductbridge.DeviceStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}
