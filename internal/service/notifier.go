package service

import (
	"context"

	"github.com/google/uuid"

	"conductbridge"
	"conductbridge/internal/logger"
	"conductbridge/internal/repository"
)

// Notifier is the collaborator surface the poller reports into. Definition
// and feedback changes are deliberately separate paths: a steady-state system
// toggling only active/inactive must not pay for a full definitions rebuild.
type Notifier interface {
	DefinitionsChanged(ctx context.Context, rooms []conductbridge.Room)
	FeedbackChanged(ctx context.Context, activeSalvoIDs []string)
	StatusChanged(ctx context.Context, status conductbridge.DeviceStatus)
}

// MultiNotifier fans a notification out to all members.
type MultiNotifier []Notifier

func (m MultiNotifier) DefinitionsChanged(ctx context.Context, rooms []conductbridge.Room) {
	for _, n := range m {
		n.DefinitionsChanged(ctx, rooms)
	}
}

func (m MultiNotifier) FeedbackChanged(ctx context.Context, activeSalvoIDs []string) {
	for _, n := range m {
		n.FeedbackChanged(ctx, activeSalvoIDs)
	}
}

func (m MultiNotifier) StatusChanged(ctx context.Context, status conductbridge.DeviceStatus) {
	for _, n := range m {
		n.StatusChanged(ctx, status)
	}
}

// EventNotifier records every notification in the bridge event log. Appends
// are best-effort: a full disk must not stall the polling cycle.
type EventNotifier struct {
	events repository.EventRepo
	log    *logger.Logger
}

func NewEventNotifier(events repository.EventRepo, log *logger.Logger) *EventNotifier {
	return &EventNotifier{events: events, log: log}
}

var _ Notifier = (*EventNotifier)(nil)

func (n *EventNotifier) DefinitionsChanged(ctx context.Context, rooms []conductbridge.Room) {
	panels := 0
	for _, r := range rooms {
		panels += len(r.Panels)
	}
	n.append(ctx, conductbridge.BridgeEvent{
		Type:        conductbridge.EventDefinitionsChanged,
		Description: "device topology changed",
		Metadata:    map[string]any{"room_count": len(rooms), "panel_count": panels},
	})
}

func (n *EventNotifier) FeedbackChanged(ctx context.Context, activeSalvoIDs []string) {
	n.append(ctx, conductbridge.BridgeEvent{
		Type:        conductbridge.EventFeedbackChanged,
		Description: "active salvo set changed",
		Metadata:    map[string]any{"active_salvo_ids": activeSalvoIDs},
	})
}

func (n *EventNotifier) StatusChanged(ctx context.Context, status conductbridge.DeviceStatus) {
	n.append(ctx, conductbridge.BridgeEvent{
		Type:        conductbridge.EventStatusChanged,
		Description: "device status changed to " + string(status.State),
		Metadata:    map[string]any{"state": status.State, "message": status.Message},
	})
}

func (n *EventNotifier) append(ctx context.Context, e conductbridge.BridgeEvent) {
	e.EventID = uuid.NewString()
	if err := n.events.Append(ctx, e); err != nil && n.log != nil {
		n.log.Errorw("event_append_failed", "type", e.Type, "err", err)
	}
}
