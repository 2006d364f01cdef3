package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"conductbridge"
	"conductbridge/internal/logger"
	"conductbridge/internal/repository"
)

var errEmptySalvoID = errors.New("salvo id must not be empty")

// SalvoService fires salvos on the device. A trigger is a one-shot request
// outside the polling cycle; it shares no mutable state with the poller.
type SalvoService struct {
	device DeviceAPI
	events repository.EventRepo
	log    *logger.Logger
}

func NewSalvoService(device DeviceAPI, events repository.EventRepo, log *logger.Logger) *SalvoService {
	return &SalvoService{device: device, events: events, log: log}
}

var _ Salvos = (*SalvoService)(nil)

// Trigger runs the salvo with the given id. Ids are opaque and the device is
// authoritative, so no validation against the cached snapshot happens here.
// A successful trigger is recorded in the event log.
func (s *SalvoService) Trigger(ctx context.Context, salvoID string) error {
	salvoID = strings.TrimSpace(salvoID)
	if salvoID == "" {
		return errEmptySalvoID
	}

	if err := s.device.TriggerSalvo(ctx, salvoID); err != nil {
		// The client already latched the failure status; nothing else to do.
		return err
	}

	if s.log != nil {
		s.log.Infow("salvo_triggered", "salvo_id", salvoID)
	}
	// The salvo already fired; a failed log append must not turn the
	// operator's success into an error. Best-effort, like the notifier.
	err := s.events.Append(ctx, conductbridge.BridgeEvent{
		EventID:     uuid.NewString(),
		Type:        conductbridge.EventSalvoTriggered,
		Description: "salvo " + salvoID + " triggered",
		Metadata:    map[string]any{"salvo_id": salvoID},
	})
	if err != nil && s.log != nil {
		s.log.Errorw("event_append_failed", "type", conductbridge.EventSalvoTriggered, "err", err)
	}
	return nil
}
