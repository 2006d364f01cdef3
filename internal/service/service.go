package service

import (
	"context"
	"time"

	"conductbridge"
	"conductbridge/internal/logger"
	"conductbridge/internal/repository"
)

// DeviceAPI is the slice of the ConductIP client the services depend on.
// Narrow on purpose: the poller and trigger logic are unit-tested against a
// fake device with no network.
type DeviceAPI interface {
	Configured() bool
	FetchRooms(ctx context.Context) ([]conductbridge.Room, error)
	FetchActiveSalvos(ctx context.Context) ([]conductbridge.Salvo, error)
	TriggerSalvo(ctx context.Context, salvoID string) error
}

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Poller owns the topology snapshot: it refreshes it on a cadence and exposes
// read access to the last-known-good state.
type Poller interface {
	Run(ctx context.Context)
	Rooms() []conductbridge.Room
	PanelSalvos(panelID string) ([]conductbridge.Salvo, bool)
	ActiveSalvoIDs() []string
	IsSalvoActive(salvoID string) bool
}

// Salvos exposes the one-shot trigger operation, independent of the polling
// cycle.
type Salvos interface {
	Trigger(ctx context.Context, salvoID string) error
}

// Status exposes the latched device connection status.
type Status interface {
	Current() conductbridge.DeviceStatus
}

// EventLog exposes the append-only change log with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]conductbridge.BridgeEvent, error)
}

// LogFilter supports history filtering by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", or one of the conductbridge.Event* types
}

// PollOptions tune the two-speed scheduler.
type PollOptions struct {
	HealthyInterval  time.Duration // cadence while the last cycle succeeded
	DegradedInterval time.Duration // cadence while the device is struggling
}

// Service aggregates all sub-services.
type Service struct {
	Poller
	Salvos
	Status
	EventLog
	Authorization
}

// NewService wires the repository layer, device client and notifier into the
// concrete services.
func NewService(repos *repository.Repository, device DeviceAPI, tracker *StatusTracker, notifier Notifier, log *logger.Logger, opts PollOptions, signingKey string) *Service {
	return &Service{
		Poller:        NewPollerService(device, repos.Snapshot, notifier, log, opts),
		Salvos:        NewSalvoService(device, repos.Events, log),
		Status:        tracker,
		EventLog:      NewEventLogService(repos.Events),
		Authorization: NewAuthService(repos.Auth, signingKey),
	}
}
