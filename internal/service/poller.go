package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"conductbridge"
	"conductbridge/internal/conductip"
	"conductbridge/internal/logger"
	"conductbridge/internal/repository"
)

const (
	defaultHealthyInterval  = 1 * time.Second
	defaultDegradedInterval = 5 * time.Second
)

// PollerService owns the topology/active-salvo snapshot and refreshes it on a
// two-speed cadence. One cycle: fetch topology, fetch active set, diff against
// the cached snapshot, notify only for the axes that changed.
//
// The timer is re-armed after a cycle finishes, never on a fixed rate, so
// cycles cannot overlap and snapshot replacement needs no coordination beyond
// the read lock.
type PollerService struct {
	device    DeviceAPI
	snapshots repository.SnapshotRepo
	notifier  Notifier
	log       *logger.Logger
	opts      PollOptions

	mu       sync.RWMutex
	snap     snapshot
	degraded bool
}

func NewPollerService(device DeviceAPI, snapshots repository.SnapshotRepo, notifier Notifier, log *logger.Logger, opts PollOptions) *PollerService {
	if opts.HealthyInterval <= 0 {
		opts.HealthyInterval = defaultHealthyInterval
	}
	if opts.DegradedInterval <= 0 {
		opts.DegradedInterval = defaultDegradedInterval
	}
	return &PollerService{
		device:    device,
		snapshots: snapshots,
		notifier:  notifier,
		log:       log,
		opts:      opts,
		snap: snapshot{
			salvosByPanel: map[string][]conductbridge.Salvo{},
			active:        map[string]struct{}{},
		},
	}
}

var _ Poller = (*PollerService)(nil)

// Run polls until ctx is canceled. The first cycle fires immediately.
func (p *PollerService) Run(ctx context.Context) {
	p.restore(ctx)

	t := time.NewTimer(0)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		healthy := p.runCycle(ctx)
		if healthy == p.degraded { // health transitioned
			p.degraded = !healthy
			if p.log != nil {
				p.log.Infow("poll_cadence_changed", "degraded", p.degraded, "interval", p.interval().String())
			}
		}
		t.Reset(p.interval())
	}
}

func (p *PollerService) interval() time.Duration {
	if p.degraded {
		return p.opts.DegradedInterval
	}
	return p.opts.HealthyInterval
}

// restore seeds the snapshot from the last persisted record so the bridge
// serves last-known-good data before its first successful poll. The active
// set is not restored: staleness must collapse to "inactive", never to a
// stale "active".
func (p *PollerService) restore(ctx context.Context) {
	if p.snapshots == nil {
		return
	}
	rec, err := p.snapshots.Load(ctx)
	if err != nil {
		if p.log != nil {
			p.log.Warnw("snapshot_restore_failed", "err", err)
		}
		return
	}
	if rec.Rooms == nil {
		return
	}

	p.mu.Lock()
	p.snap.rooms = rec.Rooms
	p.snap.salvosByPanel = indexSalvos(rec.Rooms)
	p.mu.Unlock()

	if p.log != nil {
		p.log.Infow("snapshot_restored", "rooms", len(rec.Rooms), "saved_at", rec.UpdatedAt)
	}
}

// runCycle executes one poll-fetch-diff-notify sequence and reports whether
// it ended healthy.
func (p *PollerService) runCycle(ctx context.Context) bool {
	// Incomplete configuration: skip the cycle entirely. No request, no
	// status change.
	if !p.device.Configured() {
		return !p.degraded
	}

	healthy := true

	rooms, err := p.device.FetchRooms(ctx)
	switch {
	case err != nil:
		healthy = false
		var f *conductip.Failure
		if errors.As(err, &f) && f.Kind == conductip.KindResponseMalformed {
			// Device answered, shape is wrong. Keep the last-known-good
			// topology and still refresh the active set below.
			if p.log != nil {
				p.log.Warnw("topology_malformed", "err", err)
			}
		} else {
			// Transport failure: topology stays last-known-good, but an
			// unreachable device means "active" can no longer be trusted.
			// Unknown must collapse to inactive, never to a stale active,
			// so the set is emptied and the second request skipped.
			if p.log != nil {
				p.log.Warnw("topology_fetch_failed", "err", err)
			}
			p.applyActive(ctx, map[string]struct{}{})
			return false
		}
	case rooms == nil:
		// 2xx with no body. Not an error; nothing to apply.
	default:
		p.applyTopology(ctx, rooms)
	}

	salvos, err := p.device.FetchActiveSalvos(ctx)
	if err != nil {
		healthy = false
		if p.log != nil {
			p.log.Warnw("active_salvos_fetch_failed", "err", err)
		}
	}
	// Failure or malformed shape resets the set to empty; the diff against
	// the previous set still runs.
	newActive := map[string]struct{}{}
	if err == nil {
		newActive = activeSet(salvos)
	}
	p.applyActive(ctx, newActive)

	return healthy
}

// applyTopology replaces the rooms snapshot and the derived panel-salvo index
// wholesale, notifying when either changed.
func (p *PollerService) applyTopology(ctx context.Context, rooms []conductbridge.Room) {
	idx := indexSalvos(rooms)

	p.mu.Lock()
	changed := !topologyEqual(p.snap.rooms, rooms) || !indexEqual(p.snap.salvosByPanel, idx)
	if changed {
		p.snap.rooms = rooms
		p.snap.salvosByPanel = idx
	}
	p.mu.Unlock()

	if !changed {
		return
	}
	if p.log != nil {
		p.log.Infow("topology_changed", "rooms", len(rooms), "panels", len(idx))
	}
	if p.notifier != nil {
		p.notifier.DefinitionsChanged(ctx, rooms)
	}
	p.persist(ctx)
}

// applyActive replaces the active-salvo set wholesale, notifying when the set
// changed as a set (element order never matters here).
func (p *PollerService) applyActive(ctx context.Context, newActive map[string]struct{}) {
	p.mu.Lock()
	changed := !setEqual(p.snap.active, newActive)
	if changed {
		p.snap.active = newActive
	}
	ids := setToSorted(p.snap.active)
	p.mu.Unlock()

	if !changed {
		return
	}
	if p.notifier != nil {
		p.notifier.FeedbackChanged(ctx, ids)
	}
	p.persist(ctx)
}

// persist saves the current snapshot best-effort.
func (p *PollerService) persist(ctx context.Context) {
	if p.snapshots == nil {
		return
	}
	p.mu.RLock()
	rec := conductbridge.SnapshotRecord{
		Rooms:          p.snap.rooms,
		ActiveSalvoIDs: setToSorted(p.snap.active),
		UpdatedAt:      time.Now().UTC(),
	}
	p.mu.RUnlock()

	if err := p.snapshots.Save(ctx, rec); err != nil && p.log != nil {
		p.log.Errorw("snapshot_persist_failed", "err", err)
	}
}

// Rooms returns the last-known-good topology. The slice is replaced wholesale
// on refresh and never mutated, so callers may read it without copying.
func (p *PollerService) Rooms() []conductbridge.Room {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap.rooms
}

// PanelSalvos returns the salvo list for one panel from the derived index.
// The second return distinguishes an unknown panel from one without salvos.
func (p *PollerService) PanelSalvos(panelID string) ([]conductbridge.Salvo, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	salvos, ok := p.snap.salvosByPanel[panelID]
	return salvos, ok
}

// ActiveSalvoIDs returns the current active set, sorted for stable output.
func (p *PollerService) ActiveSalvoIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return setToSorted(p.snap.active)
}

// IsSalvoActive reports whether the given salvo is in the active set.
func (p *PollerService) IsSalvoActive(salvoID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.snap.active[salvoID]
	return ok
}
