package service

import (
	"reflect"
	"sort"

	"conductbridge"
)

// snapshot is the cached state of one poll cycle. It is always replaced
// wholesale, never mutated field-by-field, so readers can never observe a
// half-updated topology.
type snapshot struct {
	rooms         []conductbridge.Room
	salvosByPanel map[string][]conductbridge.Salvo
	active        map[string]struct{}
}

// indexSalvos derives the panel-id -> salvo-list index from the salvo arrays
// embedded in the rooms response. Recomputed in full on every successful
// topology fetch.
func indexSalvos(rooms []conductbridge.Room) map[string][]conductbridge.Salvo {
	idx := make(map[string][]conductbridge.Salvo)
	for _, room := range rooms {
		for _, panel := range room.Panels {
			idx[panel.ID] = panel.Salvos
		}
	}
	return idx
}

// topologyEqual is a deep, order-sensitive comparison. Reordered rooms or
// panels with identical content count as a change: generated choice lists are
// order-dependent downstream.
func topologyEqual(a, b []conductbridge.Room) bool {
	return reflect.DeepEqual(a, b)
}

// indexEqual compares the panel-salvo index per key.
func indexEqual(a, b map[string][]conductbridge.Salvo) bool {
	if len(a) != len(b) {
		return false
	}
	for panelID, salvos := range a {
		other, ok := b[panelID]
		if !ok || !reflect.DeepEqual(salvos, other) {
			return false
		}
	}
	return true
}

// setEqual is the one order-insensitive comparison: two active-salvo fetches
// listing the same ids in different order are the same state.
func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

func activeSet(salvos []conductbridge.Salvo) map[string]struct{} {
	set := make(map[string]struct{}, len(salvos))
	for _, s := range salvos {
		set[s.ID] = struct{}{}
	}
	return set
}

func setToSorted(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
