// Package registry implements the process-wide channel registry and the
// Channel/Bus types it owns: the broadcast substrate every session publishes
// to and subscribes from.
package registry

import (
	"fmt"
	"sync"
	"unicode"
)

// SystemChannels are reserved at startup; Public is the entry channel every
// new session lands in before any LoginReq.
var SystemChannels = []string{"public", "main", "dev"}

// PublicChannel is the entry channel name.
const PublicChannel = "public"

const minChannelNameLen = 3

// Registry is the process-wide mapping from channel name to Channel. The
// registry exclusively owns Channels; sessions only ever hold a cloned Bus
// handle and a name, re-resolving under the registry lock to mutate
// membership.
type Registry struct {
	mu       sync.Mutex
	channels map[string]*Channel

	busCapacity int
	maxGuests   int
	maxUsers    int
}

// WithSystemChannels creates a Registry pre-populated with the reserved
// system channels, using the default fixed capacities (64 guests, 128 users
// per channel).
func WithSystemChannels() *Registry {
	return NewWithCapacities(busCapacity, MaxGuests, MaxUsers)
}

// NewWithCapacities creates a Registry pre-populated with the reserved
// system channels, using caller-chosen per-channel capacities (the
// cmd/server entry point wires these from config.Config so operators can
// tune them without touching the invariants tests pin against).
func NewWithCapacities(busCapacity, maxGuests, maxUsers int) *Registry {
	r := &Registry{
		channels:    make(map[string]*Channel),
		busCapacity: busCapacity,
		maxGuests:   maxGuests,
		maxUsers:    maxUsers,
	}
	for _, name := range SystemChannels {
		if _, err := r.createLocked(name, true); err != nil {
			panic(fmt.Sprintf("registry: failed to create system channel %q: %v", name, err))
		}
	}
	return r
}

// IsValidChannelName reports whether name is a legal channel name: length
// >= 3, first character ASCII alphabetic or '_', every subsequent character
// ASCII alphanumeric or '_'.
func IsValidChannelName(name string) bool {
	if len(name) < minChannelNameLen {
		return false
	}
	first := rune(name[0])
	if !(first == '_' || (first < 128 && unicode.IsLetter(first))) {
		return false
	}
	for _, r := range name {
		if r >= 128 || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return false
		}
	}
	return true
}

// Resolve returns the Channel for name (its Bus method gives the broadcast
// handle), or ok=false if no such channel exists. Resolving is read-only and does not require holding the lock
// across any caller-side work.
func (r *Registry) Resolve(name string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[name]
	return c, ok
}

// Modify applies f to the named Channel under the registry's exclusive
// lock. It returns an error if the channel does not exist. f must not block
// on socket I/O — only membership/bus mutation belongs here.
func (r *Registry) Modify(name string, f func(*Channel) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[name]
	if !ok {
		return fmt.Errorf("registry: channel %q not found", name)
	}
	return f(c)
}

// CreateChannel creates a new non-system channel, refusing invalid names
// and duplicates. The core otherwise has no registered command path for
// creating user channels; this entry point exists for that future
// extension.
func (r *Registry) CreateChannel(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.createLocked(name, false)
	return err
}

func (r *Registry) createLocked(name string, isSystem bool) (*Channel, error) {
	if !IsValidChannelName(name) {
		return nil, fmt.Errorf("invalid channel name %q", name)
	}
	if _, exists := r.channels[name]; exists {
		return nil, fmt.Errorf("channel %q already exists", name)
	}
	c := newChannel(name, isSystem, r.busCapacity, r.maxGuests, r.maxUsers)
	r.channels[name] = c
	return c, nil
}
