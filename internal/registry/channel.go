package registry

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"chatserver/internal/protocol"
)

const (
	// MaxGuests and MaxUsers are the default per-channel capacity limits.
	MaxGuests = 64
	MaxUsers  = 128

	guestPrefix = "guest_"
)

// Verifier is the subset of the credential store's contract that
// ConnectUser needs: check a (id, password_hash) pair against persisted
// records.
type Verifier interface {
	Verify(ctx context.Context, id, passwordHash string) (string, error)
}

// Channel is a named broadcast domain: a Bus plus a membership set
// partitioned into users and guests. All mutating methods
// must only be called while holding the owning Registry's lock (see
// Registry.Modify) — Channel itself performs no synchronization of its own
// membership state.
type Channel struct {
	Name     string
	IsSystem bool
	bus      *Bus

	members  map[string]struct{}
	numUsers int
	numGuest int

	maxGuests int
	maxUsers  int
}

func newChannel(name string, isSystem bool, busCapacity, maxGuests, maxUsers int) *Channel {
	return &Channel{
		Name:      name,
		IsSystem:  isSystem,
		bus:       NewBusWithCapacity(busCapacity),
		members:   make(map[string]struct{}),
		maxGuests: maxGuests,
		maxUsers:  maxUsers,
	}
}

// Bus returns the channel's broadcast bus handle. Once a handle is cloned
// out, publishing through it needs no registry lock.
func (c *Channel) Bus() *Bus { return c.bus }

// NumUsers and NumGuests expose the partitioned membership counts.
func (c *Channel) NumUsers() int  { return c.numUsers }
func (c *Channel) NumGuests() int { return c.numGuest }

func isGuestID(id string) bool { return strings.HasPrefix(id, guestPrefix) }

// ConnectGuest synthesizes a fresh guest_<u16> id, inserts it into
// membership, and returns it. Fails with an error at capacity.
func (c *Channel) ConnectGuest() (string, error) {
	if c.numGuest >= c.maxGuests {
		return "", fmt.Errorf("too many guests")
	}
	for {
		candidate := fmt.Sprintf("%s%d", guestPrefix, uint16(rand.Intn(1<<16)))
		if _, taken := c.members[candidate]; !taken {
			c.insert(candidate)
			return candidate, nil
		}
	}
}

// ConnectUser validates login against store, and on success removes
// currentID from membership (if present — the re-login case) and inserts
// login.ID. Fails with a descriptive error on capacity, malformed login, or
// store rejection.
func (c *Channel) ConnectUser(ctx context.Context, login protocol.LoginInfo, currentID string, store Verifier) (string, error) {
	if c.numUsers >= c.maxUsers {
		return "", fmt.Errorf("too many users")
	}
	if login.ID == nil || login.PasswordHash == nil {
		return "", fmt.Errorf("malformed login packet")
	}
	id, err := store.Verify(ctx, *login.ID, *login.PasswordHash)
	if err != nil {
		return "", err
	}
	if currentID != "" {
		c.leave(currentID)
	}
	c.insert(id)
	return id, nil
}

// AddExisting inserts an already-assigned identifier into c's membership,
// used by GotoReq migration: the identifier was already accepted into some
// channel's capacity once at login, so the move itself is not re-checked
// against capacity, unlike ConnectGuest/ConnectUser.
func (c *Channel) AddExisting(id string) { c.insert(id) }

func (c *Channel) insert(id string) {
	c.members[id] = struct{}{}
	if isGuestID(id) {
		c.numGuest++
	} else {
		c.numUsers++
	}
}

// Leave removes id from membership. Idempotent: leaving when id is not
// present is a silent no-op.
func (c *Channel) Leave(id string) {
	if id == "" {
		return
	}
	c.leave(id)
}

func (c *Channel) leave(id string) {
	if _, ok := c.members[id]; !ok {
		return
	}
	delete(c.members, id)
	if isGuestID(id) {
		c.numGuest--
	} else {
		c.numUsers--
	}
}

// Has reports whether id is currently a member of c.
func (c *Channel) Has(id string) bool {
	_, ok := c.members[id]
	return ok
}

// Snapshot returns the current membership as a wire MembershipSnapshot.
func (c *Channel) Snapshot() protocol.MembershipSnapshot {
	names := make([]string, 0, len(c.members))
	for id := range c.members {
		names = append(names, id)
	}
	return protocol.MembershipSnapshot{
		UserList: names,
		NumUser:  c.numUsers,
		NumGuest: c.numGuest,
	}
}
