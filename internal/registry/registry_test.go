package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"chatserver/internal/protocol"
)

type fakeStore struct {
	mu    sync.Mutex
	users map[string]string // id -> password_hash
}

func newFakeStore() *fakeStore { return &fakeStore{users: make(map[string]string)} }

func (f *fakeStore) add(id, passwordHash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = passwordHash
}

func (f *fakeStore) Verify(_ context.Context, id, passwordHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if got, ok := f.users[id]; ok && got == passwordHash {
		return id, nil
	}
	return "", fmt.Errorf("Wrong ID or Password")
}

func strPtr(s string) *string { return &s }

func TestIsValidChannelName(t *testing.T) {
	valid := []string{"public", "main", "dev", "_ab", "a12", "abcdef"}
	invalid := []string{"", "ab", "1ab", "a b", "a-b", "café"}
	for _, n := range valid {
		if !IsValidChannelName(n) {
			t.Errorf("IsValidChannelName(%q) = false, want true", n)
		}
	}
	for _, n := range invalid {
		if IsValidChannelName(n) {
			t.Errorf("IsValidChannelName(%q) = true, want false", n)
		}
	}
}

func TestWithSystemChannels(t *testing.T) {
	r := WithSystemChannels()
	for _, name := range SystemChannels {
		if _, ok := r.Resolve(name); !ok {
			t.Errorf("expected system channel %q to exist", name)
		}
	}
	if _, ok := r.Resolve("nope"); ok {
		t.Error("expected unknown channel to resolve to not-found")
	}
}

func TestCreateChannelGuardsDuplicatesAndInvalid(t *testing.T) {
	r := WithSystemChannels()
	if err := r.CreateChannel("public"); err == nil {
		t.Error("expected duplicate channel creation to fail")
	}
	if err := r.CreateChannel("ab"); err == nil {
		t.Error("expected invalid channel name to be rejected")
	}
	if err := r.CreateChannel("lobby"); err != nil {
		t.Errorf("CreateChannel(lobby): %v", err)
	}
	if _, ok := r.Resolve("lobby"); !ok {
		t.Error("expected lobby to exist after creation")
	}
}

// TestMembershipConsistency verifies num_users + num_guests == |members|,
// and that the guest_ prefix partition holds, across a mix of guest and
// user connects and leaves.
func TestMembershipConsistency(t *testing.T) {
	r := WithSystemChannels()
	store := newFakeStore()
	store.add("alice", "hash-a")
	store.add("bob", "hash-b")

	var guestIDs []string
	err := r.Modify(PublicChannel, func(c *Channel) error {
		for i := 0; i < 5; i++ {
			id, err := c.ConnectGuest()
			if err != nil {
				return err
			}
			guestIDs = append(guestIDs, id)
		}
		if _, err := c.ConnectUser(context.Background(), protocol.LoginInfo{ID: strPtr("alice"), PasswordHash: strPtr("hash-a")}, "", store); err != nil {
			return err
		}
		if _, err := c.ConnectUser(context.Background(), protocol.LoginInfo{ID: strPtr("bob"), PasswordHash: strPtr("hash-b")}, "", store); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Modify: %v", err)
	}

	assertConsistent(t, r, PublicChannel, 2, 5)

	if err := r.Modify(PublicChannel, func(c *Channel) error {
		c.Leave(guestIDs[0])
		c.Leave("alice")
		return nil
	}); err != nil {
		t.Fatalf("Modify leave: %v", err)
	}
	assertConsistent(t, r, PublicChannel, 1, 4)

	// Leaving an absent member is a silent no-op.
	if err := r.Modify(PublicChannel, func(c *Channel) error {
		c.Leave("never-was-here")
		return nil
	}); err != nil {
		t.Fatalf("Modify idempotent leave: %v", err)
	}
	assertConsistent(t, r, PublicChannel, 1, 4)
}

func assertConsistent(t *testing.T, r *Registry, channel string, wantUsers, wantGuests int) {
	t.Helper()
	c, ok := r.Resolve(channel)
	if !ok {
		t.Fatalf("channel %q not found", channel)
	}
	if c.NumUsers() != wantUsers || c.NumGuests() != wantGuests {
		t.Fatalf("NumUsers=%d NumGuests=%d, want %d/%d", c.NumUsers(), c.NumGuests(), wantUsers, wantGuests)
	}
	snap := c.Snapshot()
	if len(snap.UserList) != wantUsers+wantGuests {
		t.Fatalf("snapshot has %d members, want %d", len(snap.UserList), wantUsers+wantGuests)
	}
	guests := 0
	for _, id := range snap.UserList {
		if isGuestID(id) {
			guests++
		}
	}
	if guests != snap.NumGuest || len(snap.UserList)-guests != snap.NumUser {
		t.Fatalf("partition mismatch: %d guest_ ids of %d members, NumGuest=%d NumUser=%d",
			guests, len(snap.UserList), snap.NumGuest, snap.NumUser)
	}
}

// TestCapacityInvariant verifies a channel never admits more than
// MaxGuests guests.
func TestCapacityInvariant(t *testing.T) {
	r := WithSystemChannels()
	err := r.Modify(PublicChannel, func(c *Channel) error {
		for i := 0; i < MaxGuests; i++ {
			if _, err := c.ConnectGuest(); err != nil {
				return fmt.Errorf("unexpected failure at guest %d: %w", i, err)
			}
		}
		if _, err := c.ConnectGuest(); err == nil {
			return fmt.Errorf("expected capacity rejection at guest %d", MaxGuests)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestConnectUserCapacityRejection(t *testing.T) {
	r := WithSystemChannels()
	store := newFakeStore()
	err := r.Modify(PublicChannel, func(c *Channel) error {
		for i := 0; i < MaxUsers; i++ {
			id := fmt.Sprintf("user%d", i)
			store.add(id, "h")
			if _, err := c.ConnectUser(context.Background(), protocol.LoginInfo{ID: strPtr(id), PasswordHash: strPtr("h")}, "", store); err != nil {
				return fmt.Errorf("unexpected failure at user %d: %w", i, err)
			}
		}
		store.add("overflow", "h")
		if _, err := c.ConnectUser(context.Background(), protocol.LoginInfo{ID: strPtr("overflow"), PasswordHash: strPtr("h")}, "", store); err == nil {
			return fmt.Errorf("expected capacity rejection")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestConnectUserMalformedLogin(t *testing.T) {
	r := WithSystemChannels()
	store := newFakeStore()
	err := r.Modify(PublicChannel, func(c *Channel) error {
		_, err := c.ConnectUser(context.Background(), protocol.LoginInfo{}, "", store)
		return err
	})
	if err == nil {
		t.Fatal("expected malformed login to be rejected")
	}
}

// TestReloginReplacesIdentifier verifies a re-login swaps the previous
// identifier out of membership atomically with the new one going in.
func TestReloginReplacesIdentifier(t *testing.T) {
	r := WithSystemChannels()
	store := newFakeStore()
	store.add("alice", "h")

	err := r.Modify(PublicChannel, func(c *Channel) error {
		guestID, err := c.ConnectGuest()
		if err != nil {
			return err
		}
		if _, err := c.ConnectUser(context.Background(), protocol.LoginInfo{ID: strPtr("alice"), PasswordHash: strPtr("h")}, guestID, store); err != nil {
			return err
		}
		if c.Has(guestID) {
			return fmt.Errorf("expected guest id to be replaced")
		}
		if !c.Has("alice") {
			return fmt.Errorf("expected alice to be present")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
