package hash

import "testing"

func TestPasswordDeterministic(t *testing.T) {
	a := Password("alpine")
	b := Password("alpine")
	if a != b {
		t.Fatalf("Password is not deterministic: %q != %q", a, b)
	}
}

func TestPasswordDistinguishesInputs(t *testing.T) {
	if Password("alpine") == Password("alpine2") {
		t.Fatal("distinct passwords hashed to the same value")
	}
}

func TestPasswordMinLength(t *testing.T) {
	// The credential store enforces len >= 4 on the hash, not the
	// plaintext; make sure even a 1-char password produces a long hash.
	if len(Password("a")) < 4 {
		t.Fatalf("hash too short: %q", Password("a"))
	}
}
