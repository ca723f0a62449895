package connmgr

import (
	"testing"
)

func TestAcquireSlotRespectsCeiling(t *testing.T) {
	m := New(DefaultOptions(), nil, nil)
	m.opts.MaxConcurrentConnections = 2

	if !m.acquireSlot() {
		t.Fatal("expected first acquire to succeed")
	}
	if !m.acquireSlot() {
		t.Fatal("expected second acquire to succeed")
	}
	if m.acquireSlot() {
		t.Fatal("expected third acquire to fail once ceiling reached")
	}

	m.releaseSlot()
	if !m.acquireSlot() {
		t.Fatal("expected acquire to succeed after a release")
	}
}

func TestNewConnIDIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := newConnID()
		if seen[id] {
			t.Fatalf("duplicate connection id %q", id)
		}
		seen[id] = true
	}
}
