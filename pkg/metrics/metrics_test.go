package metrics

import "testing"

func TestSnapshotReflectsUpdates(t *testing.T) {
	r := New()
	r.ConnectionsAccepted.Add(3)
	r.ConnectionsActive.Set(2)
	r.RequestsTotal.Add(5)
	r.BytesIn.Add(100)
	r.BytesOut.Add(200)
	r.H2StreamsActive.Set(4)

	snap := r.Snapshot()
	if snap.ConnectionsAccepted != 3 {
		t.Fatalf("expected 3 connections accepted, got %d", snap.ConnectionsAccepted)
	}
	if snap.ConnectionsActive != 2 {
		t.Fatalf("expected 2 active connections, got %v", snap.ConnectionsActive)
	}
	if snap.RequestsTotal != 5 {
		t.Fatalf("expected 5 requests, got %d", snap.RequestsTotal)
	}
	if snap.BytesIn != 100 || snap.BytesOut != 200 {
		t.Fatalf("unexpected byte counters: %+v", snap)
	}
	if snap.H2StreamsActive != 4 {
		t.Fatalf("expected 4 active streams, got %v", snap.H2StreamsActive)
	}
}
