package server

import (
	"testing"
	"time"
)

func TestClientHost(t *testing.T) {
	tests := map[string]string{
		"192.0.2.10:51234": "192.0.2.10",
		"[::1]:8080":       "::1",
		"192.0.2.10":       "192.0.2.10",
	}
	for in, want := range tests {
		if got := clientHost(in); got != want {
			t.Errorf("clientHost(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClientLimits(t *testing.T) {
	limits := newClientLimits(1, 2)
	now := time.Now()

	if !limits.allow("a", now) || !limits.allow("a", now) {
		t.Fatal("burst of 2 should be allowed")
	}
	if limits.allow("a", now) {
		t.Error("third request within the burst window should be rejected")
	}
	if !limits.allow("b", now) {
		t.Error("other clients have their own bucket")
	}
	if !limits.allow("a", now.Add(2*time.Second)) {
		t.Error("bucket should refill over time")
	}
}

func TestClientLimits_DropsIdleClients(t *testing.T) {
	limits := newClientLimits(1, 1)
	now := time.Now()
	limits.allow("idle", now)
	limits.allow("busy", now)

	later := now.Add(clientIdle + time.Minute)
	limits.allow("busy", later)

	if _, ok := limits.buckets["idle"]; ok {
		t.Error("idle client bucket should have been dropped")
	}
	if _, ok := limits.buckets["busy"]; !ok {
		t.Error("active client bucket should be kept")
	}
}
