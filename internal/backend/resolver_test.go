package backend

import (
	"context"
	"errors"
	"testing"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name                                              string
		primaryReachable, accelerated, costGated, forBulk bool
		want                                              failoverAction
	}{
		{"interactive primary up", true, false, false, false, acceptPrimary},
		{"bulk primary accelerated", true, true, false, true, acceptPrimary},
		{"bulk primary slow", true, false, false, true, probeSecondary},
		{"bulk primary slow cost gated", true, false, true, true, acceptPrimary},
		{"primary down", false, false, false, false, probeSecondary},
		{"primary down cost gated", false, false, true, false, refuseFailover},
		{"bulk primary down cost gated", false, false, true, true, refuseFailover},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decide(tt.primaryReachable, tt.accelerated, tt.costGated, tt.forBulk)
			if got != tt.want {
				t.Errorf("decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolvePrimaryForInteractive(t *testing.T) {
	_, primary := newFakeHost(t, false, true)
	_, secondary := newFakeHost(t, true, true)
	r := NewResolver(primary, secondary, false)

	client, candidate, err := r.Resolve(context.Background(), false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if client != primary {
		t.Error("interactive work should stay on the primary host")
	}
	if candidate.URL != primary.BaseURL() || !candidate.Reachable {
		t.Errorf("unexpected candidate: %+v", candidate)
	}
}

func TestResolveBulkPrefersAcceleratedSecondary(t *testing.T) {
	_, primary := newFakeHost(t, false, true)
	_, secondary := newFakeHost(t, true, true)
	r := NewResolver(primary, secondary, false)

	client, candidate, err := r.Resolve(context.Background(), true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if client != secondary {
		t.Error("bulk work should move to the accelerated secondary")
	}
	if !candidate.Accelerated {
		t.Error("candidate should report acceleration")
	}
}

func TestResolveBulkKeepsPrimaryWhenSecondarySlowToo(t *testing.T) {
	_, primary := newFakeHost(t, false, true)
	_, secondary := newFakeHost(t, false, true)
	r := NewResolver(primary, secondary, false)

	client, _, err := r.Resolve(context.Background(), true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if client != primary {
		t.Error("two slow hosts should resolve to the nearer primary")
	}
}

func TestResolveBulkAcceleratedPrimaryStays(t *testing.T) {
	_, primary := newFakeHost(t, true, true)
	_, secondary := newFakeHost(t, true, true)
	r := NewResolver(primary, secondary, false)

	client, candidate, err := r.Resolve(context.Background(), true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if client != primary {
		t.Error("an accelerated primary should never be abandoned")
	}
	if !candidate.Accelerated {
		t.Error("candidate should report acceleration")
	}
}

func TestResolveFailoverWhenPrimaryDown(t *testing.T) {
	primary := deadClient(t)
	_, secondary := newFakeHost(t, false, true)
	r := NewResolver(primary, secondary, false)

	client, candidate, err := r.Resolve(context.Background(), false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if client != secondary {
		t.Error("expected failover to the secondary host")
	}
	if candidate.URL != secondary.BaseURL() {
		t.Errorf("unexpected candidate: %+v", candidate)
	}
}

func TestResolveCostGateBlocksFailover(t *testing.T) {
	primary := deadClient(t)
	host, secondary := newFakeHost(t, true, true)
	r := NewResolver(primary, secondary, true)

	_, _, err := r.Resolve(context.Background(), true)
	if !errors.Is(err, ErrCostConstrained) {
		t.Fatalf("got %v, want ErrCostConstrained", err)
	}
	// The gate blocks all secondary contact, probes included.
	if n := host.requestCount(); n != 0 {
		t.Errorf("secondary host received %d requests, want 0", n)
	}
}

func TestResolveNoHost(t *testing.T) {
	r := NewResolver(deadClient(t), deadClient(t), false)
	_, _, err := r.Resolve(context.Background(), false)
	if !errors.Is(err, ErrNoHost) {
		t.Fatalf("got %v, want ErrNoHost", err)
	}

	r = NewResolver(deadClient(t), nil, false)
	_, _, err = r.Resolve(context.Background(), false)
	if !errors.Is(err, ErrNoHost) {
		t.Fatalf("got %v, want ErrNoHost with no secondary configured", err)
	}
}
