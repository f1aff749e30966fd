package backend

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/driftworks/semdex/internal/models"
)

// ErrCostConstrained is returned when the primary host is unreachable and the
// network cost gate forbids contacting the secondary host.
var ErrCostConstrained = errors.New("primary host unreachable and network is cost-constrained, failover refused")

// ErrNoHost is returned when no configured host answered its probe.
var ErrNoHost = errors.New("no embedding host reachable")

// Resolver picks which backend host should serve a unit of work. The primary
// host is assumed local and cheap, the secondary remote and possibly metered.
type Resolver struct {
	primary         *Client
	secondary       *Client
	costConstrained bool
	logger          *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger for the resolver.
func WithResolverLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver over a primary and an optional secondary
// host. secondary may be nil when no failover host is configured.
func NewResolver(primary, secondary *Client, costConstrained bool, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		primary:         primary,
		secondary:       secondary,
		costConstrained: costConstrained,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type failoverAction int

const (
	acceptPrimary failoverAction = iota
	probeSecondary
	refuseFailover
)

// decide maps the primary probe outcome to a failover action. forBulk marks
// work heavy enough that an accelerated host is worth a longer reach; the
// cost gate blocks any secondary contact when the primary is down.
func decide(primaryReachable, accelerated, costConstrained, forBulk bool) failoverAction {
	if primaryReachable && (!forBulk || accelerated) {
		return acceptPrimary
	}
	if costConstrained {
		if primaryReachable {
			return acceptPrimary
		}
		return refuseFailover
	}
	return probeSecondary
}

// Resolve probes the hosts and returns the client to use plus a description
// of the chosen host. forBulk requests an accelerated host when one can be
// reached; interactive callers pass false and take the nearest host.
func (r *Resolver) Resolve(ctx context.Context, forBulk bool) (*Client, models.HostCandidate, error) {
	primaryReachable := false
	accelerated := false
	if err := r.primary.Ping(ctx); err == nil {
		primaryReachable = true
		if forBulk {
			ok, err := r.primary.Accelerated(ctx)
			if err != nil {
				r.logger.Debug("primary capability probe failed", zap.Error(err))
			}
			accelerated = ok
		}
	} else {
		r.logger.Debug("primary host probe failed", zap.String("url", r.primary.BaseURL()), zap.Error(err))
	}

	switch decide(primaryReachable, accelerated, r.costConstrained, forBulk) {
	case acceptPrimary:
		return r.primary, models.HostCandidate{URL: r.primary.BaseURL(), Reachable: true, Accelerated: accelerated}, nil
	case refuseFailover:
		return nil, models.HostCandidate{}, ErrCostConstrained
	}

	if r.secondary == nil {
		if primaryReachable {
			return r.primary, models.HostCandidate{URL: r.primary.BaseURL(), Reachable: true, Accelerated: accelerated}, nil
		}
		return nil, models.HostCandidate{}, ErrNoHost
	}

	if err := r.secondary.Ping(ctx); err != nil {
		r.logger.Debug("secondary host probe failed", zap.String("url", r.secondary.BaseURL()), zap.Error(err))
		if primaryReachable {
			return r.primary, models.HostCandidate{URL: r.primary.BaseURL(), Reachable: true, Accelerated: accelerated}, nil
		}
		return nil, models.HostCandidate{}, fmt.Errorf("%w: primary %s, secondary %s", ErrNoHost, r.primary.BaseURL(), r.secondary.BaseURL())
	}

	secondaryAccelerated := false
	if forBulk {
		ok, err := r.secondary.Accelerated(ctx)
		if err != nil {
			r.logger.Debug("secondary capability probe failed", zap.Error(err))
		}
		secondaryAccelerated = ok
	}
	// A reachable but un-accelerated secondary only wins when the primary is
	// down: two slow hosts are a tie and the nearer one takes it.
	if primaryReachable && !secondaryAccelerated {
		return r.primary, models.HostCandidate{URL: r.primary.BaseURL(), Reachable: true, Accelerated: accelerated}, nil
	}
	return r.secondary, models.HostCandidate{URL: r.secondary.BaseURL(), Reachable: true, Accelerated: secondaryAccelerated}, nil
}
