// Package probe checks hub and cloud reachability outside the read path.
package probe

import (
	"context"
	"log"
	"net"
	"time"

	"thermod/internal/status"
)

// DefaultTimeout bounds each reachability check so the probe can never
// stall the scheduler iteration it runs in.
const DefaultTimeout = 3 * time.Second

// APIPinger is the minimal vendor API surface the probe needs.
type APIPinger interface {
	Ping(ctx context.Context) error
}

// Prober performs the periodic dual health check: network-layer
// reachability of the hub and a lightweight vendor API call. Both
// checks are independent; neither affects the collection cycle.
type Prober struct {
	hubAddr string
	api     APIPinger
	timeout time.Duration
	logger  *log.Logger
}

// New creates a Prober. An empty hubAddr means the hub check is
// skipped, not failed.
func New(hubAddr string, api APIPinger, logger *log.Logger) *Prober {
	return &Prober{
		hubAddr: hubAddr,
		api:     api,
		timeout: DefaultTimeout,
		logger:  logger,
	}
}

// Check runs both checks and returns the combined result. A skipped
// hub check reports reachable so an unconfigured hub never reads as an
// outage.
func (p *Prober) Check(ctx context.Context) status.Connectivity {
	c := status.Connectivity{
		HubReachable: true,
		CheckedAt:    time.Now(),
	}

	if p.hubAddr != "" {
		c.HubReachable = p.checkHub()
		if !c.HubReachable && p.logger != nil {
			p.logger.Printf("[probe] Hub %s not reachable", p.hubAddr)
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.api.Ping(pingCtx); err != nil {
		if p.logger != nil {
			p.logger.Printf("[probe] Vendor API not reachable: %v", err)
		}
	} else {
		c.APIReachable = true
	}

	return c
}

// checkHub dials the hub over TCP. Hubs without an explicit port are
// probed on port 80, which local bridge devices keep open for their
// setup interface.
func (p *Prober) checkHub() bool {
	addr := p.hubAddr
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "80")
	}

	conn, err := net.DialTimeout("tcp", addr, p.timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
