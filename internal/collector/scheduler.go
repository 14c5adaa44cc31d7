package collector

import (
	"context"
	"errors"
	"log"
	"time"

	"thermod/internal/device"
	"thermod/internal/events"
	"thermod/internal/probe"
	"thermod/internal/retry"
	"thermod/internal/status"
	"thermod/internal/storage"
)

// SchedulerOptions wires the scheduler's collaborators and timing.
type SchedulerOptions struct {
	Service device.Service
	Sink    storage.Sink
	Prober  *probe.Prober
	Status  *status.Writer
	Events  *events.Store
	Logger  *log.Logger

	// Devices is the configured set; only those that initialize
	// successfully enter the registry.
	Devices []device.Device

	Interval         time.Duration
	FailureThreshold int // consecutive full-failure cycles before degraded
	ProbeInterval    int // run the connectivity probe every Nth iteration
	Policy           retry.Policy
}

// Scheduler drives the daemon: initialization, the periodic collection
// loop, state transitions and the status record. All mutable state
// lives here and is touched only by the single Run goroutine.
type Scheduler struct {
	svc       device.Service
	collector *Collector
	prober    *probe.Prober
	status    *status.Writer
	events    *events.Store
	logger    *log.Logger

	configured []device.Device
	registry   *device.Registry

	interval         time.Duration
	failureThreshold int
	probeInterval    int
	policy           retry.Policy

	state               status.State
	startedAt           time.Time
	iteration           int
	consecutiveFailures int
	degradedMark        int64 // event log watermark at the degraded transition
	lastSuccessfulRead  *time.Time
	lastError           string
	connectivity        *status.Connectivity
}

// NewScheduler creates a Scheduler. Run must be called exactly once.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	return &Scheduler{
		svc:              opts.Service,
		collector:        New(opts.Service, opts.Sink, opts.Events, opts.Logger),
		prober:           opts.Prober,
		status:           opts.Status,
		events:           opts.Events,
		logger:           opts.Logger,
		configured:       opts.Devices,
		registry:         device.NewRegistry(nil),
		interval:         opts.Interval,
		failureThreshold: opts.FailureThreshold,
		probeInterval:    opts.ProbeInterval,
		policy:           opts.Policy,
		state:            status.StateStarting,
	}
}

// Run executes the scheduler loop until ctx is cancelled. The cycle in
// flight at cancellation finishes before shutdown. The returned error
// is always nil today; the signature leaves room for fatal conditions.
func (s *Scheduler) Run(ctx context.Context) error {
	s.startedAt = time.Now()
	s.state = status.StateStarting
	s.writeStatus()
	s.record(events.EventDaemonStarted, "", "")
	s.logf("[scheduler] Starting with %d configured device(s), interval %s", len(s.configured), s.interval)

	s.initRegistry(ctx)
	if ctx.Err() != nil {
		return s.shutdown()
	}

	if s.registry.Len() == 0 {
		// No devices is an outage to report, not a reason to exit.
		s.logf("[scheduler] No devices initialized, running degraded")
		s.state = status.StateDegraded
	} else {
		s.state = status.StateRunning
	}
	s.writeStatus()

	for {
		s.iteration++

		if s.registry.Len() == 0 {
			// Recovery path: keep retrying initialization each
			// iteration without counting cycle failures.
			s.initRegistry(ctx)
			if ctx.Err() != nil {
				break
			}
		}

		if s.registry.Len() > 0 {
			s.runCycle(ctx)
		}

		s.maybeProbe(ctx)
		s.writeStatus()

		if err := retry.Sleep(ctx, s.interval); err != nil {
			break
		}
	}

	return s.shutdown()
}

// runCycle executes one collection cycle and applies the state
// transition rules.
func (s *Scheduler) runCycle(ctx context.Context) {
	result := s.collector.Collect(ctx, s.registry)

	if result.Success() {
		s.consecutiveFailures = 0
		now := time.Now()
		s.lastSuccessfulRead = &now
		s.lastError = ""
		if s.state == status.StateDegraded {
			s.logf("[scheduler] Recovered, %d/%d readings stored", result.Stored, result.Attempted)
			if s.events != nil {
				s.logf("[scheduler] %d event(s) recorded while degraded", len(s.events.GetSince(s.degradedMark)))
			}
		}
		s.state = status.StateRunning
		s.record(events.EventCycleCompleted, "", "")
		s.logf("[scheduler] Cycle %d: stored %d/%d readings", s.iteration, result.Stored, result.Attempted)
		return
	}

	if result.Attempted == 0 {
		return
	}

	if ctx.Err() != nil {
		// Shutdown landed mid-cycle; the unread devices are not an
		// outage and must not leak into the final status record.
		return
	}

	s.consecutiveFailures++
	if len(result.Failures) > 0 {
		s.lastError = result.Failures[len(result.Failures)-1].Err.Error()
	}
	s.record(events.EventCycleFailed, "", s.lastError)
	s.logf("[scheduler] Cycle %d: all %d device(s) failed (%d consecutive)",
		s.iteration, result.Attempted, s.consecutiveFailures)

	if s.consecutiveFailures >= s.failureThreshold && s.state != status.StateDegraded {
		s.logf("[scheduler] %d consecutive failed cycles, entering degraded state", s.consecutiveFailures)
		s.state = status.StateDegraded
		if s.events != nil {
			s.degradedMark = s.events.LastID()
			for _, e := range s.events.GetLast(3) {
				s.logf("[scheduler] Recent event: %s %s %s", e.Type, e.Device, e.Details)
			}
		}
	}
}

// initRegistry rebuilds the registry from the configured devices. Each
// device initializes independently; failures exclude the device, never
// abort the daemon.
func (s *Scheduler) initRegistry(ctx context.Context) {
	var ready []device.Device
	for _, d := range s.configured {
		if ctx.Err() != nil {
			break
		}
		if err := s.initDevice(ctx, d); err != nil {
			s.logf("[scheduler] Device %s failed to initialize (%s): %v", d.Name, device.Classify(err), err)
			s.record(events.EventDeviceInitFailed, d.Name, err.Error())
			s.lastError = err.Error()
			continue
		}
		ready = append(ready, d)
	}
	s.registry = device.NewRegistry(ready)
	if len(ready) > 0 {
		s.logf("[scheduler] Initialized %d/%d device(s)", len(ready), len(s.configured))
	}
}

// initDevice verifies one device, backing off on rate limiting only.
func (s *Scheduler) initDevice(ctx context.Context, d device.Device) error {
	attempts := 0
	for {
		err := s.svc.InitDevice(ctx, d.Address)
		if err == nil {
			return nil
		}
		if !errors.Is(err, device.ErrRateLimited) {
			return err
		}

		attempts++
		if attempts >= retry.InitAttempts {
			return err
		}

		delay := s.policy.Delay(attempts - 1)
		s.logf("[scheduler] Rate limited initializing %s, retrying in %s (%d/%d)",
			d.Name, delay.Round(time.Second), attempts, retry.InitAttempts)
		if err := retry.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// maybeProbe runs the connectivity probe every Nth iteration.
func (s *Scheduler) maybeProbe(ctx context.Context) {
	if s.prober == nil || s.probeInterval <= 0 || s.iteration%s.probeInterval != 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	c := s.prober.Check(ctx)
	s.connectivity = &c
	if !c.HubReachable || !c.APIReachable {
		s.record(events.EventProbeFailed, "",
			"hub="+boolWord(c.HubReachable)+" api="+boolWord(c.APIReachable))
	}
}

// shutdown finalizes state and writes the terminal status record.
func (s *Scheduler) shutdown() error {
	s.logf("[scheduler] Stopping after %d iteration(s)", s.iteration)
	s.state = status.StateStopped
	s.writeStatus()
	s.record(events.EventDaemonStopped, "", "")
	return nil
}

// writeStatus persists the current health record. A write failure is
// logged and absorbed; the daemon outlives its status file.
func (s *Scheduler) writeStatus() {
	if s.status == nil {
		return
	}

	st := &status.DaemonStatus{
		Running:             s.state == status.StateRunning || s.state == status.StateDegraded || s.state == status.StateStarting,
		Status:              s.state,
		StartedAt:           s.startedAt,
		LastUpdate:          time.Now(),
		UpdateInterval:      int(s.interval / time.Second),
		IterationCount:      s.iteration,
		DeviceCount:         s.registry.Len(),
		ConsecutiveFailures: s.consecutiveFailures,
		RateLimitRetryCount: s.svc.Stats().RateLimitRetries,
		LastSuccessfulRead:  s.lastSuccessfulRead,
		Devices:             s.registry.Names(),
		Error:               s.lastError,
		Connectivity:        s.connectivity,
	}

	if err := s.status.Write(st); err != nil {
		s.logf("[scheduler] Failed to write status file: %v", err)
	}
}

func (s *Scheduler) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func (s *Scheduler) record(t events.EventType, dev, details string) {
	if s.events != nil {
		s.events.Add(t, dev, details)
	}
}

func boolWord(b bool) string {
	if b {
		return "ok"
	}
	return "down"
}
