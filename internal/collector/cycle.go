// Package collector runs collection cycles and the scheduler loop that
// drives them.
package collector

import (
	"context"
	"fmt"
	"log"
	"time"

	"thermod/internal/device"
	"thermod/internal/events"
	"thermod/internal/storage"
)

// Validation ranges. A temperature outside its range rejects the whole
// reading; a humidity outside its range is dropped while the
// temperature is kept.
const (
	MinTemperature = -50.0
	MaxTemperature = 70.0
	MinHumidity    = 0.0
	MaxHumidity    = 100.0
)

// Result summarizes one collection cycle. A cycle succeeds when at
// least one reading was stored; per-device failures alone never fail
// a cycle that stored something.
type Result struct {
	Attempted int
	Stored    int
	Failures  []DeviceFailure
}

// DeviceFailure records one device that produced no stored reading.
type DeviceFailure struct {
	Device string
	Err    error
}

// Success reports whether the cycle counts as successful.
func (r Result) Success() bool {
	return r.Stored > 0
}

// Collector reads every registered device once per cycle and persists
// the valid readings.
type Collector struct {
	svc    device.Service
	sink   storage.Sink
	events *events.Store
	logger *log.Logger
}

// New creates a Collector. The events store is optional.
func New(svc device.Service, sink storage.Sink, ev *events.Store, logger *log.Logger) *Collector {
	return &Collector{
		svc:    svc,
		sink:   sink,
		events: ev,
		logger: logger,
	}
}

// Collect runs one cycle over the registry. Devices are read in
// configuration order; one device's failure never prevents reading
// the rest.
func (c *Collector) Collect(ctx context.Context, reg *device.Registry) Result {
	result := Result{Attempted: reg.Len()}

	for _, d := range reg.Devices() {
		if err := ctx.Err(); err != nil {
			result.Failures = append(result.Failures, DeviceFailure{Device: d.Name, Err: err})
			continue
		}

		reading, err := c.readOne(ctx, d)
		if err != nil {
			result.Failures = append(result.Failures, DeviceFailure{Device: d.Name, Err: err})
			c.logf("[collector] Read from %s failed (%s): %v", d.Name, device.Classify(err), err)
			c.record(events.EventDeviceReadFailed, d.Name, err.Error())
			continue
		}

		if err := c.sink.Persist(ctx, *reading); err != nil {
			// The reading is lost but the cycle goes on; storage
			// trouble must not look like a sensor outage.
			c.logf("[collector] Failed to persist reading from %s: %v", d.Name, err)
			c.record(events.EventPersistFailed, d.Name, err.Error())
			result.Failures = append(result.Failures, DeviceFailure{Device: d.Name, Err: err})
			continue
		}

		result.Stored++
	}

	return result
}

// readOne reads a device and validates the sample into a Reading.
func (c *Collector) readOne(ctx context.Context, d device.Device) (*storage.Reading, error) {
	st, err := c.svc.ReadStatus(ctx, d.Address)
	if err != nil {
		return nil, err
	}

	if st.Temperature == nil {
		return nil, fmt.Errorf("%w: device %s reported no temperature", device.ErrInvalidReading, d.Name)
	}
	temp := *st.Temperature
	if temp < MinTemperature || temp > MaxTemperature {
		return nil, fmt.Errorf("%w: temperature %.1f°C outside %.0f..%.0f", device.ErrInvalidReading, temp, MinTemperature, MaxTemperature)
	}

	reading := &storage.Reading{
		Timestamp:   time.Now().UTC(),
		Location:    device.LocationFor(d.Name),
		Temperature: temp,
	}

	if st.Humidity != nil {
		h := *st.Humidity
		if h < MinHumidity || h > MaxHumidity {
			c.logf("[collector] Dropping out-of-range humidity %.1f%% from %s", h, d.Name)
		} else {
			reading.Humidity = st.Humidity
		}
	}

	return reading, nil
}

func (c *Collector) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

func (c *Collector) record(t events.EventType, dev, details string) {
	if c.events != nil {
		c.events.Add(t, dev, details)
	}
}
