package device

import (
	"context"
	"log"
	"math"
	"math/rand"
)

// Mock value bands, matching the pre-production service this replaces.
const (
	mockTempMin     = 18.0
	mockTempMax     = 25.0
	mockHumidityMin = 30.0
	mockHumidityMax = 50.0
)

// Mock is the synthetic device service: pseudo-random values inside
// fixed bands, no network access. Selected by the mode flag for
// non-production environments.
type Mock struct {
	logger *log.Logger
}

// NewMock creates the mock service.
func NewMock(logger *log.Logger) *Mock {
	if logger != nil {
		logger.Printf("[device] Using mock device service")
	}
	return &Mock{logger: logger}
}

// InitDevice implements Service; every address is valid.
func (m *Mock) InitDevice(ctx context.Context, address string) error {
	return ctx.Err()
}

// ReadTemperature implements Service with a value in [18.0, 25.0].
func (m *Mock) ReadTemperature(ctx context.Context, address string) (*float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := round2(mockTempMin + rand.Float64()*(mockTempMax-mockTempMin))
	return &v, nil
}

// ReadHumidity implements Service with a value in [30.0, 50.0].
func (m *Mock) ReadHumidity(ctx context.Context, address string) (*float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := round2(mockHumidityMin + rand.Float64()*(mockHumidityMax-mockHumidityMin))
	return &v, nil
}

// ReadStatus implements Service.
func (m *Mock) ReadStatus(ctx context.Context, address string) (*Status, error) {
	temp, err := m.ReadTemperature(ctx, address)
	if err != nil {
		return nil, err
	}
	hum, err := m.ReadHumidity(ctx, address)
	if err != nil {
		return nil, err
	}

	return &Status{
		Temperature: temp,
		Humidity:    hum,
		Extra: map[string]interface{}{
			"battery": 80 + rand.Intn(21),
		},
	}, nil
}

// Ping implements Service; the mock cloud is always reachable.
func (m *Mock) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Stats implements Service.
func (m *Mock) Stats() Stats {
	return Stats{}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
