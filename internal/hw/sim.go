package hw

import (
	"math/rand"
	"sync"
)

// SimBoard is an in-memory board for development on machines without
// GPIO hardware. The LED is a plain latch; the analog channel walks
// randomly through the 10-bit range; the temperature wanders around a
// typical idle value. Safe for concurrent use.
type SimBoard struct {
	mu     sync.Mutex
	led    bool
	analog int
	temp   float64
}

// NewSimBoard returns a simulated board with the LED low, the analog
// channel at mid-scale, and the temperature at 45°C.
func NewSimBoard() *SimBoard {
	return &SimBoard{analog: 512, temp: 45.0}
}

func (b *SimBoard) LED() DigitalPin                { return (*simPin)(b) }
func (b *SimBoard) Analog() AnalogReader           { return (*simAnalog)(b) }
func (b *SimBoard) Temperature() TemperatureSensor { return (*simTemp)(b) }
func (b *SimBoard) Close() error                   { return nil }

// SetAnalog pins the next analog reading to a fixed value. Used by
// tests; after this the random walk continues from the new value.
func (b *SimBoard) SetAnalog(v int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.analog = v
}

// SetTemperature pins the next temperature reading.
func (b *SimBoard) SetTemperature(v float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.temp = v
}

type simPin SimBoard

func (p *simPin) Read() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.led, nil
}

func (p *simPin) Write(value bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.led = value
	return nil
}

type simAnalog SimBoard

func (a *simAnalog) Read() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	// Small random walk, clamped to the 10-bit range.
	a.analog += rand.Intn(11) - 5
	if a.analog < 0 {
		a.analog = 0
	}
	if a.analog > 1023 {
		a.analog = 1023
	}
	return a.analog, nil
}

type simTemp SimBoard

func (t *simTemp) Read() (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.temp += rand.Float64()*0.2 - 0.1
	return t.temp, nil
}
