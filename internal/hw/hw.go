// Package hw abstracts the hardware surface of the bridge: a digital
// output line for the LED, an analog input channel, and the CPU
// temperature sensor. Concrete backends exist for real Linux hardware
// (GPIO character device, IIO sysfs, gopsutil) and for a fully
// simulated board used in development and tests.
package hw

// DigitalPin is a single binary GPIO line.
type DigitalPin interface {
	// Read returns the current line value.
	Read() (bool, error)
	// Write drives the line high (true) or low (false).
	Write(value bool) error
}

// AnalogReader returns raw ADC readings. The value range depends on the
// converter; a 10-bit ADC yields 0–1023.
type AnalogReader interface {
	Read() (int, error)
}

// TemperatureSensor returns the CPU temperature in degrees Celsius.
type TemperatureSensor interface {
	Read() (float64, error)
}

// Board bundles the three hardware resources the bridge exposes over
// MQTT. Close releases any underlying OS handles.
type Board interface {
	LED() DigitalPin
	Analog() AnalogReader
	Temperature() TemperatureSensor
	Close() error
}
