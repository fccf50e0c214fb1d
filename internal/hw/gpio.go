package hw

import (
	"fmt"

	gpiod "github.com/warthog618/go-gpiocdev"

	"github.com/quillon/gpiobridge/internal/config"
)

// gpioBoard is the real-hardware backend: the LED on a GPIO character
// device line, the analog channel on an IIO device, and the CPU
// temperature from the kernel's thermal sensors.
type gpioBoard struct {
	chip *gpiod.Chip
	led  *gpioPin
	adc  *iioReader
	temp *cpuTemperature
}

// OpenBoard opens the configured GPIO chip and requests the LED line as
// an output driven low. A missing chip or line is a fatal condition:
// the process has no useful behavior without its hardware, so the error
// is returned to the caller rather than retried.
func OpenBoard(cfg config.HardwareConfig) (Board, error) {
	if cfg.Simulated {
		return NewSimBoard(), nil
	}

	chip, err := gpiod.NewChip(cfg.GPIOChip)
	if err != nil {
		return nil, fmt.Errorf("open GPIO chip %s: %w", cfg.GPIOChip, err)
	}

	line, err := chip.RequestLine(cfg.LEDLine, gpiod.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request LED line %d on %s: %w", cfg.LEDLine, cfg.GPIOChip, err)
	}

	return &gpioBoard{
		chip: chip,
		led:  &gpioPin{line: line},
		adc:  &iioReader{device: cfg.AnalogDevice, channel: cfg.AnalogChannel},
		temp: &cpuTemperature{},
	}, nil
}

func (b *gpioBoard) LED() DigitalPin                { return b.led }
func (b *gpioBoard) Analog() AnalogReader           { return b.adc }
func (b *gpioBoard) Temperature() TemperatureSensor { return b.temp }

func (b *gpioBoard) Close() error {
	// Releasing the line before the chip matters; the kernel holds the
	// request open until both are closed.
	b.led.line.Close()
	return b.chip.Close()
}

// gpioPin adapts a requested gpiocdev line to the DigitalPin interface.
// The line is requested as an output; reading an output line returns
// the driven value, which is what the status reporter wants.
type gpioPin struct {
	line *gpiod.Line
}

func (p *gpioPin) Read() (bool, error) {
	v, err := p.line.Value()
	if err != nil {
		return false, fmt.Errorf("read GPIO line: %w", err)
	}
	return v != 0, nil
}

func (p *gpioPin) Write(value bool) error {
	v := 0
	if value {
		v = 1
	}
	if err := p.line.SetValue(v); err != nil {
		return fmt.Errorf("set GPIO line: %w", err)
	}
	return nil
}
