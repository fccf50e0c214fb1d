package hw

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// iioReader reads raw samples from a Linux Industrial I/O ADC channel.
// Each read opens and parses the sysfs attribute file, the same way the
// kernel's own tooling does; the file is tiny and the poll rate is one
// read per second, so caching the handle buys nothing.
type iioReader struct {
	// device is the IIO device directory, e.g.
	// /sys/bus/iio/devices/iio:device0.
	device string
	// channel is the voltage channel index (in_voltage<N>_raw).
	channel int
}

func (r *iioReader) path() string {
	return fmt.Sprintf("%s/in_voltage%d_raw", r.device, r.channel)
}

func (r *iioReader) Read() (int, error) {
	data, err := os.ReadFile(r.path())
	if err != nil {
		return 0, fmt.Errorf("read ADC channel: %w", err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse ADC reading %q: %w", strings.TrimSpace(string(data)), err)
	}
	return v, nil
}
