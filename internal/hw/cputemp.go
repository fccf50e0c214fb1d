package hw

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

// cpuSensorKeys are sensor-key substrings that identify the CPU package
// sensor across platforms: cpu_thermal (Raspberry Pi), coretemp (Intel),
// k10temp (AMD), soc_thermal (various ARM SoCs).
var cpuSensorKeys = []string{"cpu_thermal", "cpu-thermal", "coretemp", "k10temp", "soc_thermal"}

// cpuTemperature reads the CPU temperature via gopsutil's host sensor
// enumeration. The first sensor whose key matches a known CPU sensor
// name wins; if none match, the first sensor reported is used so the
// reading degrades to "some board temperature" rather than failing.
type cpuTemperature struct{}

func (c *cpuTemperature) Read() (float64, error) {
	sensors, err := host.SensorsTemperatures()
	if err != nil {
		return 0, fmt.Errorf("enumerate temperature sensors: %w", err)
	}
	if len(sensors) == 0 {
		return 0, fmt.Errorf("no temperature sensors reported by host")
	}

	for _, s := range sensors {
		for _, key := range cpuSensorKeys {
			if strings.Contains(s.SensorKey, key) {
				return s.Temperature, nil
			}
		}
	}
	return sensors[0].Temperature, nil
}
