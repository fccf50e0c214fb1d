package mqtt

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDiscoveryDefinitions(t *testing.T) {
	c := New(testConfig(), "instance-123", nil)

	defs := c.discoveryDefinitions()

	expected := map[string]string{
		"analog":          "sensor",
		"cpu_temperature": "sensor",
		"led":             "switch",
	}
	if len(defs) != len(expected) {
		t.Fatalf("got %d discovery definitions, want %d", len(defs), len(expected))
	}

	for _, d := range defs {
		component, ok := expected[d.entitySuffix]
		if !ok {
			t.Errorf("unexpected entity %q", d.entitySuffix)
			continue
		}
		if d.component != component {
			t.Errorf("entity %s: component = %q, want %q", d.entitySuffix, d.component, component)
		}
	}
}

func TestDiscoveryDefinitions_SensorFields(t *testing.T) {
	c := New(testConfig(), "instance-123", nil)

	for _, d := range c.discoveryDefinitions() {
		sensor, ok := d.config.(SensorConfig)
		if !ok {
			continue
		}

		// Entity names must not repeat the client ID; HA derives
		// entity IDs as <device>_<name> and a repeated prefix doubles
		// up.
		if strings.Contains(sensor.Name, c.cfg.ClientID) {
			t.Errorf("sensor %s: Name %q contains client ID", d.entitySuffix, sensor.Name)
		}
		if !sensor.HasEntityName {
			t.Errorf("sensor %s: HasEntityName = false, want true", d.entitySuffix)
		}
		if sensor.ObjectID != d.entitySuffix {
			t.Errorf("sensor %s: ObjectID = %q, want %q", d.entitySuffix, sensor.ObjectID, d.entitySuffix)
		}
		if !strings.HasPrefix(sensor.UniqueID, "instance-123_") {
			t.Errorf("sensor %s: UniqueID = %q, should start with instance-123_", d.entitySuffix, sensor.UniqueID)
		}
		if sensor.AvailabilityTopic != "Arduino/availability" {
			t.Errorf("sensor %s: AvailabilityTopic = %q, want Arduino/availability",
				d.entitySuffix, sensor.AvailabilityTopic)
		}
		if len(sensor.Device.Identifiers) == 0 {
			t.Errorf("sensor %s: Device.Identifiers is empty", d.entitySuffix)
		}
	}
}

func TestDiscoveryDefinitions_LEDSwitch(t *testing.T) {
	c := New(testConfig(), "instance-123", nil)

	var sw SwitchConfig
	var found bool
	for _, d := range c.discoveryDefinitions() {
		if s, ok := d.config.(SwitchConfig); ok {
			sw = s
			found = true
		}
	}
	if !found {
		t.Fatal("no switch definition found")
	}

	if sw.CommandTopic != "Arduino/command/LED" {
		t.Errorf("CommandTopic = %q, want Arduino/command/LED", sw.CommandTopic)
	}
	if sw.StateTopic != "Arduino/status/LED" {
		t.Errorf("StateTopic = %q, want Arduino/status/LED", sw.StateTopic)
	}
	if sw.PayloadOn != "on" || sw.PayloadOff != "off" {
		t.Errorf("payloads = (%q, %q), want (on, off)", sw.PayloadOn, sw.PayloadOff)
	}
}

func TestDiscoveryPayload_JSONShape(t *testing.T) {
	c := New(testConfig(), "instance-123", nil)

	for _, d := range c.discoveryDefinitions() {
		data, err := json.Marshal(d.config)
		if err != nil {
			t.Fatalf("entity %s: Marshal error: %v", d.entitySuffix, err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("entity %s: Unmarshal error: %v", d.entitySuffix, err)
		}

		for _, key := range []string{"unique_id", "state_topic", "availability_topic", "device"} {
			if _, ok := decoded[key]; !ok {
				t.Errorf("entity %s: payload missing %q:\n%s", d.entitySuffix, key, data)
			}
		}

		// Empty optional fields must be omitted.
		if _, ok := decoded["entity_category"]; ok && d.entitySuffix != "cpu_temperature" {
			t.Errorf("entity %s: entity_category should be omitted when empty", d.entitySuffix)
		}
	}
}
