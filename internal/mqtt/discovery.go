package mqtt

import (
	"context"
	"encoding/json"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/quillon/gpiobridge/internal/buildinfo"
	"github.com/quillon/gpiobridge/internal/device"
)

// DeviceInfo holds the Home Assistant device registry fields shared
// across all MQTT discovery config payloads. Every entity published by
// this instance references the same device block so HA groups them
// under a single device page.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version"`
}

// NewDeviceInfo creates a DeviceInfo from the persistent instance ID
// and the MQTT client ID. The instance ID is used as the primary HA
// device identifier (stable across renames); the client ID appears in
// the HA UI.
func NewDeviceInfo(instanceID, clientID string) DeviceInfo {
	return DeviceInfo{
		Identifiers:  []string{instanceID},
		Name:         clientID,
		Manufacturer: "Quillon",
		Model:        "GPIO Bridge",
		SWVersion:    buildinfo.Version,
	}
}

// SensorConfig is the JSON payload for an HA MQTT sensor discovery
// message. It is published (retained) to the discovery topic on every
// broker (re-)connect.
type SensorConfig struct {
	Name              string     `json:"name"`
	ObjectID          string     `json:"object_id,omitempty"`
	HasEntityName     bool       `json:"has_entity_name,omitempty"`
	UniqueID          string     `json:"unique_id"`
	StateTopic        string     `json:"state_topic"`
	AvailabilityTopic string     `json:"availability_topic"`
	Device            DeviceInfo `json:"device"`
	Icon              string     `json:"icon,omitempty"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	DeviceClass       string     `json:"device_class,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	EntityCategory    string     `json:"entity_category,omitempty"`
}

// SwitchConfig is the JSON payload for an HA MQTT switch discovery
// message. The LED is exposed as a switch: HA publishes "on"/"off" to
// the command topic and tracks state from the retained status topic.
type SwitchConfig struct {
	Name              string     `json:"name"`
	ObjectID          string     `json:"object_id,omitempty"`
	HasEntityName     bool       `json:"has_entity_name,omitempty"`
	UniqueID          string     `json:"unique_id"`
	StateTopic        string     `json:"state_topic"`
	CommandTopic      string     `json:"command_topic"`
	PayloadOn         string     `json:"payload_on"`
	PayloadOff        string     `json:"payload_off"`
	AvailabilityTopic string     `json:"availability_topic"`
	Device            DeviceInfo `json:"device"`
	Icon              string     `json:"icon,omitempty"`
}

// Device returns the shared HA device block.
func (c *Client) Device() DeviceInfo {
	return c.device
}

type discoveryDef struct {
	component    string // "sensor" or "switch"
	entitySuffix string
	config       any
}

func (c *Client) discoveryTopic(component, entity string) string {
	return c.cfg.DiscoveryPrefix + "/" + component + "/" + c.cfg.ClientID + "/" + entity + "/config"
}

func (c *Client) discoveryDefinitions() []discoveryDef {
	avail := c.availabilityTopic()
	topics := device.Topics{ClientID: c.cfg.ClientID}

	return []discoveryDef{
		{
			component:    "sensor",
			entitySuffix: "analog",
			config: SensorConfig{
				Name:              "Analog Input",
				ObjectID:          "analog",
				HasEntityName:     true,
				UniqueID:          c.instanceID + "_analog",
				StateTopic:        topics.Status(device.SuffixAnalog),
				AvailabilityTopic: avail,
				Device:            c.device,
				Icon:              "mdi:sine-wave",
				StateClass:        "measurement",
			},
		},
		{
			component:    "sensor",
			entitySuffix: "cpu_temperature",
			config: SensorConfig{
				Name:              "CPU Temperature",
				ObjectID:          "cpu_temperature",
				HasEntityName:     true,
				UniqueID:          c.instanceID + "_cpu_temperature",
				StateTopic:        topics.Status(device.SuffixTemperature),
				AvailabilityTopic: avail,
				Device:            c.device,
				DeviceClass:       "temperature",
				UnitOfMeasurement: "°C",
				StateClass:        "measurement",
				EntityCategory:    "diagnostic",
			},
		},
		{
			component:    "switch",
			entitySuffix: "led",
			config: SwitchConfig{
				Name:              "LED",
				ObjectID:          "led",
				HasEntityName:     true,
				UniqueID:          c.instanceID + "_led",
				StateTopic:        topics.Status(device.SuffixLED),
				CommandTopic:      topics.Command(device.SuffixLED),
				PayloadOn:         "on",
				PayloadOff:        "off",
				AvailabilityTopic: avail,
				Device:            c.device,
				Icon:              "mdi:led-outline",
			},
		},
	}
}

// publishDiscovery announces all entities to Home Assistant. Discovery
// configs are retained so HA restarts pick them up without waiting for
// a reconnect. An empty discovery prefix disables the feature.
func (c *Client) publishDiscovery(ctx context.Context, cm *autopaho.ConnectionManager) {
	if c.cfg.DiscoveryPrefix == "" {
		return
	}

	for _, d := range c.discoveryDefinitions() {
		topic := c.discoveryTopic(d.component, d.entitySuffix)
		payload, err := json.Marshal(d.config)
		if err != nil {
			c.logger.Error("mqtt marshal discovery payload",
				"entity", d.entitySuffix, "error", err)
			continue
		}

		if _, err := cm.Publish(ctx, &paho.Publish{
			Topic:   topic,
			Payload: payload,
			QoS:     1,
			Retain:  true,
		}); err != nil {
			c.logger.Warn("mqtt discovery publish failed",
				"entity", d.entitySuffix, "topic", topic, "error", err)
		} else {
			c.logger.Debug("mqtt discovery published",
				"entity", d.entitySuffix, "topic", topic)
		}
	}
}
