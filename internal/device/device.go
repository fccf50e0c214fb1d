// Package device implements the command dispatcher and status reporter
// at the heart of the bridge. It owns the cached "last published" state
// for each exposed resource and guarantees that a cache entry only ever
// reflects a reading that was successfully delivered to the broker:
// failed publishes leave the cache untouched so the next periodic check
// re-detects the same change and retries.
//
// Inbound commands arrive in order on the MQTT dispatch goroutine while
// the poll loop ticks on its own, so a single mutex serializes all
// access to the board and the state latches.
package device

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/quillon/gpiobridge/internal/config"
	"github.com/quillon/gpiobridge/internal/hw"
)

// Topic suffixes under <client_id>/command/ and <client_id>/status/.
const (
	SuffixAnalog      = "A0"
	SuffixLED         = "LED"
	SuffixTemperature = "cpu_temperature"
)

// Recognized command payloads.
const (
	cmdGet = "get"
	cmdOn  = "on"
	cmdOff = "off"
)

// Publisher delivers messages to the broker. The concrete
// implementation is the MQTT client; tests substitute a fake.
type Publisher interface {
	// PublishStatus publishes a retained status message at QoS 0.
	PublishStatus(ctx context.Context, topic, payload string) error
	// PublishCommand publishes a non-retained command at QoS 1,
	// used to drive a peer device.
	PublishCommand(ctx context.Context, topic, payload string) error
}

// Topics builds the topic namespace for a client ID. Topic strings are
// case-sensitive and exact: <client_id>/command/<suffix> inbound,
// <client_id>/status/<suffix> outbound.
type Topics struct {
	ClientID string
}

// Status returns the status topic for a suffix.
func (t Topics) Status(suffix string) string {
	return t.ClientID + "/status/" + suffix
}

// Command returns the command topic for a suffix.
func (t Topics) Command(suffix string) string {
	return t.ClientID + "/command/" + suffix
}

// CommandFilter returns the wildcard subscription filter covering all
// command topics for this client.
func (t Topics) CommandFilter() string {
	return t.ClientID + "/command/#"
}

// Device dispatches inbound commands and reports status changes.
type Device struct {
	board  hw.Board
	pub    Publisher
	topics Topics
	rep    config.ReportingConfig
	peer   string
	logger *slog.Logger

	mu sync.Mutex

	// Last successfully published values, guarded by mu.
	prevLED    bool
	prevAnalog int
	prevTemp   float64

	// tempAlert tracks whether the high-temperature alert is active.
	tempAlert bool
}

// New creates a Device. peer is the client ID of the companion device
// driven by the temperature alert; empty disables the alert.
func New(board hw.Board, pub Publisher, topics Topics, rep config.ReportingConfig, peer string, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{
		board:  board,
		pub:    pub,
		topics: topics,
		rep:    rep,
		peer:   peer,
		logger: logger,
	}
}

// Topics returns the device's topic namespace.
func (d *Device) Topics() Topics { return d.topics }

// Run executes the periodic status check until ctx is cancelled.
func (d *Device) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.CheckAndReport(ctx)
		}
	}
}

// HandleCommand routes one inbound (topic, payload) pair to at most one
// side effect and at most one status publish. Unrecognized topics and
// payloads are logged and otherwise ignored.
func (d *Device) HandleCommand(ctx context.Context, topic string, payload []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	msg := string(payload)
	d.logger.Debug("command received", "topic", topic, "payload", msg)

	suffix, ok := strings.CutPrefix(topic, d.topics.Command(""))
	if !ok {
		d.logger.Warn("command on foreign topic ignored", "topic", topic)
		return
	}

	switch suffix {
	case SuffixAnalog:
		if msg != cmdGet {
			d.unknownCommand(topic, msg)
			return
		}
		d.publishAnalogStatus(ctx)

	case SuffixLED:
		switch msg {
		case cmdGet:
			d.publishLEDStatus(ctx)
		case cmdOn, cmdOff:
			if err := d.board.LED().Write(msg == cmdOn); err != nil {
				d.logger.Error("set LED failed", "error", err)
				return
			}
			d.logger.Debug("LED set", "value", msg)
			d.publishLEDStatus(ctx)
		default:
			d.unknownCommand(topic, msg)
		}

	case SuffixTemperature:
		if msg != cmdGet {
			d.unknownCommand(topic, msg)
			return
		}
		d.publishTemperatureStatus(ctx)

	default:
		d.unknownCommand(topic, msg)
	}
}

func (d *Device) unknownCommand(topic, msg string) {
	d.logger.Warn("unknown command", "topic", topic, "payload", msg)
}

// PublishAll publishes the current status of every resource. Called on
// startup and on every broker (re-)connect so retained state matches
// reality after an outage.
func (d *Device) PublishAll(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.publishAnalogStatus(ctx)
	d.publishLEDStatus(ctx)
	d.publishTemperatureStatus(ctx)
}

// CheckAndReport runs one pass of the debounced change-reporting
// policy: each resource publishes only when its reading moved beyond
// the configured delta (analog, temperature) or changed at all (LED).
// This is change reporting, not a heartbeat; a quiet board publishes
// nothing.
func (d *Device) CheckAndReport(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cur, err := d.board.Analog().Read(); err != nil {
		d.logger.Error("read analog channel failed", "error", err)
	} else if abs(cur-d.prevAnalog) > d.rep.AnalogDelta {
		d.publishAnalogValue(ctx, cur)
	}

	if cur, err := d.board.LED().Read(); err != nil {
		d.logger.Error("read LED line failed", "error", err)
	} else if cur != d.prevLED {
		d.publishLEDValue(ctx, cur)
	}

	cur, err := d.board.Temperature().Read()
	if err != nil {
		d.logger.Error("read CPU temperature failed", "error", err)
		return
	}
	if absFloat(cur-d.prevTemp) > d.rep.TempDelta {
		d.publishTemperatureValue(ctx, cur)
	}
	d.checkTemperatureAlert(ctx, cur)
}

// Shutdown drives the LED low and publishes final retained statuses so
// the broker reflects the device's parked state after exit.
func (d *Device) Shutdown(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.board.LED().Write(false); err != nil {
		d.logger.Error("park LED failed", "error", err)
	}
	d.publishAnalogStatus(ctx)
	d.publishLEDStatus(ctx)
	d.publishTemperatureStatus(ctx)
}

// --- Unlocked internals; callers hold d.mu ---

func (d *Device) publishAnalogStatus(ctx context.Context) {
	cur, err := d.board.Analog().Read()
	if err != nil {
		d.logger.Error("read analog channel failed", "error", err)
		return
	}
	d.publishAnalogValue(ctx, cur)
}

func (d *Device) publishAnalogValue(ctx context.Context, cur int) {
	topic := d.topics.Status(SuffixAnalog)
	payload := strconv.Itoa(cur)
	if err := d.pub.PublishStatus(ctx, topic, payload); err != nil {
		d.logger.Warn("status publish failed", "topic", topic, "error", err)
		return
	}
	d.logger.Debug("status published", "topic", topic, "payload", payload)
	d.prevAnalog = cur
}

func (d *Device) publishLEDStatus(ctx context.Context) {
	cur, err := d.board.LED().Read()
	if err != nil {
		d.logger.Error("read LED line failed", "error", err)
		return
	}
	d.publishLEDValue(ctx, cur)
}

func (d *Device) publishLEDValue(ctx context.Context, cur bool) {
	topic := d.topics.Status(SuffixLED)
	payload := cmdOff
	if cur {
		payload = cmdOn
	}
	if err := d.pub.PublishStatus(ctx, topic, payload); err != nil {
		d.logger.Warn("status publish failed", "topic", topic, "error", err)
		return
	}
	d.logger.Debug("status published", "topic", topic, "payload", payload)
	d.prevLED = cur
}

func (d *Device) publishTemperatureStatus(ctx context.Context) {
	cur, err := d.board.Temperature().Read()
	if err != nil {
		d.logger.Error("read CPU temperature failed", "error", err)
		return
	}
	d.publishTemperatureValue(ctx, cur)
}

func (d *Device) publishTemperatureValue(ctx context.Context, cur float64) {
	topic := d.topics.Status(SuffixTemperature)
	payload := strconv.FormatFloat(cur, 'f', 1, 64)
	if err := d.pub.PublishStatus(ctx, topic, payload); err != nil {
		d.logger.Warn("status publish failed", "topic", topic, "error", err)
		return
	}
	d.logger.Debug("status published", "topic", topic, "payload", payload)
	d.prevTemp = cur
}

// checkTemperatureAlert drives the peer device's LED with hysteresis:
// above TempAlertHigh the alert turns on, and it stays on until the
// temperature falls below TempAlertLow. The alert state only advances
// when the command publish succeeds, so a broker hiccup is retried on
// the next tick.
func (d *Device) checkTemperatureAlert(ctx context.Context, temp float64) {
	if d.peer == "" {
		return
	}

	peerLED := Topics{ClientID: d.peer}.Command(SuffixLED)

	switch {
	case temp > d.rep.TempAlertHigh && !d.tempAlert:
		if err := d.pub.PublishCommand(ctx, peerLED, cmdOn); err != nil {
			d.logger.Warn("alert command publish failed", "topic", peerLED, "error", err)
			return
		}
		d.tempAlert = true
		d.logger.Info("high temperature alert enabled", "temperature", temp, "peer", d.peer)

	case temp < d.rep.TempAlertLow && d.tempAlert:
		if err := d.pub.PublishCommand(ctx, peerLED, cmdOff); err != nil {
			d.logger.Warn("alert command publish failed", "topic", peerLED, "error", err)
			return
		}
		d.tempAlert = false
		d.logger.Info("high temperature alert disabled", "temperature", temp, "peer", d.peer)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
