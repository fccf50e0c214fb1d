package hw

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quillon/gpiobridge/internal/config"
)

func TestSimBoard_LEDLatch(t *testing.T) {
	b := NewSimBoard()
	led := b.LED()

	v, err := led.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if v {
		t.Error("fresh sim LED should read low")
	}

	if err := led.Write(true); err != nil {
		t.Fatalf("Write(true) error = %v", err)
	}
	v, err = led.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !v {
		t.Error("LED should read high after Write(true)")
	}
}

func TestSimBoard_AnalogStaysInRange(t *testing.T) {
	b := NewSimBoard()
	adc := b.Analog()

	b.SetAnalog(1023)
	for i := 0; i < 100; i++ {
		v, err := adc.Read()
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if v < 0 || v > 1023 {
			t.Fatalf("reading %d outside 10-bit range", v)
		}
	}
}

func TestSimBoard_SetTemperature(t *testing.T) {
	b := NewSimBoard()
	b.SetTemperature(60)

	v, err := b.Temperature().Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	// The walk moves at most 0.1 per read.
	if v < 59.8 || v > 60.2 {
		t.Errorf("temperature = %g, want ~60", v)
	}
}

func TestIIOReader(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{"plain value", "512\n", 512, false},
		{"no newline", "1023", 1023, false},
		{"garbage", "not-a-number\n", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := os.WriteFile(filepath.Join(dir, "in_voltage0_raw"), []byte(tt.content), 0644); err != nil {
				t.Fatalf("WriteFile error: %v", err)
			}
			r := &iioReader{device: dir, channel: 0}
			got, err := r.Read()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Read() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Read() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIIOReader_MissingDevice(t *testing.T) {
	r := &iioReader{device: "/nonexistent/iio:device9", channel: 0}
	if _, err := r.Read(); err == nil {
		t.Fatal("Read() on missing device should error")
	}
}

func TestOpenBoard_Simulated(t *testing.T) {
	b, err := OpenBoard(config.HardwareConfig{Simulated: true})
	if err != nil {
		t.Fatalf("OpenBoard() error = %v", err)
	}
	defer b.Close()

	if _, ok := b.(*SimBoard); !ok {
		t.Errorf("OpenBoard with simulated config = %T, want *SimBoard", b)
	}
}
