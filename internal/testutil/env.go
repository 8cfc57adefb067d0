package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/lcrostarosa/proofmode/internal/proof"
)

// FixedDevice is a proof.Device with every value populated.
type FixedDevice struct {
	Info proof.NetworkInfo
}

var _ proof.Device = FixedDevice{}

// NewFixedDevice returns a device with fixed test values.
func NewFixedDevice() FixedDevice {
	return FixedDevice{Info: proof.NetworkInfo{
		WifiMAC:     "02:00:00:00:00:01",
		IPv4:        "192.0.2.10",
		IPv6:        "2001:db8::10",
		DataType:    "wifi",
		Network:     "testnet",
		NetworkType: "wifi",
		CellInfo:    "none",
	}}
}

func (FixedDevice) Language() string     { return "en" }
func (FixedDevice) Locale() string       { return "en_US" }
func (FixedDevice) DeviceID() string     { return "device-0001" }
func (FixedDevice) Hardware() string     { return "linux/amd64" }
func (FixedDevice) Manufacturer() string { return "Test Manufacturer" }
func (FixedDevice) ScreenSize() string   { return "1920x1080" }

// Network implements proof.Device.
func (d FixedDevice) Network(context.Context) proof.NetworkInfo { return d.Info }

// FixedLocation always returns the same fix, or none when Fix is nil.
type FixedLocation struct {
	Fix *proof.Fix
}

// NewFixedLocation returns a provider with a fix at the given time.
func NewFixedLocation(at time.Time) FixedLocation {
	return FixedLocation{Fix: &proof.Fix{
		Latitude:  52.5200,
		Longitude: 13.4050,
		Accuracy:  5,
		Altitude:  34,
		Provider:  "gps",
		Time:      at,
	}}
}

// CurrentFix implements proof.LocationProvider.
func (l FixedLocation) CurrentFix(context.Context) (*proof.Fix, error) {
	return l.Fix, nil
}

// ManualClock is a proof.Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock starts the clock at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now implements proof.Clock.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
